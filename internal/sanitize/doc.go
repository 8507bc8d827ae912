// Package sanitize normalizes untrusted form input into a canonical,
// storage-safe form before it reaches validation.
//
// Every function is pure and never fails: absent or hopeless input becomes
// the zero value (or ok=false for the nullable helpers).
//
// # Blocklist, not a parser
//
// Tag stripping and script detection are regular-expression blocklists.
// They remove the common injection shapes (tags, script protocols, inline
// event handlers) and nothing more. Output is still escaped at render time;
// do not treat a sanitized string as safe HTML.
package sanitize
