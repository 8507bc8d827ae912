// Package audit records security-relevant events: authentication attempts,
// data changes, validation failures, rate-limit denials and suspected XSS.
//
// Auditing is best effort. Auditor methods never return errors and never
// block the request that triggered them; a failing sink is logged and the
// request carries on.
//
// Events never carry raw user input. Emails are masked and XSS previews are
// truncated with angle brackets escaped, so log viewers cannot be injected.
package audit
