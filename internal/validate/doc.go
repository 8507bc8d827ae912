// Package validate checks sanitized request payloads against named schemas.
//
// A schema is plain data: an ordered list of fields, each carrying an ordered
// list of rules. Validator.Validate walks the fields in declaration order and
// collects every issue it finds. Callers that face end users report only
// Issues.First, so users see one error at a time, while tests and programmatic
// callers can inspect the full list.
//
// Rules that establish the value's type (required, string, number, finite)
// stop evaluation of the remaining rules for that field. All other rules run
// independently.
//
// Validation is pure apart from reading the clock for date ranges, and a
// Validator is safe for concurrent use.
package validate
