// Package sanitizer normalizes scanned codes and patron data before lookup,
// validation and storage.
//
// All functions are idempotent and never fail: invalid input normalizes to an
// empty string rather than an error.
//
// Normalization includes:
//   - Scan tokens: trim surrounding whitespace, drop control and zero-width characters
//   - ISBNs: remove hyphens and spaces, upper-case the check digit "x"
//   - Names: collapse inner whitespace, trim
//   - Categories: upper-case, separators folded to "_" ("junior high" becomes "JUNIOR_HIGH")
package sanitizer
