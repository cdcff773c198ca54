// Package validation provides common validation utilities for configuration
// parameters across parcsv.
//
// The helpers return *errors.ValidationError values so callers get consistent
// messages ("module: invalid field=value (reason) - hint") and can test for
// errors.ErrInvalidConfiguration with errors.Is.
package validation
