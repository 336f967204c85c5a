// Package validate contains simple input validation helpers.
package validate

import (
	"errors"
	"regexp"
)

// referenceRe enforces a conservative customer reference pattern.
// References are national-ID-like identifiers issued elsewhere.
var referenceRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{5,63}$`)

// Reference validates a customer reference for length and allowed characters.
func Reference(s string) error {
	if !referenceRe.MatchString(s) {
		return errors.New("invalid reference")
	}
	return nil
}

// PIN validates a PIN attempt. Only length is checked here; the attempt
// is never logged or echoed back regardless of validity.
func PIN(s string) error {
	if len(s) < 4 || len(s) > 12 {
		return errors.New("invalid pin")
	}
	return nil
}
