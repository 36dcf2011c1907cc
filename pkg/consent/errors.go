package consent

import "errors"

// ErrConsentNotFound is returned when no consent exists for the user and
// client pair.
var ErrConsentNotFound = errors.New("consent not found")
