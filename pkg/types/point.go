package types

import (
	"fmt"
	"regexp"
)

// Credentials is the username/password pair for the portal. Instances are
// immutable for the lifetime of a client and must never be logged.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DeliveryPoint is a metering point. ID is the stable opaque code used
// for identity everywhere downstream; DisplayName is presentation only.
type DeliveryPoint struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Discovered  bool   `json:"discovered,omitempty"`
}

// the stable POD code is a 16-20 character alphanumeric prefix of the
// discovery label, e.g. "99XXX1234560000G (Family house)"
var pointIDPattern = regexp.MustCompile(`^([A-Z0-9]{16,20})`)

// ExtractPointID pulls the stable POD code out of a discovery label. The
// session-scoped numeric id the portal also returns changes on every
// login and must not be used for identity.
func ExtractPointID(label string) (string, error) {
	if m := pointIDPattern.FindStringSubmatch(label); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("no valid point id in label %q", label)
}
