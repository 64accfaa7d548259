//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
)

// Caller identifies who issued a control command.
type Caller struct {
	Hostname string
	Username string
}

// String renders the caller as "user@host".
func (c Caller) String() string {
	return c.Username + "@" + c.Hostname
}

// DetectCaller gathers host and user information for the audit trail.
func DetectCaller() (Caller, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Caller{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Caller{}, fmt.Errorf("current user: %w", err)
	}

	return Caller{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
