package types

import "strings"

const maxThreadIDLength = 200

// Validate reports whether the message can take part in a timeline.
// FUNCTIONAL DISCOVERY: only missing fields are fatal. An unparseable createdAt is kept
// and ordered by insertion, and an unknown role is carried through untouched.
func (m Message) Validate() error {
	if strings.TrimSpace(string(m.Role)) == "" {
		return ErrMissingRole
	}
	if strings.TrimSpace(m.CreatedAt) == "" {
		return ErrMissingCreatedAt
	}
	return nil
}

// ValidateThreadID checks that a thread identifier is usable as a scope key.
func ValidateThreadID(threadID string) error {
	if strings.TrimSpace(threadID) == "" || len(threadID) > maxThreadIDLength {
		return ErrInvalidThreadID
	}
	return nil
}

// IsKnownRole reports whether role is one of the four discussion roles.
func IsKnownRole(role Role) bool {
	switch role {
	case RoleDesigner,
		RoleDeveloper,
		RoleProductManager,
		RoleReviewer:
		return true
	default:
		return false
	}
}
