// Package ids generates the 128-bit identifiers used throughout cdpfleet.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID returns a time-ordered 128-bit session identifier (UUIDv7),
// so that index locality holds for the relational store's primary key the
// same way a ULID would, without adding a second ID library to the stack.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("generate session id: %v", err))
	}
	return id.String()
}

// NewTenantID returns a new tenant identifier. Tenant IDs don't need time
// ordering (they aren't used as an index-locality key the way sessions
// are), but UUIDv4 keeps the format identical for storage and parsing.
func NewTenantID() string {
	return uuid.NewString()
}

// ZeroTenantID is the fixed tenant identifier returned by the local
// development auth provider.
const ZeroTenantID = "00000000-0000-0000-0000-000000000000"

// Valid reports whether s parses as a UUID in canonical string form.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
