// Package id generates the identifiers used across user, file and comment
// records.
package id

import "github.com/oklog/ulid/v2"

// New returns a fresh ULID string. Creation-time ordering keeps newest-first
// comment listings cheap, and the fixed 26-character form is safe as a
// DynamoDB key.
func New() string {
	return ulid.Make().String()
}
