// Package utils holds small helpers shared by the engine and its glue:
// identifier generation and great-circle geometry.
//
// Go Learning Note ("pkg/" Directory Convention):
// Code under pkg/ is intended to be importable by external projects (unlike
// internal/ which is compiler-enforced private). This is a community convention,
// not a Go language feature.
package utils

import (
	"github.com/google/uuid"
)

// GenerateID creates a new UUID v4 string for transactions and ledger
// entries. Registry entities (books, members, drivers, riders) keep the keys
// their callers register them with.
func GenerateID() string {
	return uuid.New().String()
}

// GeneratePrefixedID returns "<prefix>-<uuid>", which keeps ids readable in
// logs and lets the HTTP layer tell id kinds apart.
func GeneratePrefixedID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
