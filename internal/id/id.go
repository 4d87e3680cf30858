// Package id generates random identifiers for requests and agent handoffs.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// New returns an alphanumeric nanoid of the given length.
func New(size int) string {
	id, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return id
}

// Request returns a 16-character identifier used to correlate log lines
// belonging to one HTTP request.
func Request() string {
	return New(16)
}

// Handoff returns a 24-character identifier used to name handoff files.
// It is long enough that concurrent invocations never collide.
func Handoff() string {
	return New(24)
}
