package metaapi

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

const requestIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const requestIDLength = 32

// randomRequestID returns a 32 character random alphanumeric request id.
func randomRequestID() string {
	b := make([]byte, requestIDLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, v := range b {
		b[i] = requestIDAlphabet[int(v)%len(requestIDAlphabet)]
	}
	return string(b)
}

// newClientID returns the value of the Client-id header sent on every dial.
func newClientID() string {
	return ulid.Make().String()
}
