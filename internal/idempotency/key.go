package idempotency

import (
	"errors"
	"fmt"
)

const maxKeyLength = 50

// ErrInvalidKey marks a malformed client-supplied idempotency key.
// Handlers map it to a 400 response.
var ErrInvalidKey = errors.New("invalid idempotency key")

// Key is a validated idempotency key: 1-50 printable ASCII characters.
type Key struct {
	value string
}

// ParseKey validates a raw idempotency key. Rejected keys never reach
// the store, so a malformed key costs no database round trip.
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return Key{}, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if len(raw) > maxKeyLength {
		return Key{}, fmt.Errorf("%w: key exceeds %d characters", ErrInvalidKey, maxKeyLength)
	}
	for _, b := range []byte(raw) {
		if b < 0x20 || b > 0x7e {
			return Key{}, fmt.Errorf("%w: key contains non-printable character", ErrInvalidKey)
		}
	}
	return Key{value: raw}, nil
}

func (k Key) String() string {
	return k.value
}
