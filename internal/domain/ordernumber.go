package domain

import (
	"crypto/rand"
	"fmt"
	"time"
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewOrderNumber returns ORD-YYYYMMDD-HHMMSS-XXXXXX. The suffix is 30 bits
// of crypto randomness; the store's unique index catches the rest.
func NewOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("order number entropy: %w", err)
	}
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = crockford[b&0x1f]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102-150405"), suffix), nil
}
