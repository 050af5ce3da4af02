package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const guestIDPrefix = "guest_"

// DeriveGuestID produces a deterministic pseudo-identity for an
// unauthenticated customer from their email and phone number. The same
// normalized (email, phone) pair always yields the same identity, so repeated
// guest checkouts by one person collapse to a single customer record without
// requiring an account.
func DeriveGuestID(email, phone string) string {
	normalized := strings.ToLower(strings.TrimSpace(email)) + "|" + digitsOnly(phone)
	sum := sha256.Sum256([]byte(normalized))
	return guestIDPrefix + hex.EncodeToString(sum[:])
}

// IsGuestID reports whether the customer id was derived for a guest checkout.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, guestIDPrefix)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
