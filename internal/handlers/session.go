package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maplecart/api/internal/platform/auth"
)

const (
	cartSessionCookie     = "cart_session"
	wishlistSessionCookie = "wishlist_session"

	cartSessionTTL     = 30 * 24 * time.Hour
	wishlistSessionTTL = 365 * 24 * time.Hour
)

// resolveOwner returns the key carts and wishlists are stored under. An
// authenticated identity wins; otherwise the session cookie is used, minting
// one when absent. Guest and account carts are intentionally never merged.
func resolveOwner(w http.ResponseWriter, r *http.Request, cookieName string, ttl time.Duration, newID func() string) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return strings.TrimSpace(identity.UID)
	}

	if cookie, err := r.Cookie(cookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}

	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	session := "sess_" + newID()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    session,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session
}

// cartOwnerFromRequest resolves the cart owner without minting a session.
// Used when clearing the cart after checkout.
func cartOwnerFromRequest(ctx context.Context, r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return strings.TrimSpace(identity.UID)
	}
	if cookie, err := r.Cookie(cartSessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
