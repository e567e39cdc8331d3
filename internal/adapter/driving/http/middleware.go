package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
)

const (
	accessCookie       = "accessToken"
	refreshCookie      = "refreshToken"
	notLoggedInMessage = "User is not logged in"
)

type ctxKey int

const userKey ctxKey = iota

func userFrom(ctx context.Context) (domain.UserID, bool) {
	id, ok := ctx.Value(userKey).(domain.UserID)
	return id, ok && !id.IsZero()
}

// authenticate resolves the caller from the access cookie or a bearer token.
// With only a refresh cookie present a fresh access cookie is minted.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if access := accessToken(r); access != "" {
			id, err := h.Users.Authenticate(ctx, access)
			if err != nil {
				log.Warn().Err(err).Msg("Rejected access token")
				writeJSON(w, http.StatusUnauthorized, envelope{Message: notLoggedInMessage})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userKey, id)))
			return
		}

		cookie, err := r.Cookie(refreshCookie)
		if err != nil || cookie.Value == "" {
			log.Warn().Msg(notLoggedInMessage)
			writeJSON(w, http.StatusUnauthorized, envelope{Message: notLoggedInMessage})
			return
		}

		id, access, err := h.Users.Refresh(ctx, cookie.Value)
		if err != nil {
			log.Warn().Err(err).Msg("Error in recreating tokens from refresh token")
			writeError(w, err)
			return
		}
		h.setCookie(w, accessCookie, access, h.opts.AccessTTL)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userKey, id)))
	})
}

func accessToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(accessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Secure:   h.opts.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.opts.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}
