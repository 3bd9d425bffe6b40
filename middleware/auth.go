package middleware

import (
	"context"
	"net/http"
)

// TokenVerifier resolves the caller of a request.
type TokenVerifier interface {
	UserIDFromRequest(r *http.Request) (string, error)
}

// PresenceTracker records who is signed in.
type PresenceTracker interface {
	Touch(userID string) bool
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller's id in the request context. onSignIn runs whenever a user
// becomes present who was not before.
func AuthMiddleware(verifier TokenVerifier, presence PresenceTracker, onSignIn func(ctx context.Context, userID string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := verifier.UserIDFromRequest(r)
			if err != nil {
				Logger(r.Context()).Warn("Unauthorized request: ", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"error":"Unauthorized"}`))
				return
			}

			if presence.Touch(userID) && onSignIn != nil {
				onSignIn(r.Context(), userID)
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated caller, if any.
func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}
