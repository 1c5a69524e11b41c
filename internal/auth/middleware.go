package auth

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// MatchesServiceToken reports whether the presented token equals the
// configured service token, compared in constant time.
func MatchesServiceToken(token, serviceToken string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(serviceToken)) == 1
}

// RequireToken returns middleware that checks for a valid bearer token in the
// Authorization header. The CRM frontend calls this service with a shared
// service token; anything else gets 401 Unauthorized.
func RequireToken(serviceToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" {
				log.Println("Auth: No Authorization header present")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Parse Authorization header: "Bearer <token>" (RFC 7235).
			// Bearer scheme is case-insensitive per the RFC.
			fields := strings.Fields(authHeader)
			if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
				log.Println("Auth: Invalid Authorization header format")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token := strings.TrimSpace(fields[1])
			if !MatchesServiceToken(token, serviceToken) {
				log.Println("Auth: Token rejected")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
