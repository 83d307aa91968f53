// Package auth provides basic and bearer-token authentication for the
// endpoints served in exporter mode.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/probekit/reachprobe/config"

	jwt "github.com/golang-jwt/jwt/v4"
)

// Auth wraps h with the authentication methods enabled in the configuration.
// The configuration is read through sc on every request so that a reload
// takes effect without restarting the server.
func Auth(h http.Handler, sc *config.SafeConfig, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc.RLock()
		authConfig := sc.C.Auth
		sc.RUnlock()

		// Basic authentication
		if authConfig.Basic.Enabled {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)

			username, password, authOK := r.BasicAuth()
			if !authOK {
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}

			if username != authConfig.Basic.Username || password != string(authConfig.Basic.Password) {
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}
		}

		// Authentication using bearer token
		if authConfig.Bearer.Enabled {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}

			authHeaderParts := strings.Split(authHeader, " ")
			if len(authHeaderParts) != 2 || strings.ToLower(authHeaderParts[0]) != "bearer" {
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}

			if err := checkJWT(authHeaderParts[1], string(authConfig.Bearer.SigningSecret)); err != nil {
				logger.Debug("Invalid bearer token", slog.Any("error", err))
				http.Error(w, "Not authorized", http.StatusUnauthorized)
				return
			}
		}

		h.ServeHTTP(w, r)
	})
}

// checkJWT validates jwt tokens
func checkJWT(jwtToken, signingSecret string) error {
	token, err := jwt.Parse(jwtToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return []byte(signingSecret), nil
	})
	if err != nil {
		return err
	}

	if !token.Valid {
		return errors.New("invalid token")
	}

	return nil
}
