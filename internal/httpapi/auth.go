package httpapi

import (
	"net/http"
	"strings"

	"github.com/antoniostano/huddle/internal/auth"
)

// accessTokenParam carries a bearer token for requests a browser cannot add
// headers to (websocket upgrades and audio element sources).
const accessTokenParam = "access_token"

func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header
		if tok := strings.TrimSpace(r.URL.Query().Get(accessTokenParam)); tok != "" && header.Get("Authorization") == "" {
			header = header.Clone()
			header.Set("Authorization", "Bearer "+tok)
		}
		if s.auth == nil {
			respondError(w, http.StatusUnauthorized, "sign_in_required", "sign in required")
			return
		}
		who, err := s.auth.GetSession(r.Context(), header)
		if err != nil {
			s.log.Warn().Err(err).Msg("session lookup failed")
			respondError(w, http.StatusUnauthorized, "sign_in_required", "sign in required")
			return
		}
		if who == nil {
			respondError(w, http.StatusUnauthorized, "sign_in_required", "sign in required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), *who)))
	})
}

func identity(r *http.Request) auth.Identity {
	who, _ := auth.FromContext(r.Context())
	return who
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, identity(r))
}
