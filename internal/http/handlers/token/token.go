// Package token contains the session-token handler.
package token

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/aanand-mishra/coursemart-api/internal/utils/request"
	"github.com/aanand-mishra/coursemart-api/internal/utils/response"
)

// Issuer signs session tokens.
type Issuer interface {
	Issue(email string) (string, error)
}

type issueRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Issue handles POST /jwt
//
// Request body (JSON):
//
//	{ "email": "alice@example.com" }
//
// Success response (200 OK):
//
//	{ "token": "eyJhbGciOiJIUzI1NiIs..." }
//
// The token expires after one hour.
// ─────────────────────────────────────────────────────────────────────────────
func Issue(tokens Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body issueRequest
		if !request.DecodeJSON(w, r, &body) {
			return
		}
		body.Email = strings.TrimSpace(body.Email)
		if !request.Validate(w, body) {
			return
		}

		signed, err := tokens.Issue(body.Email)
		if err != nil {
			response.WriteError(w, err)
			return
		}

		slog.Debug("token issued", slog.String("email", body.Email))
		response.WriteJSON(w, http.StatusOK, map[string]string{"token": signed})
	}
}
