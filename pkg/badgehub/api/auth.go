package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/badgeteam/badgehub/pkg/badgehub"
)

var errNoUserIdentity = errors.New("no user identity in token")

// NewTokenAuth builds the JWT verifier used by the private routes. The
// identity provider signs tokens with a shared HS256 secret; the subject
// claim carries the user id.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// userIDFromRequest extracts the authenticated user id from the verified
// token. Must run behind jwtauth.Verifier and jwtauth.Authenticator.
func userIDFromRequest(r *http.Request) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errNoUserIdentity
	}
	return sub, nil
}

// authorizeOwner checks the authenticated user owns the project. It
// writes the error response itself and reports whether to continue.
func authorizeOwner(service badgehub.Service, w http.ResponseWriter, r *http.Request, slug string) bool {
	userID, err := userIDFromRequest(r)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Error: "unauthorized"})
		return false
	}

	details, err := service.GetProject(r.Context(), slug, badgehub.SelectDraft())
	if err != nil {
		writeError(w, r, err)
		return false
	}
	if details.IDPUserID != userID {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Error: "not the project owner"})
		return false
	}
	return true
}
