package handlers

import (
	"net/http"

	"github.com/BradenHooton/scribe/internal/auth"
	"github.com/BradenHooton/scribe/internal/models"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// actorFromRequest identifies the admin making the request for audit entries
func actorFromRequest(r *http.Request, ipConfig *pkghttp.IPConfig) models.Actor {
	actor := models.Actor{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: pkghttp.UserAgent(r),
	}
	if claims := auth.GetUserFromContext(r); claims != nil {
		actor.ID = claims.UserID
		if id, err := uuid.Parse(claims.UserID); err == nil {
			actor.ID = id.String()
		}
	}
	return actor
}

// idParam returns the canonical form of a UUID path parameter
func idParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid "+name)
		return "", false
	}
	return id.String(), true
}
