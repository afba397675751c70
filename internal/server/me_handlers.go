package server

import (
	"github.com/gin-gonic/gin"

	"github.com/StricklySoft/learnhub-auth/pkg/auth"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
)

// handleMe resolves the caller to a local user. Legacy principals already
// carry the user id; external and dev principals go through the
// provisioner, which creates the user on first access.
func (s *Server) handleMe(c *gin.Context) {
	ctx := c.Request.Context()
	p := auth.MustPrincipalFromContext(ctx)

	userID := p.Subject
	if p.Source != auth.SourceLegacy {
		var err error
		userID, err = s.deps.Identities.ResolveOrCreate(ctx, s.cfg.AuthProvider, p.Subject, identity.ProfileFromClaims(p.Claims))
		if err != nil {
			s.respondError(c, err)
			return
		}
	}

	user, err := s.deps.Identities.User(ctx, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, newUserView(user))
}

// handleHealthz answers "ok" while the process is running and every
// dependency responds, and 503 with the per-dependency report otherwise.
func (s *Server) handleHealthz(c *gin.Context) {
	if s.deps.Health == nil {
		respondOK(c, messageOK)
		return
	}
	report, err := s.deps.Health.Health(c.Request.Context())
	if err != nil {
		s.respondErrorData(c, err, report)
		return
	}
	respondOK(c, messageOK)
}
