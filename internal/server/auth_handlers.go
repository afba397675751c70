package server

import (
	"github.com/gin-gonic/gin"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

type smsSendRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type smsVerifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type exchangeRequest struct {
	OneTimeCode string `json:"one_time_code" binding:"required"`
}

type userView struct {
	ID        string  `json:"id"`
	Nickname  *string `json:"nickname"`
	AvatarURL *string `json:"avatar_url"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Nickname: u.Nickname, AvatarURL: u.AvatarURL}
}

type loginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	User         userView `json:"user"`
}

// bind decodes the JSON body, answering 400 on failure.
func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.respondError(c, sserr.Wrap(err, sserr.CodeValidation, "server: invalid request body"))
		return false
	}
	return true
}

func (s *Server) handleSMSSend(c *gin.Context) {
	var req smsSendRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.deps.OTP.Send(c.Request.Context(), req.Phone, c.ClientIP()); err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"sent": true})
}

func (s *Server) handleSMSVerify(c *gin.Context) {
	var req smsVerifyRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	_, ok, err := s.deps.OTP.Verify(ctx, req.Phone, req.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !ok {
		s.respondError(c, sserr.New(sserr.CodeOTPInvalid, "server: otp did not verify"))
		return
	}

	userID, err := s.deps.Identities.ResolveOrCreate(ctx, models.ProviderPhone, req.Phone, identity.Profile{})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondLogin(c, userID)
}

// respondLogin issues a token pair for userID and answers with the pair
// and the user profile.
func (s *Server) respondLogin(c *gin.Context, userID string) {
	ctx := c.Request.Context()
	user, err := s.deps.Identities.User(ctx, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	pair, err := s.deps.Tokens.IssuePair(ctx, user.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         newUserView(user),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if !s.bind(c, &req) {
		return
	}
	newRaw, userID, err := s.deps.Tokens.Rotate(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	access, err := s.deps.Tokens.IssueAccessToken(userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"access_token": access, "refresh_token": newRaw})
}

func (s *Server) handleLogout(c *gin.Context) {
	var req refreshRequest
	if !s.bind(c, &req) {
		return
	}
	revoked, err := s.deps.Tokens.Revoke(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"revoked": revoked})
}

func (s *Server) handleExchange(c *gin.Context) {
	var req exchangeRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	userID, err := s.deps.Sessions.GetDel(ctx, exchangeKey(req.OneTimeCode))
	if sserr.IsNotFound(err) || (err == nil && userID == "") {
		s.respondError(c, sserr.New(sserr.CodeExchangeCodeInvalid, "server: unknown exchange code"))
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondLogin(c, userID)
}
