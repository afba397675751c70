package server

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/identity"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

// WeChat web login defaults.
const (
	DefaultWeChatAuthorizeURL = "https://open.weixin.qq.com/connect/qrconnect"
	DefaultWeChatRedirectURI  = "http://localhost:8000/api/v1/auth/wechat/web/callback"
	DefaultFrontendCallback   = "http://localhost:3000/auth/callback"
	DefaultWeChatStateTTL     = 300 * time.Second
)

// WeChatConfig configures the WeChat QR-connect login. In mock mode the
// callback trusts the code and derives the openid from it.
type WeChatConfig struct {
	AppID               string
	Mock                bool
	AuthorizeURL        string
	RedirectURI         string
	FrontendCallbackURL string
	StateTTL            time.Duration
}

func (c WeChatConfig) withDefaults() WeChatConfig {
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = DefaultWeChatAuthorizeURL
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultWeChatRedirectURI
	}
	if c.FrontendCallbackURL == "" {
		c.FrontendCallbackURL = DefaultFrontendCallback
	}
	if c.StateTTL <= 0 {
		c.StateTTL = DefaultWeChatStateTTL
	}
	return c
}

func stateKey(state string) string {
	return "wechat_state:" + state
}

func exchangeKey(code string) string {
	return "wechat_exchange:" + code
}

// randomToken returns 16 random bytes, base64url encoded.
func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Server) handleWeChatAuthorize(c *gin.Context) {
	state, err := randomToken()
	if err != nil {
		s.respondError(c, sserr.Wrap(err, sserr.CodeInternal, "server: failed to generate state"))
		return
	}
	if err := s.deps.Sessions.Set(c.Request.Context(), stateKey(state), "1", s.cfg.WeChat.StateTTL); err != nil {
		s.respondError(c, err)
		return
	}

	q := url.Values{}
	q.Set("appid", s.cfg.WeChat.AppID)
	q.Set("redirect_uri", s.cfg.WeChat.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "snsapi_login")
	q.Set("state", state)
	c.Redirect(http.StatusFound, s.cfg.WeChat.AuthorizeURL+"?"+q.Encode()+"#wechat_redirect")
}

type weChatCallbackQuery struct {
	Code  string `form:"code" binding:"required"`
	State string `form:"state" binding:"required"`
}

func (s *Server) handleWeChatCallback(c *gin.Context) {
	var q weChatCallbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.respondError(c, sserr.Wrap(err, sserr.CodeValidation, "server: invalid callback query"))
		return
	}
	ctx := c.Request.Context()

	if _, err := s.deps.Sessions.GetDel(ctx, stateKey(q.State)); err != nil {
		if sserr.IsNotFound(err) {
			s.respondErrorMessage(c, sserr.Validation("server: unknown wechat state"), "invalid state")
			return
		}
		s.respondError(c, err)
		return
	}

	openID := "wechat-" + q.Code
	if s.cfg.WeChat.Mock {
		openID = "mock-" + q.Code
	}
	userID, err := s.deps.Identities.ResolveOrCreate(ctx, models.ProviderWeChatWeb, openID, identity.Profile{})
	if err != nil {
		s.respondError(c, err)
		return
	}

	oneTime, err := randomToken()
	if err != nil {
		s.respondError(c, sserr.Wrap(err, sserr.CodeInternal, "server: failed to generate exchange code"))
		return
	}
	if err := s.deps.Sessions.Set(ctx, exchangeKey(oneTime), userID, s.cfg.WeChat.StateTTL); err != nil {
		s.respondError(c, err)
		return
	}

	redirect, err := url.Parse(s.cfg.WeChat.FrontendCallbackURL)
	if err != nil {
		s.respondError(c, sserr.Wrap(err, sserr.CodeInternalConfiguration, "server: invalid frontend callback url"))
		return
	}
	values := redirect.Query()
	values.Set("code", oneTime)
	redirect.RawQuery = values.Encode()
	c.Redirect(http.StatusFound, redirect.String())
}
