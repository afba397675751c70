package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// Envelope wraps every JSON response. Code is 0 on success and the HTTP
// status otherwise.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	RequestID string `json:"request_id"`
}

const messageOK = "ok"

// publicMessages are the only error messages clients see. Anything not
// listed falls back to the status text.
var publicMessages = map[sserr.Code]string{
	sserr.CodeValidation:          "validation_error",
	sserr.CodeValidationRequired:  "validation_error",
	sserr.CodeValidationFormat:    "validation_error",
	sserr.CodeOTPInvalid:          "invalid code",
	sserr.CodeExchangeCodeInvalid: "invalid code",
	sserr.CodeAuthentication:      "missing token",
	sserr.CodeTokenVerification:   "invalid token",
	sserr.CodeKeyFetch:            "invalid token",
	sserr.CodeKeyNotFound:         "invalid token",
	sserr.CodeLegacyToken:         "invalid token",
	sserr.CodeRefreshTokenInvalid: "invalid refresh token",
	sserr.CodeAuthorizationHeader: "invalid authorization header",
	sserr.CodeRateLimited:         "rate limit",
	sserr.CodeNotFoundUser:        "user not found",
	sserr.CodeProvisioning:        "identity creation failed",
}

func publicMessage(e *sserr.Error) string {
	if msg, ok := publicMessages[e.Code]; ok {
		return msg
	}
	return strings.ToLower(http.StatusText(e.HTTPStatus()))
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{
		Code:      0,
		Message:   messageOK,
		Data:      data,
		RequestID: RequestID(c),
	})
}

// respondError writes err as an enveloped error and aborts the chain.
// The HTTP status comes from the error code; server errors are logged
// with their cause.
func (s *Server) respondError(c *gin.Context, err error) {
	s.respondErrorData(c, err, nil)
}

func (s *Server) respondErrorData(c *gin.Context, err error, data any) {
	s.writeError(c, err, "", data)
}

// respondErrorMessage is respondError with an explicit client message.
func (s *Server) respondErrorMessage(c *gin.Context, err error, message string) {
	s.writeError(c, err, message, nil)
}

func (s *Server) writeError(c *gin.Context, err error, message string, data any) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()
	if message == "" {
		message = publicMessage(e)
	}

	attrs := []any{
		"request_id", RequestID(c),
		"code", e.Code.String(),
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "server: request failed", attrs...)
	} else {
		s.logger.DebugContext(c.Request.Context(), "server: request rejected", attrs...)
	}

	c.AbortWithStatusJSON(status, Envelope{
		Code:      status,
		Message:   message,
		Data:      data,
		RequestID: RequestID(c),
	})
}

// gatewayResponder adapts respondError to the auth gateway's gin
// middleware.
func (s *Server) gatewayResponder(c *gin.Context, err *sserr.Error) {
	s.respondError(c, err)
}
