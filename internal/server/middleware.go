package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studio-checkout/internal/apperr"
	"studio-checkout/internal/domain"
)

const (
	sessionHeader = "X-Session-ID"
	identityKey   = "identity"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request")
		case c.Writer.Status() >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

// identify resolves the caller. A bearer token must be valid when present;
// otherwise the guest checkout session header is used, and a request with
// neither proceeds anonymously for the services to reject as they see fit.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		var id domain.Identity

		if header := c.GetHeader("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				fail(c, apperr.Unauthorized("malformed authorization header"))
				return
			}
			verified, err := s.deps.Tokens.Verify(token)
			if err != nil {
				log.WithError(err).Debug("token rejected")
				fail(c, apperr.Unauthorized("invalid or expired token"))
				return
			}
			id = verified
		}

		if session := c.GetHeader(sessionHeader); session != "" {
			if len(session) < 8 || len(session) > 128 {
				fail(c, apperr.Validation("checkout session id must be 8 to 128 characters"))
				return
			}
			id.SessionID = session
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := caller(c)
		if !id.Authenticated() {
			fail(c, apperr.Unauthorized("sign in required"))
			return
		}
		if !id.IsAdmin() {
			fail(c, apperr.Forbidden("admin only"))
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}

// fail renders the error envelope. Causes are logged, never returned.
func fail(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindUpstream {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	if appErr.Kind == apperr.KindRateLimited && appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	c.AbortWithStatusJSON(appErr.Kind.HTTPStatus(), errorEnvelope{
		Success: false,
		Error:   errorBody{Code: appErr.Kind.Code(), Message: appErr.Message},
	})
}

// bind decodes and validates the JSON body, turning validator output into
// a short client message.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperr.Validation(bindingMessage(err)))
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "malformed request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// bodyID parses a uuid carried in a request body field.
func bodyID(c *gin.Context, field, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		fail(c, apperr.Validation(field+" must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}
