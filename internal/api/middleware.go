package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/sneakerbid/internal/identity"
)

const (
	authorizationHeaderKey  = "Authorization"
	authorizationTypeBearer = "Bearer"
	authorizationUserKey    = "authUser"
)

// authMiddleware verifies the bearer token and stores the caller in the
// request context.
func authMiddleware(tokens *identity.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authorizationHeaderKey)
		if header == "" {
			err := errors.New("authorization header is not provided")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		fields := strings.Fields(header)
		if len(fields) != 2 {
			err := errors.New("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}
		if !strings.EqualFold(fields[0], authorizationTypeBearer) {
			err := errors.New("unsupported authorization header type")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		user, err := tokens.Verify(fields[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(identity.ErrInvalidToken))
			return
		}

		c.Set(authorizationUserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *identity.User {
	return c.MustGet(authorizationUserKey).(*identity.User)
}
