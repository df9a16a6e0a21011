package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	authorizationHeaderKey  = "authorization"
	authorizationTypeBearer = "bearer"
	clientContextKey        = "client"
)

// authentication guards the v1 routes with a bearer API key checked against
// the configured bcrypt hash. With no hash configured the routes are open
// and clients are identified by IP for rate limiting.
func (server *Server) authentication(c *gin.Context) {
	if server.keyHash == "" {
		c.Set(clientContextKey, c.ClientIP())
		c.Next()
		return
	}

	authorizationHeader := c.GetHeader(authorizationHeaderKey)

	if len(authorizationHeader) == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("authorization header is not provided")))
		return
	}

	fields := strings.Fields(authorizationHeader)
	if len(fields) < 2 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("invalid authorization header format")))
		return
	}

	authorizationType := strings.ToLower(fields[0])
	if authorizationType != authorizationTypeBearer {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(fmt.Errorf("unsupported authorization type: %s", authorizationType)))
		return
	}

	apiKey := fields[1]
	if err := bcrypt.CompareHashAndPassword([]byte(server.keyHash), []byte(apiKey)); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errors.New("please input a valid API Key")))
		return
	}

	client := apiKey
	if len(client) > 8 {
		client = client[:8]
	}
	c.Set(clientContextKey, client)
	c.Next()
}

// clientKey identifies the caller of the current request for rate limiting.
func clientKey(c *gin.Context) string {
	if v, ok := c.Get(clientContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.ClientIP()
}
