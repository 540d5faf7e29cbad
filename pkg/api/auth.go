package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// bearerAuth guards routes with opaque bearer tokens. Tokens are compared
// by SHA-256 digest in constant time, so neither content nor length leaks
// through timing. An empty token list disables the check entirely;
// NewServer warns about that once at startup.
//
// allowQueryToken additionally accepts a token query parameter, which the
// WebSocket route needs because browser clients cannot set request headers.
func bearerAuth(tokens []string, allowQueryToken bool) gin.HandlerFunc {
	digests := make([][sha256.Size]byte, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		digests = append(digests, sha256.Sum256([]byte(t)))
	}

	return func(c *gin.Context) {
		if len(digests) == 0 {
			c.Next()
			return
		}

		presented := extractToken(c, allowQueryToken)
		if presented == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		sum := sha256.Sum256([]byte(presented))
		for _, d := range digests {
			if subtle.ConstantTimeCompare(d[:], sum[:]) == 1 {
				c.Next()
				return
			}
		}
		unauthorized(c, "invalid bearer token")
	}
}

func extractToken(c *gin.Context, allowQueryToken bool) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return token
	}
	if allowQueryToken {
		return c.Query("token")
	}
	return ""
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
		Code:          "unauthorized",
		Message:       message,
		CorrelationID: requestIDFrom(c),
	})
}
