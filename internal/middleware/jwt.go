package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// Claims represents the interviewer's JWT claims.
type Claims struct {
	InterviewerID string `json:"interviewer_id"`
	DisplayName   string `json:"display_name"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for an interviewer.
func GenerateToken(interviewerID, displayName string, config JWTConfig) (string, error) {
	claims := Claims{
		InterviewerID: interviewerID,
		DisplayName:   displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(config.Expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.Secret))
}

// JWTMiddleware creates a Gin middleware authenticating interviewer
// bearer tokens.
func JWTMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid authorization header format"})
			c.Abort()
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(*Claims); ok && token.Valid {
			c.Set("interviewer_id", claims.InterviewerID)
			c.Set("display_name", claims.DisplayName)
			c.Next()
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token claims"})
			c.Abort()
		}
	}
}

// GetInterviewerID extracts the interviewer ID from the request context.
func GetInterviewerID(c *gin.Context) string {
	id, _ := c.Get("interviewer_id")
	s, _ := id.(string)
	return s
}

// GetDisplayName extracts the interviewer display name from the request
// context.
func GetDisplayName(c *gin.Context) string {
	name, _ := c.Get("display_name")
	s, _ := name.(string)
	return s
}
