package util

import (
	"errors"
	"fmt"
	"mock_interview_backend/internal/model"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	UserID      uint           `json:"user_id"`
	Role        model.UserRole `json:"role"`
	Email       string         `json:"email"`
	IsSuperuser bool           `json:"is_superuser"`
	TokenType   string         `json:"token_type"`
	jwt.RegisteredClaims
}

func GenerateJWT(user *model.User, secret string, expiration time.Duration) (string, error) {
	return generateToken(user, secret, expiration, TokenTypeAccess)
}

// GenerateRefreshToken 刷新令牌只用于换取新的访问令牌
func GenerateRefreshToken(user *model.User, secret string, expiration time.Duration) (string, error) {
	return generateToken(user, secret, expiration, TokenTypeRefresh)
}

func generateToken(user *model.User, secret string, expiration time.Duration, tokenType string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      user.ID,
		Role:        user.Role,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get("user")
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
