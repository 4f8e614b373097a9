package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/pkg/response"
)

const signerKey = "signer"

var ErrInvalidToken = errors.New("invalid token")

// Claims token 绑定一个签名账户
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// GenerateToken 签发 HS256 token
func GenerateToken(secret string, addr chain.Address, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Address: addr.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, exp, err
}

// ParseToken 校验签名与过期时间，返回绑定的地址
func ParseToken(secret, raw string) (chain.Address, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return chain.ZeroAddress, errors.Join(ErrInvalidToken, err)
	}
	addr, err := chain.ParseAddress(claims.Address)
	if err != nil {
		return chain.ZeroAddress, errors.Join(ErrInvalidToken, err)
	}
	return addr, nil
}

// Auth 要求 Authorization: Bearer <token>，且地址仍是链上账户
func Auth(secret string, isSigner func(chain.Address) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		addr, err := ParseToken(secret, raw)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}
		if !isSigner(addr) {
			response.Forbidden(c, "address is not a signer on this chain")
			return
		}
		c.Set(signerKey, addr)
		c.Next()
	}
}

// Signer 取出 Auth 写入的地址
func Signer(c *gin.Context) (chain.Address, bool) {
	v, ok := c.Get(signerKey)
	if !ok {
		return chain.ZeroAddress, false
	}
	addr, ok := v.(chain.Address)
	return addr, ok
}
