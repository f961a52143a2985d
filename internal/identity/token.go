// Package identity 签发和校验玩家身份令牌
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wfunc/ai-imposter/internal/config"
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// PlayerClaims 玩家令牌，Subject 即玩家ID
type PlayerClaims struct {
	jwt.RegisteredClaims
}

// PlayerID 玩家ID
func (c *PlayerClaims) PlayerID() string { return c.Subject }

// Manager 玩家令牌管理器
type Manager struct {
	secretKey []byte
	issuer    string
	expiry    time.Duration
}

// NewManager 创建令牌管理器
func NewManager(secret, issuer string, expiry time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secret),
		issuer:    issuer,
		expiry:    expiry,
	}
}

// NewManagerFromConfig 按安全配置创建
func NewManagerFromConfig(cfg config.JWTConfig) *Manager {
	return NewManager(cfg.Secret, cfg.Issuer, time.Duration(cfg.ExpireHours)*time.Hour)
}

// Expiry 令牌有效期
func (m *Manager) Expiry() time.Duration { return m.expiry }

// NewPlayerID 生成新的玩家ID
func NewPlayerID() string {
	return uuid.NewString()
}

// Issue 为玩家签发令牌，playerID 为空时生成新ID
func (m *Manager) Issue(playerID string) (token, id string, err error) {
	id = strings.TrimSpace(playerID)
	if id == "" {
		id = NewPlayerID()
	}
	now := time.Now()
	claims := &PlayerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   id,
			ID:        uuid.NewString(),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.ErrInternal, "签发令牌失败")
	}
	return token, id, nil
}

// Validate 校验令牌
func (m *Manager) Validate(tokenString string) (*PlayerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PlayerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}

	claims, ok := token.Claims.(*PlayerClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid)
	}
	return claims, nil
}
