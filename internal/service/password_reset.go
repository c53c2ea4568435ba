package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
)

// DefaultPasswordResetTTL 为重置链接的默认有效期。
const DefaultPasswordResetTTL = time.Hour

var (
	ErrResetTokenInvalid = errors.New("password reset link is invalid")
	ErrResetTokenExpired = errors.New("password reset link has expired")
)

type resetClaims struct {
	// Fingerprint 绑定签发时的密码哈希，改密后旧链接自动失效
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// PasswordResetService 签发与校验密码重置令牌。
type PasswordResetService struct {
	users  *UserService
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewPasswordResetService creates a PasswordResetService instance.
func NewPasswordResetService(users *UserService, secret string, ttl time.Duration) *PasswordResetService {
	if ttl <= 0 {
		ttl = DefaultPasswordResetTTL
	}
	return &PasswordResetService{users: users, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock 替换时间来源。
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL 返回重置链接有效期。
func (s *PasswordResetService) TTL() time.Duration {
	return s.ttl
}

// Issue 为用户签发重置令牌。
func (s *PasswordResetService) Issue(user *db.User) (string, error) {
	now := s.now()
	claims := resetClaims{
		Fingerprint: passwordFingerprint(user.Password),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// Validate 校验令牌并返回对应用户。
func (s *PasswordResetService) Validate(token string) (*db.User, error) {
	var claims resetClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrResetTokenExpired
		}
		return nil, ErrResetTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrResetTokenInvalid
	}
	user, err := s.users.Get(userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, err
	}
	if user.IsDeleted || passwordFingerprint(user.Password) != claims.Fingerprint {
		return nil, ErrResetTokenInvalid
	}
	return user, nil
}

// Reset 校验令牌后设置新密码，成功后令牌随密码哈希变化而失效。
func (s *PasswordResetService) Reset(token, password, confirm string) (*db.User, error) {
	user, err := s.Validate(token)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetPassword(user.ID, password, confirm); err != nil {
		return nil, err
	}
	return user, nil
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:16])
}
