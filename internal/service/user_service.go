package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// DefaultVerificationTTL 为邮箱验证链接的默认有效期。
	DefaultVerificationTTL = 24 * time.Hour
	minPasswordLength      = 8
	verificationTokenBytes = 48
)

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrEmailNotVerified         = errors.New("email address is not verified")
	ErrInvalidEmail             = errors.New("invalid email address")
	ErrUsernameRequired         = errors.New("username is required")
	ErrEmailTaken               = errors.New("email is already registered")
	ErrUsernameTaken            = errors.New("username is already taken")
	ErrPasswordTooShort         = errors.New("password is too short")
	ErrPasswordMismatch         = errors.New("passwords do not match")
	ErrWrongPassword            = errors.New("current password is incorrect")
	ErrVerificationTokenInvalid = errors.New("verification token is invalid")
	ErrVerificationTokenExpired = errors.New("verification token has expired")
	ErrEmailAlreadyVerified     = errors.New("email address is already verified")
)

// RegisterInput 为注册表单字段。
type RegisterInput struct {
	Email           string
	Username        string
	Password        string
	PasswordConfirm string
}

// UserService 负责账号、登录与邮箱验证令牌。
type UserService struct {
	db              *gorm.DB
	verificationTTL time.Duration
	now             func() time.Time
}

// NewUserService creates a UserService instance.
func NewUserService(gdb *gorm.DB, verificationTTL time.Duration) *UserService {
	if verificationTTL <= 0 {
		verificationTTL = DefaultVerificationTTL
	}
	return &UserService{db: gdb, verificationTTL: verificationTTL, now: time.Now}
}

// WithClock 替换时间来源，测试中用于模拟令牌过期。
func (s *UserService) WithClock(now func() time.Time) *UserService {
	if now != nil {
		s.now = now
	}
	return s
}

// VerificationTTL 返回验证链接有效期。
func (s *UserService) VerificationTTL() time.Duration {
	return s.verificationTTL
}

// Get fetches a user by id.
func (s *UserService) Get(id uuid.UUID) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail 按规范化后的邮箱查找未注销用户。
func (s *UserService) FindByEmail(email string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("email = ? AND is_deleted = ?", db.NormalizeEmail(email), false).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Register 创建未验证账号并签发验证令牌，返回用户与令牌。
func (s *UserService) Register(input RegisterInput) (*db.User, string, error) {
	email, err := validateEmail(input.Email)
	if err != nil {
		return nil, "", err
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, "", ErrUsernameRequired
	}
	if err := validateNewPassword(input.Password, input.PasswordConfirm); err != nil {
		return nil, "", err
	}

	if taken, err := s.exists("email = ?", email); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrEmailTaken
	}
	if taken, err := s.exists("username = ?", username); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrUsernameTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	token, err := generateVerificationToken()
	if err != nil {
		return nil, "", err
	}
	issuedAt := s.now()

	user := db.User{
		Email:                           email,
		Username:                        username,
		Password:                        string(hashed),
		EmailVerificationToken:          &token,
		EmailVerificationTokenCreatedAt: &issuedAt,
	}
	if err := s.db.Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, "", s.conflictError(email, username, uuid.Nil)
		}
		return nil, "", err
	}
	return &user, token, nil
}

// Authenticate 校验邮箱与密码，未验证邮箱的账号拒绝登录。
func (s *UserService) Authenticate(email, password string) (*db.User, error) {
	user, err := s.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return user, ErrEmailNotVerified
	}
	return user, nil
}

// IssueVerificationToken 生成新令牌并覆盖旧令牌与签发时间。
func (s *UserService) IssueVerificationToken(user *db.User) (string, error) {
	token, err := generateVerificationToken()
	if err != nil {
		return "", err
	}
	issuedAt := s.now()

	if err := s.db.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"email_verification_token":            token,
		"email_verification_token_created_at": issuedAt,
	}).Error; err != nil {
		return "", err
	}
	user.EmailVerificationToken = &token
	user.EmailVerificationTokenCreatedAt = &issuedAt
	return token, nil
}

// VerifyEmail 消费验证令牌：令牌必须存在且未过期，成功后清空令牌并标记已验证。
// 过期时返回用户，便于调用方引导重新发送。
func (s *UserService) VerifyEmail(token string) (*db.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationTokenInvalid
	}

	var user db.User
	if err := s.db.Where("email_verification_token = ? AND is_deleted = ?", token, false).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, err
	}

	if user.IsEmailVerified {
		if err := s.clearVerificationToken(&user, true); err != nil {
			return nil, err
		}
		return &user, ErrEmailAlreadyVerified
	}

	if !user.IsVerificationTokenValid(token, s.now(), s.verificationTTL) {
		return &user, ErrVerificationTokenExpired
	}

	if err := s.clearVerificationToken(&user, true); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) clearVerificationToken(user *db.User, verified bool) error {
	if err := s.db.Model(&db.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"is_email_verified":                   verified,
		"email_verification_token":            nil,
		"email_verification_token_created_at": nil,
	}).Error; err != nil {
		return err
	}
	user.IsEmailVerified = verified
	user.EmailVerificationToken = nil
	user.EmailVerificationTokenCreatedAt = nil
	return nil
}

// ResendVerification 为未验证账号重新签发令牌。
// 邮箱不存在时返回 (nil, "", nil)，调用方不应暴露账号是否存在。
func (s *UserService) ResendVerification(email string) (*db.User, string, error) {
	user, err := s.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if user.IsEmailVerified {
		return user, "", ErrEmailAlreadyVerified
	}

	token, err := s.IssueVerificationToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// UpdateProfile 修改用户名与邮箱，两者都需唯一。
func (s *UserService) UpdateProfile(id uuid.UUID, username, email string) (*db.User, error) {
	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	normalized, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return nil, ErrUsernameRequired
	}

	if taken, err := s.exists("email = ? AND id <> ?", normalized, id); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.exists("username = ? AND id <> ?", trimmed, id); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	user.Username = trimmed
	user.Email = normalized
	if err := s.db.Model(&db.User{}).Where("id = ?", id).Updates(map[string]any{
		"username": trimmed,
		"email":    normalized,
	}).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return nil, s.conflictError(normalized, trimmed, id)
		}
		return nil, err
	}
	return user, nil
}

// ChangePassword 校验旧密码后设置新密码。
func (s *UserService) ChangePassword(id uuid.UUID, oldPassword, newPassword, confirm string) error {
	user, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}
	return s.SetPassword(id, newPassword, confirm)
}

// SetPassword 直接设置新密码，用于密码重置。
func (s *UserService) SetPassword(id uuid.UUID, newPassword, confirm string) error {
	if err := validateNewPassword(newPassword, confirm); err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res := s.db.Model(&db.User{}).Where("id = ?", id).Update("password", string(hashed))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SoftDelete 标记账号为已注销，评论保留但作者显示为占位名称。
func (s *UserService) SoftDelete(id uuid.UUID) error {
	now := s.now()
	res := s.db.Model(&db.User{}).Where("id = ? AND is_deleted = ?", id, false).Updates(map[string]any{
		"is_deleted": true,
		"deleted_at": now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// conflictError 在写入遇到唯一约束冲突后重新查询，确定是邮箱还是用户名被并发占用。
// 翻译后的驱动错误不带列名，只能回查。
func (s *UserService) conflictError(email, username string, self uuid.UUID) error {
	if taken, err := s.exists("email = ? AND id <> ?", email, self); err == nil && taken {
		return ErrEmailTaken
	}
	if taken, err := s.exists("username = ? AND id <> ?", username, self); err == nil && taken {
		return ErrUsernameTaken
	}
	return ErrEmailTaken
}

func (s *UserService) exists(query string, args ...any) (bool, error) {
	var count int64
	if err := s.db.Model(&db.User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func validateEmail(email string) (string, error) {
	normalized := db.NormalizeEmail(email)
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func validateNewPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// generateVerificationToken 返回 64 个字符的 URL 安全随机串。
func generateVerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
