package db

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DeletedUserDisplayName 为注销账号对外展示的名称。
const DeletedUserDisplayName = "已注销用户"

// User 定义了用户模型，邮箱作为登录标识
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email    string    `gorm:"size:254;uniqueIndex;not null"`
	Username string    `gorm:"size:128;uniqueIndex;not null"`
	Password string    `gorm:"not null" json:"-"`

	IsStaff     bool
	IsSuperuser bool

	// 邮箱验证状态：令牌被消费或被新令牌覆盖后即清空
	IsEmailVerified                 bool
	EmailVerificationToken          *string    `gorm:"size:64;uniqueIndex" json:"-"`
	EmailVerificationTokenCreatedAt *time.Time `json:"-"`

	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate 为新用户分配 UUID。
func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName 返回用户名，已注销账号返回占位名称。
func (u *User) DisplayName() string {
	if u == nil || u.IsDeleted {
		return DeletedUserDisplayName
	}
	return u.Username
}

// HasVerificationToken 判断当前是否存在未消费的验证令牌。
func (u *User) HasVerificationToken() bool {
	return u.EmailVerificationToken != nil && *u.EmailVerificationToken != ""
}

// VerificationTokenExpired 判断令牌是否已过期：签发时间 + ttl 早于 now。
// 没有签发时间的令牌视为过期。
func (u *User) VerificationTokenExpired(now time.Time, ttl time.Duration) bool {
	if u.EmailVerificationTokenCreatedAt == nil {
		return true
	}
	return u.EmailVerificationTokenCreatedAt.Add(ttl).Before(now)
}

// IsVerificationTokenValid 要求令牌完全一致且未过期。
func (u *User) IsVerificationTokenValid(token string, now time.Time, ttl time.Duration) bool {
	if !u.HasVerificationToken() || *u.EmailVerificationToken != token {
		return false
	}
	return !u.VerificationTokenExpired(now, ttl)
}

// NormalizeEmail 统一邮箱格式：去除空白，域名部分转为小写。
func NormalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	at := strings.LastIndex(trimmed, "@")
	if at < 0 {
		return trimmed
	}
	return trimmed[:at] + "@" + strings.ToLower(trimmed[at+1:])
}

// EnsureSuperuser 存在性检查：若邮箱、用户名与密码均非空且不存在对应账号，则创建一个已验证的超级管理员。
func EnsureSuperuser(gdb *gorm.DB, email, username, password string) error {
	trimmedEmail := NormalizeEmail(email)
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedEmail == "" || trimmedUser == "" || trimmedPassword == "" {
		return nil
	}

	if gdb == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := gdb.Where("email = ?", trimmedEmail).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return gdb.Create(&User{
			Email:           trimmedEmail,
			Username:        trimmedUser,
			Password:        string(hashed),
			IsStaff:         true,
			IsSuperuser:     true,
			IsEmailVerified: true,
		}).Error
	}

	return nil
}
