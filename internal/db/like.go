package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like 记录文章点赞，登录用户按 (post, user) 唯一，匿名访客按 (post, ip) 唯一。
// 两个部分唯一索引由数据库保证，并发重复点赞会被拒绝。
// 登录用户点赞同样记录 IP，便于排查。
type Like struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	PostID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_likes_post_user_lookup;uniqueIndex:idx_likes_unique_user,where:user_id IS NOT NULL;uniqueIndex:idx_likes_unique_ip,where:user_id IS NULL"`
	Post      Post       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID    *uuid.UUID `gorm:"type:uuid;index:idx_likes_post_user_lookup;uniqueIndex:idx_likes_unique_user"`
	User      *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	IPAddress string     `gorm:"size:45;not null;index;uniqueIndex:idx_likes_unique_ip"`
	CreatedAt time.Time
}

// TableName 指定自定义表名。
func (Like) TableName() string {
	return "likes"
}

// BeforeCreate 为新点赞分配 UUID。
func (l *Like) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsAnonymous 表示该点赞仅以 IP 归属。
func (l *Like) IsAnonymous() bool {
	return l.UserID == nil
}
