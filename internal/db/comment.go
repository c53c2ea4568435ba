package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment 定义文章评论，只有作者本人可以删除
type Comment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;index:idx_comments_post_created"`
	Post      Post      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_comments_post_created"`
	UpdatedAt time.Time
}

// TableName 指定自定义表名。
func (Comment) TableName() string {
	return "comments"
}

// BeforeCreate 为新评论分配 UUID。
func (c *Comment) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
