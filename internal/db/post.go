package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post 定义了文章模型
// Text 为 Markdown 源文或原始 HTML（由 IsRawHTML 决定），HTMLCache 保存最近一次渲染结果
type Post struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title       string    `gorm:"size:512"`
	Subtitle    string    `gorm:"size:512"`
	CoverImage  string
	Text        string `gorm:"type:text"`
	HTMLCache   string `gorm:"type:text"`
	IsRawHTML   bool
	IsVisible   bool
	PublishedAt *time.Time
	ViewCount   uint64 `gorm:"default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate 为新文章分配 UUID。
func (p *Post) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
