package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/markdown"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrPostTitleRequired = errors.New("post title is required")
)

// ContentRenderer 把文章源文转换为 HTML。
type ContentRenderer interface {
	Render(text string, mode markdown.Mode) (string, error)
}

// PostService wraps post related database operations.
type PostService struct {
	db           *gorm.DB
	renderer     ContentRenderer
	alwaysRender bool
}

// PostFilter describes filters for listing posts.
type PostFilter struct {
	IncludeHidden bool
	Page          int
	PerPage       int
}

// PostListResult aggregates paginated list data.
type PostListResult struct {
	Posts      []db.Post
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// PostInput represents fields accepted when creating or updating a post.
type PostInput struct {
	Title       string
	Subtitle    string
	CoverImage  string
	Text        string
	IsRawHTML   bool
	IsVisible   bool
	PublishedAt *time.Time
}

// NewPostService creates a PostService instance.
// alwaysRender 为 true 时每次读取都重新渲染，便于本地调试。
func NewPostService(gdb *gorm.DB, renderer ContentRenderer, alwaysRender bool) *PostService {
	return &PostService{db: gdb, renderer: renderer, alwaysRender: alwaysRender}
}

// List 返回分页文章。非管理员只能看到可见文章，按发布时间倒序。
func (s *PostService) List(filter PostFilter) (*PostListResult, error) {
	result := &PostListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 10
	}

	query := s.db.Model(&db.Post{})
	if !filter.IncludeHidden {
		query = query.Where("is_visible = ?", true)
	}

	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage
	if err := query.
		Order("published_at IS NULL, published_at desc").
		Order("created_at desc").
		Offset(offset).
		Limit(result.PerPage).
		Find(&result.Posts).Error; err != nil {
		return nil, err
	}

	if result.Total > 0 {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}
	return result, nil
}

// Get fetches a post by id.
func (s *PostService) Get(id uuid.UUID) (*db.Post, error) {
	var post db.Post
	if err := s.db.First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// GetVisible 与 Get 相同，但隐藏文章仅对管理员可见。
func (s *PostService) GetVisible(id uuid.UUID, includeHidden bool) (*db.Post, error) {
	post, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !post.IsVisible && !includeHidden {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Create persists a post.
func (s *PostService) Create(input PostInput) (*db.Post, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}

	post := db.Post{}
	applyPostInput(&post, input)
	if err := s.db.Create(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// Update applies updates to an existing post and drops the rendered cache.
func (s *PostService) Update(id uuid.UUID, input PostInput) (*db.Post, error) {
	if err := validatePostInput(input); err != nil {
		return nil, err
	}

	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	applyPostInput(existing, input)
	existing.HTMLCache = ""
	if err := s.db.Save(existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete 删除文章及其点赞与评论。
func (s *PostService) Delete(id uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&db.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&db.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&db.Post{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}

// RecordView 原子地增加浏览次数。
func (s *PostService) RecordView(id uuid.UUID) error {
	return s.db.Model(&db.Post{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}

// RenderContent 返回文章应展示的 HTML。
// 原始 HTML 文章直接返回 Text；Markdown 文章在缓存为空或 alwaysRender 时重新渲染，
// 仅当结果与缓存不同才写回数据库。并发读取可能重复写入同样的内容。
func (s *PostService) RenderContent(post *db.Post) (string, error) {
	if post == nil {
		return "", nil
	}

	if post.IsRawHTML {
		if post.Text != "" {
			return post.Text, nil
		}
		return post.HTMLCache, nil
	}

	if post.HTMLCache != "" && !s.alwaysRender {
		return post.HTMLCache, nil
	}
	if s.renderer == nil {
		return post.HTMLCache, nil
	}

	rendered, err := s.renderer.Render(post.Text, markdown.ModeMarkdown)
	if err != nil {
		return "", fmt.Errorf("render post %s: %w", post.ID, err)
	}
	if rendered == post.HTMLCache {
		return rendered, nil
	}

	post.HTMLCache = rendered
	if post.ID != uuid.Nil {
		if err := s.db.Model(&db.Post{}).Where("id = ?", post.ID).UpdateColumn("html_cache", rendered).Error; err != nil {
			// 写回失败不影响本次展示
			log.Printf("[posts] failed to cache html for post %s: %v", post.ID, err)
		}
	}
	return rendered, nil
}

// Preview 渲染未保存的源文，不读写缓存。
func (s *PostService) Preview(text string, rawHTML bool) (string, error) {
	if s.renderer == nil {
		return "", errors.New("renderer not configured")
	}
	return s.renderer.Render(text, markdown.ModeFor(rawHTML))
}

func validatePostInput(input PostInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return ErrPostTitleRequired
	}
	return nil
}

func applyPostInput(post *db.Post, input PostInput) {
	post.Title = strings.TrimSpace(input.Title)
	post.Subtitle = strings.TrimSpace(input.Subtitle)
	post.CoverImage = strings.TrimSpace(input.CoverImage)
	post.Text = input.Text
	post.IsRawHTML = input.IsRawHTML
	post.IsVisible = input.IsVisible
	post.PublishedAt = input.PublishedAt
}
