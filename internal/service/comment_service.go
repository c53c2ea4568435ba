package service

import (
	"errors"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/quillnote/internal/db"
	"gorm.io/gorm"
)

var (
	ErrCommentEmpty     = errors.New("comment text is empty")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrCommentForbidden = errors.New("only the author can delete this comment")
)

// CommentService 管理文章评论。
type CommentService struct {
	db     *gorm.DB
	policy *bluemonday.Policy
}

// NewCommentService creates a CommentService instance.
func NewCommentService(gdb *gorm.DB) *CommentService {
	return &CommentService{db: gdb, policy: bluemonday.StrictPolicy()}
}

// ListForPost 按时间正序返回文章评论，并预加载作者。
func (s *CommentService) ListForPost(postID uuid.UUID) ([]db.Comment, error) {
	var comments []db.Comment
	if err := s.db.Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at asc").
		Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}

// Add 发表评论，文本中的 HTML 标签会被移除。
func (s *CommentService) Add(postID, authorID uuid.UUID, text string) (*db.Comment, error) {
	cleaned := s.sanitize(text)
	if cleaned == "" {
		return nil, ErrCommentEmpty
	}

	var count int64
	if err := s.db.Model(&db.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrPostNotFound
	}

	comment := db.Comment{PostID: postID, AuthorID: authorID, Text: cleaned}
	if err := s.db.Create(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// Delete 删除评论，只允许作者本人操作。返回评论所属文章 ID。
func (s *CommentService) Delete(commentID, requesterID uuid.UUID) (uuid.UUID, error) {
	var comment db.Comment
	if err := s.db.First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrCommentNotFound
		}
		return uuid.Nil, err
	}
	if comment.AuthorID != requesterID {
		return comment.PostID, ErrCommentForbidden
	}
	if err := s.db.Delete(&comment).Error; err != nil {
		return comment.PostID, err
	}
	return comment.PostID, nil
}

// sanitize 去掉所有标签，模板输出时会重新转义。
func (s *CommentService) sanitize(text string) string {
	stripped := s.policy.Sanitize(strings.TrimSpace(text))
	return strings.TrimSpace(html.UnescapeString(stripped))
}
