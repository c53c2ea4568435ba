package service

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"gorm.io/gorm"
)

var ErrLikeIdentityMissing = errors.New("like requires a user or an ip address")

// Identity 描述点赞者：已登录用户以 UserID 区分，匿名访客以 IP 区分。
// IP 在两种情况下都会被记录。
type Identity struct {
	UserID *uuid.UUID
	IP     string
}

// Anonymous 判断是否为匿名身份。
func (i Identity) Anonymous() bool {
	return i.UserID == nil
}

// LikeState 是一次切换之后的点赞状态。
type LikeState struct {
	Liked bool
	Count int64
}

// ReconcileResult 统计一次匿名点赞合并的结果。
type ReconcileResult struct {
	Migrated int
	Removed  int
}

// LikeService 管理文章点赞。
type LikeService struct {
	db *gorm.DB
}

// NewLikeService creates a LikeService instance.
func NewLikeService(gdb *gorm.DB) *LikeService {
	return &LikeService{db: gdb}
}

func (s *LikeService) identityScope(tx *gorm.DB, postID uuid.UUID, identity Identity) *gorm.DB {
	tx = tx.Model(&db.Like{}).Where("post_id = ?", postID)
	if identity.Anonymous() {
		return tx.Where("user_id IS NULL AND ip_address = ?", identity.IP)
	}
	return tx.Where("user_id = ?", *identity.UserID)
}

// Toggle 已点赞则取消，否则新增一条点赞。
// 并发请求导致的唯一约束冲突视为“已点赞”。
func (s *LikeService) Toggle(postID uuid.UUID, identity Identity) (LikeState, error) {
	identity.IP = strings.TrimSpace(identity.IP)
	if identity.Anonymous() && identity.IP == "" {
		return LikeState{}, ErrLikeIdentityMissing
	}

	var existing db.Like
	err := s.identityScope(s.db, postID, identity).First(&existing).Error
	liked := false
	switch {
	case err == nil:
		if err := s.db.Delete(&existing).Error; err != nil {
			return LikeState{}, fmt.Errorf("delete like: %w", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		like := db.Like{PostID: postID, UserID: identity.UserID, IPAddress: identity.IP}
		if err := s.db.Create(&like).Error; err != nil && !db.IsUniqueViolation(err) {
			return LikeState{}, fmt.Errorf("create like: %w", err)
		}
		liked = true
	default:
		return LikeState{}, err
	}

	count, err := s.Count(postID)
	if err != nil {
		return LikeState{}, err
	}
	return LikeState{Liked: liked, Count: count}, nil
}

// Count 返回文章的点赞总数。
func (s *LikeService) Count(postID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.Model(&db.Like{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// HasLiked 判断身份是否已点赞文章。
func (s *LikeService) HasLiked(postID uuid.UUID, identity Identity) (bool, error) {
	if identity.Anonymous() && strings.TrimSpace(identity.IP) == "" {
		return false, nil
	}
	var count int64
	if err := s.identityScope(s.db, postID, identity).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Counts 批量统计多篇文章的点赞数。
func (s *LikeService) Counts(postIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	result := make(map[uuid.UUID]int64, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		PostID uuid.UUID
		Total  int64
	}
	if err := s.db.Model(&db.Like{}).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.PostID] = row.Total
	}
	return result, nil
}

// LikedPostIDs 返回身份在给定文章中已点赞的集合。
func (s *LikeService) LikedPostIDs(postIDs []uuid.UUID, identity Identity) (map[uuid.UUID]bool, error) {
	result := make(map[uuid.UUID]bool)
	if len(postIDs) == 0 || (identity.Anonymous() && strings.TrimSpace(identity.IP) == "") {
		return result, nil
	}

	query := s.db.Model(&db.Like{}).Where("post_id IN ?", postIDs)
	if identity.Anonymous() {
		query = query.Where("user_id IS NULL AND ip_address = ?", identity.IP)
	} else {
		query = query.Where("user_id = ?", *identity.UserID)
	}

	var ids []uuid.UUID
	if err := query.Pluck("post_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

// ReconcileAnonymous 把某 IP 下的匿名点赞归入刚登录或刚完成验证的用户。
// 用户已点赞的文章删除匿名记录，其余记录改写 user_id，IP 保持不变。
func (s *LikeService) ReconcileAnonymous(userID uuid.UUID, ip string) (ReconcileResult, error) {
	var result ReconcileResult
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return result, nil
	}

	var anonymous []db.Like
	if err := s.db.Where("user_id IS NULL AND ip_address = ?", ip).Find(&anonymous).Error; err != nil {
		return result, err
	}

	for _, like := range anonymous {
		var owned int64
		if err := s.db.Model(&db.Like{}).
			Where("post_id = ? AND user_id = ?", like.PostID, userID).
			Count(&owned).Error; err != nil {
			return result, err
		}

		if owned > 0 {
			if err := s.db.Delete(&db.Like{}, "id = ?", like.ID).Error; err != nil {
				return result, err
			}
			result.Removed++
			continue
		}

		err := s.db.Model(&db.Like{}).Where("id = ?", like.ID).Update("user_id", userID).Error
		if err != nil {
			if !db.IsUniqueViolation(err) {
				return result, err
			}
			// 期间用户已通过其他请求点赞，匿名记录变为重复
			if err := s.db.Delete(&db.Like{}, "id = ?", like.ID).Error; err != nil {
				return result, err
			}
			result.Removed++
			continue
		}
		result.Migrated++
	}

	if result.Migrated > 0 || result.Removed > 0 {
		log.Printf("[likes] reconciled anonymous likes for user %s from %s: migrated=%d removed=%d", userID, ip, result.Migrated, result.Removed)
	}
	return result, nil
}
