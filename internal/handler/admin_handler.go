package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/service"
)

type postPayload struct {
	Title       string     `json:"title"`
	Subtitle    string     `json:"subtitle"`
	CoverImage  string     `json:"cover_image"`
	Text        string     `json:"text"`
	IsRawHTML   bool       `json:"is_raw_html"`
	IsVisible   bool       `json:"is_visible"`
	PublishedAt *time.Time `json:"published_at"`
}

func (p postPayload) input() service.PostInput {
	return service.PostInput{
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		CoverImage:  p.CoverImage,
		Text:        p.Text,
		IsRawHTML:   p.IsRawHTML,
		IsVisible:   p.IsVisible,
		PublishedAt: p.PublishedAt,
	}
}

type previewPayload struct {
	Text      string `json:"text"`
	IsRawHTML bool   `json:"is_raw_html"`
}

// ShowAdminPosts renders the admin post list.
func (a *API) ShowAdminPosts(c *gin.Context) {
	page := parsePositiveInt(c.DefaultQuery("page", "1"), 1)
	result, err := a.posts.List(service.PostFilter{IncludeHidden: true, Page: page, PerPage: 20})
	if err != nil {
		a.renderError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}
	a.renderHTML(c, http.StatusOK, "admin_post_list.html", gin.H{
		"title":      "文章管理",
		"posts":      result.Posts,
		"page":       result.Page,
		"totalPages": result.TotalPages,
		"total":      result.Total,
	})
}

// ShowAdminPostEdit 渲染新建或编辑文章页面。
func (a *API) ShowAdminPostEdit(c *gin.Context) {
	data := gin.H{"title": "新建文章", "post": &db.Post{IsVisible: true}, "isNew": true}

	if raw := strings.TrimSpace(c.Param("id")); raw != "" {
		id, err := parseUUIDParam(c, "id")
		if err != nil {
			a.renderError(c, http.StatusNotFound, "文章不存在")
			return
		}
		post, err := a.posts.Get(id)
		if err != nil {
			a.renderError(c, http.StatusNotFound, "文章不存在")
			return
		}
		data["title"] = "编辑文章"
		data["post"] = post
		data["isNew"] = false
	}

	a.renderHTML(c, http.StatusOK, "admin_post_edit.html", data)
}

// GetPosts 返回全部文章（含隐藏）。
func (a *API) GetPosts(c *gin.Context) {
	result, err := a.posts.List(service.PostFilter{
		IncludeHidden: true,
		Page:          parsePositiveInt(c.DefaultQuery("page", "1"), 1),
		PerPage:       parsePositiveInt(c.DefaultQuery("per_page", "20"), 20),
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"posts":       result.Posts,
		"total":       result.Total,
		"page":        result.Page,
		"total_pages": result.TotalPages,
	})
}

// GetPost 返回单篇文章。
func (a *API) GetPost(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}
	post, err := a.posts.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}
	c.JSON(http.StatusOK, post)
}

// CreatePost 新建文章。
func (a *API) CreatePost(c *gin.Context) {
	var payload postPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	post, err := a.posts.Create(payload.input())
	if err != nil {
		if errors.Is(err, service.ErrPostTitleRequired) {
			respondError(c, http.StatusBadRequest, "标题不能为空")
			return
		}
		log.Printf("[admin] create post failed: %v", err)
		respondError(c, http.StatusInternalServerError, "创建文章失败")
		return
	}
	c.JSON(http.StatusCreated, post)
}

// UpdatePost 更新文章并清空渲染缓存。
func (a *API) UpdatePost(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}

	var payload postPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}

	post, err := a.posts.Update(id, payload.input())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPostNotFound):
			respondError(c, http.StatusNotFound, "文章不存在")
		case errors.Is(err, service.ErrPostTitleRequired):
			respondError(c, http.StatusBadRequest, "标题不能为空")
		default:
			log.Printf("[admin] update post failed: %v", err)
			respondError(c, http.StatusInternalServerError, "更新文章失败")
		}
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeletePost 删除文章及其点赞与评论。
func (a *API) DeletePost(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的文章ID")
		return
	}
	if err := a.posts.Delete(id); err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "文章不存在")
			return
		}
		log.Printf("[admin] delete post failed: %v", err)
		respondError(c, http.StatusInternalServerError, "删除文章失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "文章删除成功"})
}

// PreviewPost 渲染编辑器中的源文。
func (a *API) PreviewPost(c *gin.Context) {
	var payload previewPayload
	if !bindJSON(c, &payload, "请求参数错误") {
		return
	}
	html, err := a.posts.Preview(payload.Text, payload.IsRawHTML)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "预览失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": html})
}
