package handler

import (
	"bytes"
	"errors"
	"html/template"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/service"
)

const postsPerPage = 10

// postCard 为列表页的一项。
type postCard struct {
	Post      db.Post
	LikeCount int64
	Liked     bool
}

// likeButtonView 为点赞按钮片段的数据。
type likeButtonView struct {
	PostID uuid.UUID
	Liked  bool
	Count  int64
}

func canSeeHidden(c *gin.Context) bool {
	user := currentUser(c)
	return user != nil && user.IsSuperuser
}

// ShowPostList renders the public post list.
func (a *API) ShowPostList(c *gin.Context) {
	page := parsePositiveInt(c.DefaultQuery("page", "1"), 1)

	result, err := a.posts.List(service.PostFilter{
		IncludeHidden: canSeeHidden(c),
		Page:          page,
		PerPage:       postsPerPage,
	})
	if err != nil {
		log.Printf("[posts] list failed: %v", err)
		a.renderError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}

	ids := make([]uuid.UUID, 0, len(result.Posts))
	for _, post := range result.Posts {
		ids = append(ids, post.ID)
	}
	counts, err := a.likes.Counts(ids)
	if err != nil {
		log.Printf("[likes] count failed: %v", err)
		counts = map[uuid.UUID]int64{}
	}
	liked, err := a.likes.LikedPostIDs(ids, identity(c))
	if err != nil {
		log.Printf("[likes] liked lookup failed: %v", err)
		liked = map[uuid.UUID]bool{}
	}

	cards := make([]postCard, 0, len(result.Posts))
	for _, post := range result.Posts {
		cards = append(cards, postCard{Post: post, LikeCount: counts[post.ID], Liked: liked[post.ID]})
	}

	a.renderHTML(c, http.StatusOK, "post_list.html", gin.H{
		"title":      "文章",
		"posts":      cards,
		"page":       result.Page,
		"totalPages": result.TotalPages,
		"hasPrev":    result.Page > 1,
		"hasNext":    result.Page < result.TotalPages,
	})
}

// ShowPostDetail renders a single post with comments and like state.
func (a *API) ShowPostDetail(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "文章不存在")
		return
	}

	post, err := a.posts.GetVisible(id, canSeeHidden(c))
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			a.renderError(c, http.StatusNotFound, "文章不存在")
			return
		}
		a.renderError(c, http.StatusInternalServerError, "获取文章失败")
		return
	}

	if err := a.posts.RecordView(post.ID); err != nil {
		log.Printf("[posts] record view failed for %s: %v", post.ID, err)
	} else {
		post.ViewCount++
	}

	content, err := a.posts.RenderContent(post)
	if err != nil {
		log.Printf("[posts] %v", err)
		a.renderError(c, http.StatusInternalServerError, "文章渲染失败")
		return
	}

	comments, err := a.comments.ListForPost(post.ID)
	if err != nil {
		log.Printf("[comments] list failed for %s: %v", post.ID, err)
	}

	button, err := a.likeButton(c, post.ID)
	if err != nil {
		log.Printf("[likes] state failed for %s: %v", post.ID, err)
	}

	a.renderHTML(c, http.StatusOK, "post_detail.html", gin.H{
		"title":    post.Title,
		"post":     post,
		"content":  template.HTML(content),
		"comments": comments,
		"like":     button,
	})
}

func (a *API) likeButton(c *gin.Context, postID uuid.UUID) (likeButtonView, error) {
	view := likeButtonView{PostID: postID}
	count, err := a.likes.Count(postID)
	if err != nil {
		return view, err
	}
	liked, err := a.likes.HasLiked(postID, identity(c))
	if err != nil {
		return view, err
	}
	view.Count = count
	view.Liked = liked
	return view, nil
}

// ToggleLike 切换点赞状态，返回按钮片段用于局部刷新。
func (a *API) ToggleLike(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.String(http.StatusNotFound, "文章不存在")
		return
	}
	if _, err := a.posts.GetVisible(id, canSeeHidden(c)); err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			c.String(http.StatusNotFound, "文章不存在")
			return
		}
		c.String(http.StatusInternalServerError, "操作失败")
		return
	}

	state, err := a.likes.Toggle(id, identity(c))
	if err != nil {
		log.Printf("[likes] toggle failed for %s: %v", id, err)
		c.String(http.StatusBadRequest, "操作失败")
		return
	}

	c.HTML(http.StatusOK, "like_button.html", gin.H{
		"like": likeButtonView{PostID: id, Liked: state.Liked, Count: state.Count},
	})
}

// ShowAbout renders the about page.
func (a *API) ShowAbout(c *gin.Context) {
	a.renderHTML(c, http.StatusOK, "about.html", gin.H{
		"title": "关于",
	})
}

// HighlightCSS 输出代码高亮主题的样式表。
func (a *API) HighlightCSS(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.renderer.WriteStyles(&buf); err != nil {
		c.String(http.StatusInternalServerError, "/* failed to generate styles */")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "text/css; charset=utf-8", buf.Bytes())
}
