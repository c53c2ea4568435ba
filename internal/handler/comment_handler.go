package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/service"
)

// AddComment 发表评论后回到文章评论区。
func (a *API) AddComment(c *gin.Context) {
	postID, err := parseUUIDParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "文章不存在")
		return
	}
	user := currentUser(c)

	_, err = a.comments.Add(postID, user.ID, c.PostForm("text"))
	switch {
	case err == nil:
		addFlash(c, flashSuccess, "评论已发布")
	case errors.Is(err, service.ErrCommentEmpty):
		addFlash(c, flashError, "评论内容不能为空")
	case errors.Is(err, service.ErrPostNotFound):
		a.renderError(c, http.StatusNotFound, "文章不存在")
		return
	default:
		log.Printf("[comments] add failed: %v", err)
		addFlash(c, flashError, "评论发布失败，请稍后重试")
	}

	c.Redirect(http.StatusFound, postURL(postID)+"#comments")
}

// DeleteComment 仅允许作者删除自己的评论。
func (a *API) DeleteComment(c *gin.Context) {
	commentID, err := parseUUIDParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "评论不存在")
		return
	}
	user := currentUser(c)

	postID, err := a.comments.Delete(commentID, user.ID)
	switch {
	case err == nil:
		addFlash(c, flashSuccess, "评论已删除")
		c.Redirect(http.StatusFound, postURL(postID)+"#comments")
	case errors.Is(err, service.ErrCommentNotFound):
		a.renderError(c, http.StatusNotFound, "评论不存在")
	case errors.Is(err, service.ErrCommentForbidden):
		a.renderError(c, http.StatusForbidden, "只能删除自己的评论")
	default:
		log.Printf("[comments] delete failed: %v", err)
		a.renderError(c, http.StatusInternalServerError, "删除评论失败")
	}
}
