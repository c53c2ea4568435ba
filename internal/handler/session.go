package handler

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/service"
)

const (
	sessionUserKey    = "user_id"
	currentUserCtxKey = "__current_user"
)

// 提示消息级别，对应模板中的样式
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashWarning = "warning"
	flashError   = "error"
)

var flashLevels = []string{flashSuccess, flashInfo, flashWarning, flashError}

type flashMessage struct {
	Level   string
	Message string
}

func sessionFor(c *gin.Context) sessions.Session {
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return nil
	}
	return sessions.Default(c)
}

func addFlash(c *gin.Context, level, message string) {
	session := sessionFor(c)
	if session == nil {
		return
	}
	session.AddFlash(message, level)
	if err := session.Save(); err != nil {
		log.Printf("[session] failed to save flash: %v", err)
	}
}

func popFlashes(c *gin.Context) []flashMessage {
	session := sessionFor(c)
	if session == nil {
		return nil
	}

	var messages []flashMessage
	for _, level := range flashLevels {
		for _, raw := range session.Flashes(level) {
			if text, ok := raw.(string); ok && text != "" {
				messages = append(messages, flashMessage{Level: level, Message: text})
			}
		}
	}
	if len(messages) > 0 {
		if err := session.Save(); err != nil {
			log.Printf("[session] failed to clear flashes: %v", err)
		}
	}
	return messages
}

func currentUser(c *gin.Context) *db.User {
	if value, ok := c.Get(currentUserCtxKey); ok {
		if user, ok := value.(*db.User); ok {
			return user
		}
	}
	return nil
}

// identity 返回当前请求的点赞身份，IP 取自 gin 的 ClientIP。
func identity(c *gin.Context) service.Identity {
	id := service.Identity{IP: c.ClientIP()}
	if user := currentUser(c); user != nil {
		userID := user.ID
		id.UserID = &userID
	}
	return id
}

func loginSession(c *gin.Context, user *db.User) error {
	session := sessionFor(c)
	if session == nil {
		return nil
	}
	session.Set(sessionUserKey, user.ID.String())
	c.Set(currentUserCtxKey, user)
	return session.Save()
}

func logoutSession(c *gin.Context) {
	session := sessionFor(c)
	if session == nil {
		return
	}
	session.Delete(sessionUserKey)
	if err := session.Save(); err != nil {
		log.Printf("[session] failed to clear session: %v", err)
	}
	c.Set(currentUserCtxKey, (*db.User)(nil))
}

// LoadCurrentUser 从会话中恢复当前用户，失效的会话会被清理。
func (a *API) LoadCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFor(c)
		if session == nil {
			c.Next()
			return
		}

		raw, _ := session.Get(sessionUserKey).(string)
		if raw == "" {
			c.Next()
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			logoutSession(c)
			c.Next()
			return
		}

		user, err := a.users.Get(userID)
		if err != nil || user.IsDeleted {
			logoutSession(c)
			c.Next()
			return
		}

		c.Set(currentUserCtxKey, user)
		c.Next()
	}
}

// AuthRequired 要求登录，未登录时跳转到登录页并带上 next 参数。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			addFlash(c, flashInfo, "请先登录")
			c.Redirect(http.StatusFound, "/accounts/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// StaffRequired 要求管理员身份，API 请求返回 JSON 错误。
func StaffRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user != nil && user.IsStaff {
			c.Next()
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/admin/api") {
			status := http.StatusForbidden
			if user == nil {
				status = http.StatusUnauthorized
			}
			respondError(c, status, "需要管理员权限")
			c.Abort()
			return
		}

		if user == nil {
			c.Redirect(http.StatusFound, "/accounts/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		} else {
			c.String(http.StatusForbidden, "需要管理员权限")
		}
		c.Abort()
	}
}
