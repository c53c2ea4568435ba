package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/mailer"
	"github.com/quillnote/internal/markdown"
	"github.com/quillnote/internal/service"
	"github.com/quillnote/internal/storage"
	"gorm.io/gorm"
)

// DefaultSiteName 为未配置时的站点名称。
const DefaultSiteName = "Quillnote"

// Options 汇总 API 的可选依赖。
type Options struct {
	SiteName         string
	SiteBaseURL      string
	SessionSecret    string
	AlwaysRender     bool
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	Renderer         *markdown.Renderer
	Mailer           mailer.Sender
	Storage          storage.Storage
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	posts       *service.PostService
	likes       *service.LikeService
	comments    *service.CommentService
	users       *service.UserService
	resets      *service.PasswordResetService
	renderer    *markdown.Renderer
	mailer      mailer.Sender
	storage     storage.Storage
	siteName    string
	siteBaseURL string
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = markdown.New()
	}
	sender := opts.Mailer
	if sender == nil {
		sender = mailer.LogSender{}
	}
	siteName := strings.TrimSpace(opts.SiteName)
	if siteName == "" {
		siteName = DefaultSiteName
	}

	users := service.NewUserService(gdb, opts.VerificationTTL)
	return &API{
		db:          gdb,
		posts:       service.NewPostService(gdb, renderer, opts.AlwaysRender),
		likes:       service.NewLikeService(gdb),
		comments:    service.NewCommentService(gdb),
		users:       users,
		resets:      service.NewPasswordResetService(users, opts.SessionSecret, opts.PasswordResetTTL),
		renderer:    renderer,
		mailer:      sender,
		storage:     opts.Storage,
		siteName:    siteName,
		siteBaseURL: strings.TrimRight(strings.TrimSpace(opts.SiteBaseURL), "/"),
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// Users 暴露用户服务，测试中用于替换时钟。
func (a *API) Users() *service.UserService {
	return a.users
}

func (a *API) renderHTML(c *gin.Context, status int, template string, data gin.H) {
	payload := gin.H{}
	for key, value := range data {
		payload[key] = value
	}

	if _, exists := payload["siteName"]; !exists {
		payload["siteName"] = a.siteName
	}
	if _, exists := payload["currentUser"]; !exists {
		payload["currentUser"] = currentUser(c)
	}
	if _, exists := payload["flashes"]; !exists {
		payload["flashes"] = popFlashes(c)
	}
	if _, exists := payload["year"]; !exists {
		payload["year"] = time.Now().Year()
	}

	c.HTML(status, template, payload)
}

func (a *API) renderError(c *gin.Context, status int, message string) {
	a.renderHTML(c, status, "error.html", gin.H{
		"title":   "出错了",
		"status":  status,
		"message": message,
	})
}

// absoluteURL 拼接站点地址，未配置时根据请求推断。
func (a *API) absoluteURL(c *gin.Context, path string) string {
	base := a.siteBaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + path
}
