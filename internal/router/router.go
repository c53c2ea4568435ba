package router

import (
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/handler"
	"github.com/quillnote/internal/view"
)

// Options 描述路由层需要的配置。
type Options struct {
	SessionSecret      string
	TemplateGlob       string
	StaticDir          string
	UploadDir          string
	UploadURLPath      string
	TrustedProxies     []string
	CORSAllowedOrigins []string
	Secure             bool
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.Default()

	// 客户端 IP 优先取反向代理头
	r.RemoteIPHeaders = []string{"X-Real-IP", "X-Forwarded-For"}
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Printf("[router] invalid trusted proxies %v: %v", opts.TrustedProxies, err)
	}

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   14 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   opts.Secure,
	})
	r.Use(sessions.Sessions("quillnote_session", store))
	r.Use(api.LoadCurrentUser())

	r.SetFuncMap(view.FuncMap())
	if opts.TemplateGlob != "" {
		if matches, err := filepath.Glob(opts.TemplateGlob); err == nil && len(matches) > 0 {
			r.LoadHTMLGlob(opts.TemplateGlob)
		} else {
			log.Printf("[router] no templates matched %q", opts.TemplateGlob)
		}
	}

	// 静态文件服务
	r.GET("/static/css/highlight.css", api.HighlightCSS)
	if opts.StaticDir != "" {
		r.Static("/static/assets", filepath.Join(opts.StaticDir, "assets"))
	}
	if opts.UploadDir != "" && opts.UploadURLPath != "" {
		r.Static(opts.UploadURLPath, opts.UploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// 前台
	r.GET("/", api.ShowPostList)
	r.GET("/about", api.ShowAbout)
	r.GET("/posts/:id", api.ShowPostDetail)
	r.POST("/posts/:id/like", api.ToggleLike)

	comments := r.Group("/comments")
	comments.Use(handler.AuthRequired())
	{
		comments.POST("/:id/add", api.AddComment)
		comments.POST("/:id/delete", api.DeleteComment)
	}

	// 账号
	accounts := r.Group("/accounts")
	{
		accounts.GET("/register", api.ShowRegister)
		accounts.POST("/register", api.Register)
		accounts.GET("/login", api.ShowLogin)
		accounts.POST("/login", api.Login)
		accounts.GET("/logout", api.Logout)
		accounts.POST("/logout", api.Logout)
		accounts.GET("/verify/:token", api.VerifyEmail)
		accounts.GET("/resend-verification", api.ShowResendVerification)
		accounts.POST("/resend-verification", api.ResendVerification)
		accounts.GET("/password-reset", api.ShowPasswordReset)
		accounts.POST("/password-reset", api.RequestPasswordReset)
		accounts.GET("/reset/:token", api.ShowPasswordResetConfirm)
		accounts.POST("/reset/:token", api.ConfirmPasswordReset)

		me := accounts.Group("/me")
		me.Use(handler.AuthRequired())
		{
			me.GET("", api.ShowProfile)
			me.GET("/update", api.ShowProfileUpdate)
			me.POST("/update", api.UpdateProfile)
			me.GET("/password_change", api.ShowPasswordChange)
			me.POST("/password_change", api.ChangePassword)
			me.POST("/delete", api.DeleteAccount)
		}
	}

	// 后台管理路由
	admin := r.Group("/admin")
	admin.Use(handler.StaffRequired())
	{
		admin.GET("/posts", api.ShowAdminPosts)
		admin.GET("/posts/new", api.ShowAdminPostEdit)
		admin.GET("/posts/:id/edit", api.ShowAdminPostEdit)
	}

	// API路由，跨域预检需在权限校验之前处理
	apiGroup := r.Group("/admin/api")
	if len(opts.CORSAllowedOrigins) > 0 {
		apiGroup.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		apiGroup.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
	}
	apiGroup.Use(handler.StaffRequired())
	{
		apiGroup.GET("/posts", api.GetPosts)
		apiGroup.GET("/posts/:id", api.GetPost)
		apiGroup.POST("/posts", api.CreatePost)
		apiGroup.PUT("/posts/:id", api.UpdatePost)
		apiGroup.DELETE("/posts/:id", api.DeletePost)
		apiGroup.POST("/preview", api.PreviewPost)
		apiGroup.POST("/upload", api.UploadImage)
	}

	return r
}
