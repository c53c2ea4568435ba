package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/config"
	"github.com/quillnote/internal/db"
	"github.com/quillnote/internal/handler"
	"github.com/quillnote/internal/mailer"
	"github.com/quillnote/internal/markdown"
	"github.com/quillnote/internal/router"
	"github.com/quillnote/internal/storage"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		URL:    cfg.DatabaseURL,
		Debug:  cfg.Debug,
	}); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	if err := db.EnsureSuperuser(db.DB, cfg.SuperRootEmail, cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		log.Fatalf("failed to ensure superuser: %v", err)
	}

	uploads, err := setupStorage(cfg)
	if err != nil {
		log.Fatalf("failed to initialize upload storage: %v", err)
	}

	api := handler.NewAPI(db.DB, handler.Options{
		SiteBaseURL:   cfg.SiteBaseURL,
		SessionSecret: cfg.SessionSecret,
		// 调试模式下每次访问都重新渲染，便于调整样式
		AlwaysRender:     cfg.Debug,
		VerificationTTL:  cfg.VerificationTTL,
		PasswordResetTTL: cfg.PasswordResetTTL,
		Renderer:         markdown.New(),
		Mailer:           mailer.NewSender(cfg.Mailgun.APIURL, cfg.Mailgun.Domain, cfg.Mailgun.APIKey, cfg.Mailgun.FromEmail),
		Storage:          uploads,
	})

	opts := router.Options{
		SessionSecret:      cfg.SessionSecret,
		TemplateGlob:       cfg.TemplateGlob,
		StaticDir:          "web/static",
		TrustedProxies:     cfg.TrustedProxies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Secure:             !cfg.Debug && cfg.GinMode == gin.ReleaseMode,
	}
	if local, ok := uploads.(*storage.LocalStorage); ok {
		opts.UploadDir = local.Dir()
		opts.UploadURLPath = local.URLPath()
	}

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, opts)
	log.Printf("[server] listening on %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}

func setupStorage(cfg config.AppConfig) (storage.Storage, error) {
	if cfg.UploadBackend != "minio" {
		return storage.NewLocalStorage(cfg.UploadDir, cfg.UploadURLPath), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	minioStorage, err := storage.NewMinIOStorage(ctx, storage.MinIOOptions{
		Endpoint:      cfg.MinIO.Endpoint,
		AccessKey:     cfg.MinIO.AccessKey,
		SecretKey:     cfg.MinIO.SecretKey,
		Bucket:        cfg.MinIO.BucketName,
		UseSSL:        cfg.MinIO.UseSSL,
		Region:        cfg.MinIO.Region,
		PublicBaseURL: cfg.MinIO.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	return minioStorage, nil
}
