package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinIOConfig 描述对象存储上传后端的连接参数。
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketName    string
	UseSSL        bool
	Region        string
	PublicBaseURL string
}

// MailgunConfig 描述事务邮件发送所需的 Mailgun 配置。
type MailgunConfig struct {
	APIKey    string
	Domain    string
	APIURL    string
	FromEmail string
}

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseURL        string
	SessionSecret      string
	GinMode            string
	Debug              bool
	TemplateGlob       string
	UploadBackend      string
	UploadDir          string
	UploadURLPath      string
	MinIO              MinIOConfig
	Mailgun            MailgunConfig
	SuperRootEmail     string
	SuperRootUserName  string
	SuperRootPassword  string
	SiteBaseURL        string
	VerificationTTL    time.Duration
	PasswordResetTTL   time.Duration
	TrustedProxies     []string
	CORSAllowedOrigins []string
}

// Load 从环境变量（以及可选的 .env 文件）读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] 读取 .env 失败: %v", err)
	}

	port := envOrDefault("PORT", "8080")

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	driver := strings.ToLower(envOrDefault("DATABASE_DRIVER", "sqlite"))

	verificationHours := envInt("EMAIL_VERIFICATION_TOKEN_EXPIRY_HOURS", 24)
	if verificationHours <= 0 {
		verificationHours = 24
	}

	return AppConfig{
		ListenAddr:     listenAddr,
		Port:           port,
		DatabaseDriver: driver,
		DatabasePath:   envOrDefault("DATABASE_PATH", "quillnote.db"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SessionSecret:  envOrDefault("SESSION_SECRET", "quillnote-dev-secret"),
		GinMode:        envOrDefault("GIN_MODE", "release"),
		Debug:          envBool("DEBUG", false),
		TemplateGlob:   envOrDefault("TEMPLATE_GLOB", "web/template/*.html"),
		UploadBackend:  strings.ToLower(envOrDefault("UPLOAD_BACKEND", "local")),
		UploadDir:      envOrDefault("UPLOAD_DIR", "web/static/uploads"),
		UploadURLPath:  envOrDefault("UPLOAD_URL_PATH", "/static/uploads"),
		MinIO: MinIOConfig{
			Endpoint:      envOrDefault("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:     envOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:     envOrDefault("MINIO_SECRET_KEY", "minioadmin"),
			BucketName:    envOrDefault("MINIO_BUCKET_NAME", "uploads"),
			UseSSL:        envBool("MINIO_USE_SSL", false),
			Region:        envOrDefault("MINIO_REGION", "us-east-1"),
			PublicBaseURL: strings.TrimSpace(os.Getenv("MINIO_PUBLIC_BASE_URL")),
		},
		Mailgun: MailgunConfig{
			APIKey:    strings.TrimSpace(os.Getenv("MAILGUN_API_KEY")),
			Domain:    strings.TrimSpace(os.Getenv("MAILGUN_DOMAIN")),
			APIURL:    envOrDefault("MAILGUN_API_URL", "https://api.mailgun.net/v3"),
			FromEmail: envOrDefault("DEFAULT_FROM_EMAIL", "noreply@quillnote.dev"),
		},
		SuperRootEmail:     strings.TrimSpace(os.Getenv("SUPER_ROOT_EMAIL")),
		SuperRootUserName:  strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_NAME")),
		SuperRootPassword:  strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD")),
		SiteBaseURL:        strings.TrimRight(envOrDefault("SITE_BASE_URL", "http://localhost:"+port), "/"),
		VerificationTTL:    time.Duration(verificationHours) * time.Hour,
		PasswordResetTTL:   envDuration("PASSWORD_RESET_TTL", time.Hour),
		TrustedProxies:     envList("TRUSTED_PROXIES"),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// envList 解析逗号分隔的列表，忽略空白项。
func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
