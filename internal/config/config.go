package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// 上传接口的授权策略：仅管理员，或任意已登录用户。
const (
	UploadPolicyAdmin = "admin"
	UploadPolicyAny   = "any"
)

type Config struct {
	Port            string
	DatabaseDSN     string
	Env             string
	SessionTTLHours int
	UploadPolicy    string
	AdminUsername   string
	AdminPassword   string
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	PublicBaseURL   string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// Load 从环境变量读取配置，存在 .env 文件时先加载它。
func Load() Config {
	_ = godotenv.Load()

	ttl, err := strconv.Atoi(getenv("SESSION_TTL_HOURS", "24"))
	if err != nil || ttl <= 0 {
		ttl = 24
	}
	return Config{
		Port:            getenv("APP_PORT", "8080"),
		DatabaseDSN:     getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=webchat port=5432 sslmode=disable TimeZone=UTC"),
		Env:             getenv("APP_ENV", "dev"),
		SessionTTLHours: ttl,
		UploadPolicy:    getenv("UPLOAD_POLICY", UploadPolicyAdmin),
		AdminUsername:   getenv("ADMIN_USERNAME", ""),
		AdminPassword:   getenv("ADMIN_PASSWORD", ""),
		S3Endpoint:      getenv("S3_ENDPOINT", ""),
		S3Region:        getenv("S3_REGION", "auto"),
		S3Bucket:        getenv("S3_BUCKET", "webchat-files"),
		S3AccessKey:     getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getenv("S3_SECRET_KEY", ""),
		PublicBaseURL:   getenv("PUBLIC_BASE_URL", "http://localhost:8080/files"),
	}
}

// Validate 校验启动必需项，配置错误时进程应当直接失败而不是带病运行。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: database dsn must not be empty")
	}
	if cfg.UploadPolicy != UploadPolicyAdmin && cfg.UploadPolicy != UploadPolicyAny {
		return errors.New("config: upload policy must be admin or any")
	}
	if cfg.SessionTTLHours <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	if cfg.Env == "prod" && cfg.S3SecretKey == "" && cfg.S3Endpoint != "" {
		return errors.New("config: s3 secret key required in prod when s3 endpoint is set")
	}
	return nil
}
