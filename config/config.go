package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ListenAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// JWT配置
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// 微信开放平台（网页扫码登录）
	WechatAppID       string
	WechatAppSecret   string
	WechatRedirectURI string

	// 微信小程序
	WechatMiniAppID     string
	WechatMiniAppSecret string

	// 短信网关
	SMSSandbox   bool   // 沙箱模式不真正下发短信，验证码固定
	SMSAPIURL    string
	SMSAPIKey    string
	SMSAPISecret string
	SMSFixedCode string // 沙箱模式使用的固定验证码

	// 验证码策略
	CodeLength   int
	CodeTTL      time.Duration
	CodeCooldown time.Duration
	StateTTL     time.Duration

	// MinIO 对象存储（微信头像转存）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string
	MinioPublicURL string

	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration 读取秒数配置并转为 time.Duration
func getEnvDuration(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "taskhub"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:       getEnv("JWT_SECRET", "taskhub-dev-secret"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 2*60*60),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*60*60),

		WechatAppID:       os.Getenv("WECHAT_APP_ID"),
		WechatAppSecret:   os.Getenv("WECHAT_APP_SECRET"),
		WechatRedirectURI: getEnv("WECHAT_REDIRECT_URI", "http://localhost:8080/api/auth/wechat/callback"),

		WechatMiniAppID:     os.Getenv("WECHAT_MINI_APP_ID"),
		WechatMiniAppSecret: os.Getenv("WECHAT_MINI_APP_SECRET"),

		SMSSandbox:   getEnvBool("SMS_SANDBOX", true),
		SMSAPIURL:    getEnv("SMS_API_URL", "https://api.sms-gateway.cn/v2/send"),
		SMSAPIKey:    os.Getenv("SMS_API_KEY"),
		SMSAPISecret: os.Getenv("SMS_API_SECRET"),
		SMSFixedCode: getEnv("SMS_FIXED_CODE", "123456"),

		CodeLength:   getEnvInt("CODE_LENGTH", 6),
		CodeTTL:      getEnvDuration("CODE_TTL", 5*60),
		CodeCooldown: getEnvDuration("CODE_COOLDOWN", 60),
		StateTTL:     getEnvDuration("STATE_TTL", 10*60),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:    getEnv("MINIO_BUCKET", "avatars"),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", "http://127.0.0.1:9000/avatars"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
