package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string
	Env         string

	// Object storage
	UploadProvider     string // "s3", "cloudinary" or "local"
	S3AccessKeyID      string
	S3SecretAccessKey  string
	S3Region           string
	S3Bucket           string
	CloudinaryName     string
	CloudinaryKey      string
	CloudinarySecret   string
	LocalUploadDir     string
	LocalUploadBaseURL string

	// Agent
	OpenAIKey        string
	AgentCallTimeout time.Duration
	ManualReplyGrace time.Duration

	// Buffer default when a tenant has no explicit window configured
	DefaultBufferSecs int

	// Direct WhatsApp channel (whatsmeow session store)
	WhatsAppStoreURL string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               os.Getenv("PORT"),
		Env:                os.Getenv("ENV"),
		UploadProvider:     os.Getenv("UPLOAD_PROVIDER"),
		S3AccessKeyID:      os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretAccessKey:  os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Region:           os.Getenv("AWS_REGION"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		CloudinaryName:     os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:      os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret:   os.Getenv("CLOUDINARY_API_SECRET"),
		LocalUploadDir:     os.Getenv("LOCAL_UPLOAD_DIR"),
		LocalUploadBaseURL: os.Getenv("LOCAL_UPLOAD_BASE_URL"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		WhatsAppStoreURL:   os.Getenv("WHATSAPP_STORE_URL"),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.UploadProvider == "" {
		cfg.UploadProvider = "local"
	}
	if cfg.LocalUploadDir == "" {
		cfg.LocalUploadDir = "./uploads"
	}

	cfg.AgentCallTimeout = envDuration("AGENT_CALL_TIMEOUT", 60*time.Second)
	cfg.ManualReplyGrace = envDuration("MANUAL_REPLY_GRACE", 10*time.Second)
	cfg.DefaultBufferSecs = envInt("DEFAULT_BUFFER_SECONDS", 6)

	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
