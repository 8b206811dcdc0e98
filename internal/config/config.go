package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionMode     string `yaml:"sessionMode"`
	SessionTTLHours int    `yaml:"sessionTtlHours"`
	JWTSecret       string `yaml:"jwtSecret"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AIServerURL             string `yaml:"aiServerURL"`
	AIEnabled               bool   `yaml:"aiEnabled"`
	AIConnectTimeoutSeconds int    `yaml:"aiConnectTimeoutSeconds"`
	AIReadTimeoutSeconds    int    `yaml:"aiReadTimeoutSeconds"`

	PipelineCoreWorkers         int `yaml:"pipelineCoreWorkers"`
	PipelineMaxWorkers          int `yaml:"pipelineMaxWorkers"`
	PipelineQueueDepth          int `yaml:"pipelineQueueDepth"`
	PipelineHistoryLimit        int `yaml:"pipelineHistoryLimit"`
	PipelineShutdownWaitSeconds int `yaml:"pipelineShutdownWaitSeconds"`

	AMQPURL string `yaml:"amqpURL"`

	UploadRateLimit         int `yaml:"uploadRateLimit"`
	UploadRateWindowSeconds int `yaml:"uploadRateWindowSeconds"`

	TrustForwardedFor  bool   `yaml:"trustForwardedFor"`
	CORSAllowedOrigins string `yaml:"corsAllowedOrigins"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AOD_SESSION_MODE"); v != "" {
		cfg.SessionMode = v
	}
	if v := os.Getenv("AOD_SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLHours = n
		}
	}
	if v := os.Getenv("AOD_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("AOD_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("AOD_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("AOD_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("AOD_MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("AOD_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("AOD_AI_SERVER_URL"); v != "" {
		cfg.AIServerURL = v
	}
	if v := os.Getenv("AOD_AI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AIEnabled = b
		}
	}
	if v := os.Getenv("AOD_AI_CONNECT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AIConnectTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AOD_AI_READ_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AIReadTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AOD_PIPELINE_CORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PipelineCoreWorkers = n
		}
	}
	if v := os.Getenv("AOD_PIPELINE_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PipelineMaxWorkers = n
		}
	}
	if v := os.Getenv("AOD_PIPELINE_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PipelineQueueDepth = n
		}
	}
	if v := os.Getenv("AOD_PIPELINE_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PipelineHistoryLimit = n
		}
	}
	if v := os.Getenv("AOD_PIPELINE_SHUTDOWN_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PipelineShutdownWaitSeconds = n
		}
	}
	if v := os.Getenv("AOD_AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("AOD_UPLOAD_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimit = n
		}
	}
	if v := os.Getenv("AOD_UPLOAD_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateWindowSeconds = n
		}
	}
	if v := os.Getenv("AOD_TRUST_FORWARDED_FOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TrustForwardedFor = b
		}
	}
	if v := os.Getenv("AOD_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.SessionMode == "" {
		cfg.SessionMode = "redis"
	}
	if cfg.SessionTTLHours <= 0 {
		cfg.SessionTTLHours = 24
	}
	if cfg.PipelineCoreWorkers <= 0 {
		cfg.PipelineCoreWorkers = 5
	}
	if cfg.PipelineMaxWorkers <= 0 {
		cfg.PipelineMaxWorkers = 10
	}
	if cfg.PipelineQueueDepth <= 0 {
		cfg.PipelineQueueDepth = 100
	}
	if cfg.PipelineHistoryLimit <= 0 {
		cfg.PipelineHistoryLimit = 1
	}
	if cfg.PipelineShutdownWaitSeconds <= 0 {
		cfg.PipelineShutdownWaitSeconds = 60
	}
	if cfg.AIConnectTimeoutSeconds <= 0 {
		cfg.AIConnectTimeoutSeconds = 10
	}
	if cfg.AIReadTimeoutSeconds <= 0 {
		cfg.AIReadTimeoutSeconds = 300
	}
	if cfg.UploadRateLimit <= 0 {
		cfg.UploadRateLimit = 30
	}
	if cfg.UploadRateWindowSeconds <= 0 {
		cfg.UploadRateWindowSeconds = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.SessionMode {
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required when sessionMode=redis")
		}
	case "jwt":
		if len(cfg.JWTSecret) < 32 {
			return errors.New("config: jwtSecret must be at least 32 bytes when sessionMode=jwt")
		}
	default:
		return fmt.Errorf("config: sessionMode must be redis or jwt, got %q", cfg.SessionMode)
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	if cfg.AIEnabled && strings.TrimSpace(cfg.AIServerURL) == "" {
		return errors.New("config: aiServerURL is required when aiEnabled=true")
	}
	if cfg.PipelineMaxWorkers < cfg.PipelineCoreWorkers {
		return errors.New("config: pipelineMaxWorkers must be >= pipelineCoreWorkers")
	}
	return nil
}
