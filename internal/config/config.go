package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	YouTube   YouTubeConfig   `mapstructure:"youtube" yaml:"youtube"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-" yaml:"-"`
	MigrateOnly  bool `mapstructure:"-" yaml:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests" yaml:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes" yaml:"window_minutes"`
}

// AIConfig OpenAI 兼容接口配置
type AIConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	Model             string  `mapstructure:"model" yaml:"model"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`
}

// LogConfig File 为空时只输出到控制台；Console 取值 stdout / stderr / none
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	Console    string `mapstructure:"console" yaml:"console"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SessionConfig 内存中出题会话的淘汰策略，非正数表示不限制
type SessionConfig struct {
	MaxSessions    int `mapstructure:"max_sessions" yaml:"max_sessions"`
	IdleTTLMinutes int `mapstructure:"idle_ttl_minutes" yaml:"idle_ttl_minutes"`
}

type YouTubeConfig struct {
	Language string `mapstructure:"language" yaml:"language"`
}

// PipelineConfig 字幕切分、出题、判分相关的可调参数
type PipelineConfig struct {
	SilenceThresholdMs       int64          `mapstructure:"silence_threshold_ms" yaml:"silence_threshold_ms" validate:"gte=0"`
	MaxSegmentDurationMs     int64          `mapstructure:"max_segment_duration_ms" yaml:"max_segment_duration_ms" validate:"gt=0"`
	MaxSegmentTextLength     int            `mapstructure:"max_segment_text_length" yaml:"max_segment_text_length" validate:"gt=0"`
	MinCueDurationMs         int64          `mapstructure:"min_cue_duration_ms" yaml:"min_cue_duration_ms" validate:"gt=0"`
	QuestionCount            int            `mapstructure:"question_count" yaml:"question_count" validate:"gt=0"`
	MaxQuestionCount         int            `mapstructure:"max_question_count" yaml:"max_question_count" validate:"gtefield=QuestionCount"`
	QuestionTypeDistribution map[string]int `mapstructure:"question_type_distribution" yaml:"question_type_distribution" validate:"required,min=1,dive,keys,oneof=multiple_choice fill_in_the_blank short_answer,endkeys,gte=0"`
	ContextWindowSegments    int            `mapstructure:"context_window_segments" yaml:"context_window_segments" validate:"gte=0"`
	ServiceTimeoutMs         int64          `mapstructure:"service_timeout_ms" yaml:"service_timeout_ms" validate:"gt=0"`
	GenerationRetryLimit     int            `mapstructure:"generation_retry_limit" yaml:"generation_retry_limit" validate:"gte=0"`
	GenerationConcurrency    int            `mapstructure:"generation_concurrency" yaml:"generation_concurrency" validate:"gt=0"`
	MinGenerationTextLength  int            `mapstructure:"min_generation_text_length" yaml:"min_generation_text_length" validate:"gte=0"`
	KeywordOverlapThreshold  float64        `mapstructure:"keyword_overlap_threshold" yaml:"keyword_overlap_threshold" validate:"gt=0,lte=1"`
	ShortAnswerPassScore     int            `mapstructure:"short_answer_pass_score" yaml:"short_answer_pass_score" validate:"gt=0,lte=100"`
}

func (p PipelineConfig) SilenceThreshold() time.Duration {
	return time.Duration(p.SilenceThresholdMs) * time.Millisecond
}

func (p PipelineConfig) MaxSegmentDuration() time.Duration {
	return time.Duration(p.MaxSegmentDurationMs) * time.Millisecond
}

func (p PipelineConfig) MinCueDuration() time.Duration {
	return time.Duration(p.MinCueDurationMs) * time.Millisecond
}

func (p PipelineConfig) ServiceTimeout() time.Duration {
	return time.Duration(p.ServiceTimeoutMs) * time.Millisecond
}

// Validate 校验参数取值范围，配置热更新时同样会调用
func (p PipelineConfig) Validate() error {
	return validator.New().Struct(p)
}

// DefaultPipelineConfig 默认参数，均可在配置文件中覆盖
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SilenceThresholdMs:       10000,
		MaxSegmentDurationMs:     60000,
		MaxSegmentTextLength:     1200,
		MinCueDurationMs:         2000,
		QuestionCount:            10,
		MaxQuestionCount:         50,
		QuestionTypeDistribution: map[string]int{"multiple_choice": 1},
		ContextWindowSegments:    1,
		ServiceTimeoutMs:         20000,
		GenerationRetryLimit:     1,
		GenerationConcurrency:    4,
		MinGenerationTextLength:  80,
		KeywordOverlapThreshold:  0.5,
		ShortAnswerPassScore:     75,
	}
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	User       string `mapstructure:"user" yaml:"user"`
	Password   string `mapstructure:"password" yaml:"password"`
	DBName     string `mapstructure:"dbname" yaml:"dbname"`
	Charset    string `mapstructure:"charset" yaml:"charset"`
	ParseTime  bool   `mapstructure:"parsetime" yaml:"parsetime"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	LocalPath     string `mapstructure:"local_path" yaml:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint" yaml:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key" yaml:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key" yaml:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket" yaml:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint" yaml:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key" yaml:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key" yaml:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket" yaml:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint" yaml:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

func setDefaults() {
	d := DefaultPipelineConfig()
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.sqlite_path", "data/video_quiz.db")
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local_path", "uploads")
	viper.SetDefault("ai.timeout_seconds", 60)
	viper.SetDefault("ai.requests_per_second", 2)
	viper.SetDefault("ai.burst", 4)
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("youtube.language", "en")
	viper.SetDefault("rate_limit.max_requests", 600)
	viper.SetDefault("rate_limit.window_minutes", 1)
	viper.SetDefault("log.file", "logs/app.log")
	viper.SetDefault("log.console", "stdout")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("session.max_sessions", 1000)
	viper.SetDefault("session.idle_ttl_minutes", 30)

	viper.SetDefault("pipeline.silence_threshold_ms", d.SilenceThresholdMs)
	viper.SetDefault("pipeline.max_segment_duration_ms", d.MaxSegmentDurationMs)
	viper.SetDefault("pipeline.max_segment_text_length", d.MaxSegmentTextLength)
	viper.SetDefault("pipeline.min_cue_duration_ms", d.MinCueDurationMs)
	viper.SetDefault("pipeline.question_count", d.QuestionCount)
	viper.SetDefault("pipeline.max_question_count", d.MaxQuestionCount)
	viper.SetDefault("pipeline.context_window_segments", d.ContextWindowSegments)
	viper.SetDefault("pipeline.service_timeout_ms", d.ServiceTimeoutMs)
	viper.SetDefault("pipeline.generation_retry_limit", d.GenerationRetryLimit)
	viper.SetDefault("pipeline.generation_concurrency", d.GenerationConcurrency)
	viper.SetDefault("pipeline.min_generation_text_length", d.MinGenerationTextLength)
	viper.SetDefault("pipeline.keyword_overlap_threshold", d.KeywordOverlapThreshold)
	viper.SetDefault("pipeline.short_answer_pass_score", d.ShortAnswerPassScore)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("VIDEO_QUIZ")
	viper.AutomaticEnv()

	setDefaults()

	// Database
	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("log.level", "LOG_LEVEL")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// Storage / OSS
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	viper.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	viper.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	viper.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// map 类型不走 viper 默认值，避免与配置文件中的键合并
	if len(cfg.Pipeline.QuestionTypeDistribution) == 0 {
		cfg.Pipeline.QuestionTypeDistribution = DefaultPipelineConfig().QuestionTypeDistribution
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
