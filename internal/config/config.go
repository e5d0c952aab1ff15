package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/deepfake-detector/api/internal/domain/analysis"
)

// DefaultPath is read when CONFIG_PATH is unset; it may be absent.
const DefaultPath = "config.yaml"

// Duration accepts "90s", "5m" style values from yaml, toml and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	LogLevel string `yaml:"logLevel" toml:"logLevel" env:"LOG_LEVEL"`

	Server struct {
		Port            int      `yaml:"port" toml:"port" env:"PORT"`
		ReadTimeout     Duration `yaml:"readTimeout" toml:"readTimeout" env:"SERVER_READ_TIMEOUT"`
		WriteTimeout    Duration `yaml:"writeTimeout" toml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT"`
		ShutdownTimeout Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
		MaxUploadMB     int64    `yaml:"maxUploadMB" toml:"maxUploadMB" env:"MAX_UPLOAD_MB"`

		// RateLimit is the per-IP burst on analysis routes; 0 disables it.
		RateLimit       int     `yaml:"rateLimit" toml:"rateLimit" env:"RATE_LIMIT"`
		RateLimitPerSec float64 `yaml:"rateLimitPerSec" toml:"rateLimitPerSec" env:"RATE_LIMIT_PER_SEC"`
	} `yaml:"server" toml:"server"`

	Database struct {
		Driver     string `yaml:"driver" toml:"driver" env:"DATABASE_DRIVER"`
		Host       string `yaml:"host" toml:"host" env:"DATABASE_HOST"`
		Port       int    `yaml:"port" toml:"port" env:"DATABASE_PORT"`
		User       string `yaml:"user" toml:"user" env:"DATABASE_USER"`
		Password   string `yaml:"password" toml:"password" env:"DATABASE_PASSWORD"`
		Name       string `yaml:"name" toml:"name" env:"DATABASE_NAME"`
		SSLMode    string `yaml:"sslMode" toml:"sslMode" env:"DATABASE_SSLMODE"`
		SQLitePath string `yaml:"sqlitePath" toml:"sqlitePath" env:"SQLITE_PATH"`
	} `yaml:"database" toml:"database"`

	Storage struct {
		Driver    string `yaml:"driver" toml:"driver" env:"STORAGE_DRIVER"`
		LocalPath string `yaml:"localPath" toml:"localPath" env:"STORAGE_LOCAL_PATH"`
	} `yaml:"storage" toml:"storage"`

	Minio struct {
		Endpoint   string `yaml:"endpoint" toml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey  string `yaml:"accessKey" toml:"accessKey" env:"MINIO_ACCESS_KEY"`
		SecretKey  string `yaml:"secretKey" toml:"secretKey" env:"MINIO_SECRET_KEY"`
		BucketName string `yaml:"bucketName" toml:"bucketName" env:"MINIO_BUCKET"`
		Region     string `yaml:"region" toml:"region" env:"MINIO_REGION"`
		UseSSL     bool   `yaml:"useSSL" toml:"useSSL" env:"MINIO_USE_SSL"`
	} `yaml:"minio" toml:"minio"`

	RabbitMQ struct {
		// URL empty disables retraining messages.
		URL      string `yaml:"url" toml:"url" env:"RABBITMQ_URL"`
		Exchange string `yaml:"exchange" toml:"exchange" env:"RABBITMQ_EXCHANGE"`
		Queue    string `yaml:"queue" toml:"queue" env:"RABBITMQ_RETRAINING_QUEUE"`
	} `yaml:"rabbitmq" toml:"rabbitmq"`

	Model struct {
		Path         string `yaml:"path" toml:"path" env:"MODEL_PATH"`
		LibraryPath  string `yaml:"libraryPath" toml:"libraryPath" env:"ONNXRUNTIME_LIB"`
		InputName    string `yaml:"inputName" toml:"inputName" env:"MODEL_INPUT_NAME"`
		OutputName   string `yaml:"outputName" toml:"outputName" env:"MODEL_OUTPUT_NAME"`
		Version      string `yaml:"version" toml:"version" env:"MODEL_VERSION"`
		InputSize    int    `yaml:"inputSize" toml:"inputSize" env:"MODEL_INPUT_SIZE"`
		ChannelOrder string `yaml:"channelOrder" toml:"channelOrder" env:"MODEL_CHANNEL_ORDER"`
	} `yaml:"model" toml:"model"`

	Analysis struct {
		FrameThreshold    float64  `yaml:"frameThreshold" toml:"frameThreshold" env:"FRAME_THRESHOLD"`
		MajorityThreshold float64  `yaml:"majorityThreshold" toml:"majorityThreshold" env:"MAJORITY_THRESHOLD"`
		SampleEvery       int      `yaml:"sampleEvery" toml:"sampleEvery" env:"SAMPLE_EVERY"`
		MinRetained       int      `yaml:"minRetained" toml:"minRetained" env:"MIN_RETAINED"`
		Workers           int      `yaml:"workers" toml:"workers" env:"WORKER_COUNT"`
		Window            int      `yaml:"window" toml:"window" env:"REORDER_WINDOW"`
		Timeout           Duration `yaml:"timeout" toml:"timeout" env:"ANALYSIS_TIMEOUT"`
		StoreConcurrency  int      `yaml:"storeConcurrency" toml:"storeConcurrency" env:"STORE_CONCURRENCY"`
		StoreTimeout      Duration `yaml:"storeTimeout" toml:"storeTimeout" env:"STORE_TIMEOUT"`
		StoreQueue        int      `yaml:"storeQueue" toml:"storeQueue" env:"STORE_QUEUE"`
		StoreGrace        Duration `yaml:"storeGrace" toml:"storeGrace" env:"STORE_GRACE"`
		JPEGQuality       int      `yaml:"jpegQuality" toml:"jpegQuality" env:"JPEG_QUALITY"`
		TempDir           string   `yaml:"tempDir" toml:"tempDir" env:"TEMP_DIR"`
	} `yaml:"analysis" toml:"analysis"`

	FFmpeg struct {
		FFmpegPath  string `yaml:"ffmpegPath" toml:"ffmpegPath" env:"FFMPEG_PATH"`
		FFprobePath string `yaml:"ffprobePath" toml:"ffprobePath" env:"FFPROBE_PATH"`
	} `yaml:"ffmpeg" toml:"ffmpeg"`

	Tracing struct {
		// Endpoint empty disables tracing.
		Endpoint    string `yaml:"endpoint" toml:"endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
		ServiceName string `yaml:"serviceName" toml:"serviceName" env:"OTEL_SERVICE_NAME"`
	} `yaml:"tracing" toml:"tracing"`
}

// Load reads path (yaml, or toml by extension), overlays environment
// variables and fills defaults. A missing DefaultPath is not an error.
func Load(path string) (*Config, error) {
	cfg := seeded()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		default:
			return nil, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// seeded returns a Config holding the defaults for fields where zero is a
// meaningful setting. File and env values overwrite them.
func seeded() Config {
	var c Config
	c.Analysis.FrameThreshold = analysis.DefaultFrameThreshold
	c.Analysis.MajorityThreshold = analysis.DefaultMajorityThreshold
	c.Analysis.SampleEvery = analysis.DefaultSampleEvery
	c.Analysis.MinRetained = analysis.DefaultMinRetained
	return c
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 2 * time.Minute
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 6 * time.Minute
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 15 * time.Second
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 512
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/deepfake.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Storage.Driver == "" {
		if c.Minio.Endpoint != "" {
			c.Storage.Driver = "minio"
		} else {
			c.Storage.Driver = "local"
		}
	}
	if c.Storage.LocalPath == "" {
		c.Storage.LocalPath = "data/evidence"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "evidence-frames"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "deepfake.feedback"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "feedback.retraining"
	}
	if c.Model.Path == "" {
		c.Model.Path = "models/model.onnx"
	}
	if c.Model.InputSize == 0 {
		c.Model.InputSize = 224
	}
	if c.Model.ChannelOrder == "" {
		c.Model.ChannelOrder = "bgr"
	}
	if c.Analysis.Timeout.Duration == 0 {
		c.Analysis.Timeout.Duration = 5 * time.Minute
	}
	if c.Analysis.StoreConcurrency == 0 {
		c.Analysis.StoreConcurrency = 4
	}
	if c.Analysis.StoreTimeout.Duration == 0 {
		c.Analysis.StoreTimeout.Duration = 10 * time.Second
	}
	if c.Analysis.StoreQueue == 0 {
		c.Analysis.StoreQueue = 64
	}
	if c.Analysis.StoreGrace.Duration == 0 {
		c.Analysis.StoreGrace.Duration = time.Second
	}
	if c.Analysis.JPEGQuality == 0 {
		c.Analysis.JPEGQuality = 80
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "deepfake-detector-api"
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "minio":
		if c.Minio.Endpoint == "" {
			return fmt.Errorf("minio.endpoint is required for storage.driver minio")
		}
	case "local":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Model.ChannelOrder) {
	case "bgr", "rgb":
	default:
		return fmt.Errorf("unknown model.channelOrder %q", c.Model.ChannelOrder)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	if c.Server.RateLimit < 0 || c.Server.RateLimitPerSec < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.Analysis.SampleEvery < 0 || c.Analysis.MinRetained < 0 {
		return fmt.Errorf("sampling values must not be negative")
	}
	if c.Analysis.JPEGQuality < 1 || c.Analysis.JPEGQuality > 100 {
		return fmt.Errorf("analysis.jpegQuality must be in [1,100], got %d", c.Analysis.JPEGQuality)
	}
	return nil
}

func (c *Config) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{Frame: c.Analysis.FrameThreshold, Majority: c.Analysis.MajorityThreshold}
}

func (c *Config) SamplingPolicy() analysis.SamplingPolicy {
	return analysis.SamplingPolicy{Every: c.Analysis.SampleEvery, MinRetained: c.Analysis.MinRetained}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.dbPort(3306),
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.dbPort(5432),
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) dbPort(def int) int {
	if c.Database.Port == 0 {
		return def
	}
	return c.Database.Port
}
