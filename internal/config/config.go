package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr      string
	PublicBaseURL   string
	LogLevel        string
	CORSOrigins     []string
	ShutdownTimeout time.Duration

	// Filesystem and external tools
	DownloadsDir    string
	CookiesPath     string
	YtdlpPath       string
	FFmpegPath      string
	FFprobePath     string
	AcceleratorPath string

	// Job lifecycle
	HandshakeTimeout       time.Duration
	FileGracePeriod        time.Duration
	RetentionWindow        time.Duration
	SweepInterval          time.Duration
	JobLinger              time.Duration
	MaxConcurrentDownloads int

	// Rate limiting (0 disables)
	RateLimitRPS   float64
	RateLimitBurst int

	// Redis is optional: metadata cache and job snapshots
	RedisURL         string
	MetadataCacheTTL time.Duration

	// Artifact mirror: "", "minio" or "s3"
	MirrorDriver   string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string

	// Postgres is optional: download history
	DatabaseURL string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over .env entries.
func Load() *Config {
	_ = godotenv.Load()

	addr := getEnvOrDefault("SERVER_ADDR", "")
	if addr == "" {
		addr = ":" + getEnvOrDefault("PORT", "5000")
	}

	downloads := getEnvOrDefault("DOWNLOADS_DIR", "downloads")
	if abs, err := filepath.Abs(downloads); err == nil {
		downloads = abs
	}

	return &Config{
		ServerAddr:      addr,
		PublicBaseURL:   strings.TrimRight(getEnvOrDefault("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		CORSOrigins:     splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		DownloadsDir:    downloads,
		CookiesPath:     getEnvOrDefault("COOKIES_PATH", "cookies.txt"),
		YtdlpPath:       getEnvOrDefault("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:      getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		AcceleratorPath: getEnvOrDefault("ARIA2C_PATH", ""),

		HandshakeTimeout:       getDurationEnv("HANDSHAKE_TIMEOUT", 5*time.Second),
		FileGracePeriod:        getDurationEnv("FILE_GRACE_PERIOD", 5*time.Second),
		RetentionWindow:        getDurationEnv("RETENTION_WINDOW", time.Hour),
		SweepInterval:          getDurationEnv("SWEEP_INTERVAL", 30*time.Minute),
		JobLinger:              getDurationEnv("JOB_LINGER", 10*time.Minute),
		MaxConcurrentDownloads: getIntEnv("MAX_CONCURRENT_DOWNLOADS", 8),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		RedisURL:         getEnvOrDefault("REDIS_URL", ""),
		MetadataCacheTTL: getDurationEnv("METADATA_CACHE_TTL", 10*time.Minute),

		MirrorDriver:   strings.ToLower(getEnvOrDefault("MIRROR_DRIVER", "")),
		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "downloads"),
		MinioUseSSL:    getBoolEnv("MINIO_USE_SSL", false),
		S3Region:       getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:     getEnvOrDefault("S3_ENDPOINT", ""),
		S3AccessKey:    getEnvOrDefault("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnvOrDefault("S3_SECRET_KEY", ""),
		S3Bucket:       getEnvOrDefault("S3_BUCKET", ""),

		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.DownloadsDir == "" {
		errs = append(errs, errors.New("DOWNLOADS_DIR must not be empty"))
	}
	if c.MaxConcurrentDownloads <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be positive, got %d", c.MaxConcurrentDownloads))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("HANDSHAKE_TIMEOUT must be positive"))
	}
	if c.SweepInterval <= 0 || c.RetentionWindow <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL and RETENTION_WINDOW must be positive"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}

	switch c.MirrorDriver {
	case "":
	case "minio":
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			errs = append(errs, errors.New("MIRROR_DRIVER=minio requires MINIO_ENDPOINT and MINIO_BUCKET"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("MIRROR_DRIVER=s3 requires S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MIRROR_DRIVER %q", c.MirrorDriver))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloatEnv(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getBoolEnv(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getDurationEnv accepts Go durations ("90s") or bare seconds ("90").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
