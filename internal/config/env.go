package config

import (
    "errors"
    "io/fs"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// HTTPConfig holds the listener and upload limits.
type HTTPConfig struct {
    Port           string
    MaxUploadBytes int64
    ShutdownGrace  time.Duration
}

// WorkerConfig bounds job and image parallelism.
type WorkerConfig struct {
    Concurrency      int
    ImageConcurrency int
    PollTimeout      time.Duration
}

// JobsConfig controls retention of finished jobs.
type JobsConfig struct {
    Retention     time.Duration
    SweepInterval time.Duration
    TempDir       string
}

// ToolsConfig configures the Ghostscript bridge.
type ToolsConfig struct {
    GhostscriptBinaries []string
    GhostscriptTimeout  time.Duration
    MaxInflight         int
    BreakerThreshold    int
    BreakerBaseBackoff  time.Duration
    BreakerMaxBackoff   time.Duration
}

// QueueConfig defines queue backend, connectivity and names.
type QueueConfig struct {
    Backend      string // "memory"|"redis"
    RedisURL     string
    Stream       string
    Group        string
    StatusMirror bool
    StatusTTL    time.Duration
}

// StorageConfig configures the optional S3 result archive.
type StorageConfig struct {
    Bucket          string
    Prefix          string
    Region          string
    Endpoint        string
    AccessKeyID     string
    SecretAccessKey string
    SSE             string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    HTTP    HTTPConfig
    Worker  WorkerConfig
    Jobs    JobsConfig
    Tools   ToolsConfig
    Queue   QueueConfig
    Storage StorageConfig
}

// LoadDotEnv reads .env.local then .env from the working directory. Values
// already in the environment win; missing files are ignored.
func LoadDotEnv() error {
    for _, f := range []string{".env.local", ".env"} {
        if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return err
        }
    }
    return nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/drawcompress.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_drawcompress",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.HTTP = HTTPConfig{
        Port:           getEnv("PORT", "5001"),
        MaxUploadBytes: int64(parseInt(getEnv("MAX_UPLOAD_MB", "600"), 600)) << 20,
        ShutdownGrace:  parseDuration(getEnv("SHUTDOWN_GRACE", "30s"), 30*time.Second),
    }

    cfg.Worker = WorkerConfig{
        Concurrency:      parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        ImageConcurrency: parseInt(getEnv("IMAGE_CONCURRENCY", "0"), 0),
        PollTimeout:      parseDuration(getEnv("QUEUE_POLL_TIMEOUT", "2s"), 2*time.Second),
    }
    if cfg.Worker.Concurrency < 1 { cfg.Worker.Concurrency = 1 }

    cfg.Jobs = JobsConfig{
        Retention:     parseDuration(getEnv("JOB_RETENTION", "1h"), time.Hour),
        SweepInterval: parseDuration(getEnv("SWEEP_INTERVAL", "10m"), 10*time.Minute),
        TempDir:       getEnv("JOB_TEMP_DIR", filepath.Join(os.TempDir(), "drawcompress")),
    }

    cfg.Tools = ToolsConfig{
        GhostscriptBinaries: parseList(getEnv("GHOSTSCRIPT_BINARIES", "gs,gswin64c,gswin32c")),
        GhostscriptTimeout:  parseDuration(getEnv("GHOSTSCRIPT_TIMEOUT", "10m"), 10*time.Minute),
        MaxInflight:         parseInt(getEnv("GHOSTSCRIPT_MAX_INFLIGHT", "2"), 2),
        BreakerThreshold:    parseInt(getEnv("GHOSTSCRIPT_BREAKER_THRESHOLD", "3"), 3),
        BreakerBaseBackoff:  parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
        BreakerMaxBackoff:   parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
    }

    // Queue defaults
    cfg.Queue = QueueConfig{
        Backend:      strings.ToLower(getEnv("QUEUE_BACKEND", "memory")),
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:drawcompress"),
        Group:        getEnv("QUEUE_GROUP", "workers:drawcompress"),
        StatusMirror: parseBool(getEnv("STATUS_MIRROR", "0")),
        StatusTTL:    parseDuration(getEnv("STATUS_TTL", "2h"), 2*time.Hour),
    }

    cfg.Storage = StorageConfig{
        Bucket:          getEnv("RESULT_S3_BUCKET", ""),
        Prefix:          getEnv("RESULT_S3_PREFIX", "results/"),
        Region:          getEnv("AWS_REGION", ""),
        Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
        AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        SSE:             getEnv("RESULT_S3_SSE", "AES256"),
    }

    return cfg
}

// UsesRedis reports whether any component needs a Redis connection.
func (c Config) UsesRedis() bool { return c.Queue.Backend == "redis" || c.Queue.StatusMirror }

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

// parseDuration accepts Go durations ("90s", "1h") and bare seconds ("3600").
func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    if n, err := strconv.Atoi(s); err == nil { return time.Duration(n) * time.Second }
    return def
}

func parseList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
