package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/walletd/internal/model"
)

type Config struct {
	DatabaseURL string // WALLETD_DATABASE_URL (optional, empty = in-memory store)
	GRPCAddr    string // WALLETD_GRPC_ADDR (default ":9090")
	HTTPAddr    string // WALLETD_HTTP_ADDR (default ":8080")
	NATSURL     string // WALLETD_NATS_URL (optional, empty = no relay)
	InstanceID  string // WALLETD_INSTANCE_ID (default hostname); NATS origin
	AuthToken   string // WALLETD_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel    slog.Level

	// Lock behaviour
	Suspendable     bool          // WALLETD_SUSPENDABLE (default false); persistent alarms
	DefaultTimeout  model.Minutes // WALLETD_DEFAULT_TIMEOUT (minutes, default 0 = disabled)
	StartUnlocked   bool          // WALLETD_START_UNLOCKED (default false)
	LockHook        string        // WALLETD_LOCK_HOOK (shell command run on every lock)
	LockHookTimeout time.Duration // WALLETD_LOCK_HOOK_TIMEOUT (default 30s)

	// Bridge status API
	BridgeAPIURL   string // WALLETD_BRIDGE_API_URL (default public bridge API)
	BridgeClientID string // WALLETD_BRIDGE_CLIENT_ID (default "walletd")

	// Snapshot settings
	SnapshotInterval   time.Duration // WALLETD_SNAPSHOT_INTERVAL (default 5m; 0 = disabled)
	SnapshotFile       string        // WALLETD_SNAPSHOT_FILE (enables a local file destination)
	SnapshotS3Bucket   string        // WALLETD_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // WALLETD_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // WALLETD_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // WALLETD_SNAPSHOT_S3_KEY (default "walletd/state.jsonl")
	SnapshotS3History  bool          // WALLETD_SNAPSHOT_S3_HISTORY (also keep timestamped copies)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:        os.Getenv("WALLETD_DATABASE_URL"),
		GRPCAddr:           envOrDefault("WALLETD_GRPC_ADDR", ":9090"),
		HTTPAddr:           envOrDefault("WALLETD_HTTP_ADDR", ":8080"),
		NATSURL:            os.Getenv("WALLETD_NATS_URL"),
		InstanceID:         os.Getenv("WALLETD_INSTANCE_ID"),
		AuthToken:          os.Getenv("WALLETD_AUTH_TOKEN"),
		LockHook:           os.Getenv("WALLETD_LOCK_HOOK"),
		BridgeAPIURL:       os.Getenv("WALLETD_BRIDGE_API_URL"),
		BridgeClientID:     envOrDefault("WALLETD_BRIDGE_CLIENT_ID", "walletd"),
		SnapshotFile:       os.Getenv("WALLETD_SNAPSHOT_FILE"),
		SnapshotS3Bucket:   os.Getenv("WALLETD_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Endpoint: os.Getenv("WALLETD_SNAPSHOT_S3_ENDPOINT"),
		SnapshotS3Region:   envOrDefault("WALLETD_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Key:      envOrDefault("WALLETD_SNAPSHOT_S3_KEY", "walletd/state.jsonl"),
	}

	if c.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "walletd"
		}
		c.InstanceID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	var err error
	if c.Suspendable, err = envBool("WALLETD_SUSPENDABLE"); err != nil {
		return nil, err
	}
	if c.StartUnlocked, err = envBool("WALLETD_START_UNLOCKED"); err != nil {
		return nil, err
	}
	if c.SnapshotS3History, err = envBool("WALLETD_SNAPSHOT_S3_HISTORY"); err != nil {
		return nil, err
	}

	if s := os.Getenv("WALLETD_DEFAULT_TIMEOUT"); s != "" {
		m, ok := model.ParseMinutes(s)
		if !ok {
			return nil, fmt.Errorf("WALLETD_DEFAULT_TIMEOUT: %q is not a non-negative number of minutes", s)
		}
		c.DefaultTimeout = m
	}

	if c.LockHookTimeout, err = envDuration("WALLETD_LOCK_HOOK_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = envDuration("WALLETD_SNAPSHOT_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	if err := c.LogLevel.UnmarshalText([]byte(envOrDefault("WALLETD_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("WALLETD_LOG_LEVEL: %w", err)
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
