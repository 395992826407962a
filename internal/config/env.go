package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskboard/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskboard/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

// ArchivalEnv holds the global fallback for the archival sweeps. Dealerships
// may override these via the settings file (SETTINGS_PATH).
type ArchivalEnv struct {
	SettingsPath        string `envconfig:"SETTINGS_PATH" default:".taskboard/settings.yaml"`
	CompletedSweepAt    string `envconfig:"COMPLETED_SWEEP_AT" default:"03:00"`
	OverdueSweepDay     string `envconfig:"OVERDUE_SWEEP_DAY" default:"Monday"`
	OverdueSweepAt      string `envconfig:"OVERDUE_SWEEP_AT" default:"04:00"`
	PostShiftDelayHours int    `envconfig:"POST_SHIFT_DELAY_HOURS" default:"2"`
	SweepBatchSize      int    `envconfig:"SWEEP_BATCH_SIZE" default:"200"`
}

type ProofEnv struct {
	MaxFilesPerResponse int   `envconfig:"MAX_FILES_PER_RESPONSE" default:"5"`
	MaxBatchBytes       int64 `envconfig:"MAX_BATCH_BYTES" default:"20971520"`
	FileWorkers         int   `envconfig:"FILE_WORKERS" default:"4"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@taskboard.local"`
}

type Env struct {
	BaseEnv
	StorageEnv
	ArchivalEnv
	ProofEnv
	VAPIDEnv
}

const namespace = "TASKBOARD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
