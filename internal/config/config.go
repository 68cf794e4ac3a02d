package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	DetectorWSURL string
	FrameLogPath  string

	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	LabelsDir string
	StartFEN  string

	MinConfidence      float64
	RetryLimit         int
	ValidateEveryMoves int
	ValidateEvery      time.Duration

	EngineAddr       string
	EngineThreads    int
	EngineHashMB     int
	EngineMultiPV    int
	EngineMovetimeMS int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8090",
		MinConfidence:      0.5,
		RetryLimit:         3,
		ValidateEveryMoves: 10,
		ValidateEvery:      30 * time.Second,
		EngineThreads:      1,
		EngineHashMB:       64,
		EngineMultiPV:      3,
		EngineMovetimeMS:   800,
	}

	cfg.DetectorWSURL = strings.TrimSpace(os.Getenv("DETECTOR_WS_URL"))
	cfg.FrameLogPath = strings.TrimSpace(os.Getenv("FRAME_LOG"))

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.LabelsDir = strings.TrimSpace(os.Getenv("LABELS_DIR"))
	cfg.StartFEN = strings.TrimSpace(os.Getenv("START_FEN"))

	if v := strings.TrimSpace(os.Getenv("CONF_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, errors.New("CONF_THRESHOLD must be a number in [0,1]")
		}
		cfg.MinConfidence = f
	}
	if v := strings.TrimSpace(os.Getenv("RETRY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetryLimit = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VALIDATE_EVERY_MOVES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ValidateEveryMoves = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VALIDATE_EVERY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("VALIDATE_EVERY must be a positive duration")
		}
		cfg.ValidateEvery = d
	}

	cfg.EngineAddr = strings.TrimSpace(os.Getenv("UCI_ENGINE_ADDR"))
	if v := strings.TrimSpace(os.Getenv("UCI_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThreads = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_HASH_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineHashMB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_MULTIPV")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineMultiPV = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("UCI_MOVETIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineMovetimeMS = n
		}
	}

	if cfg.DetectorWSURL == "" && cfg.FrameLogPath == "" {
		return nil, errors.New("one of DETECTOR_WS_URL or FRAME_LOG is required")
	}

	return cfg, nil
}
