package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskboard-labs/taskboard/internal/domain"
	"github.com/taskboard-labs/taskboard/internal/platform/env"
)

type serverConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	UploadMaxBytes  int64
	PresignTTL      time.Duration
	BoardConfigPath string
	MeetingURL      string
}

func serverConfigFromEnv() (serverConfig, error) {
	shutdownTimeout, err := env.Duration("TASKBOARD_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return serverConfig{}, err
	}
	uploadMaxMiB, err := env.Int64("TASKBOARD_UPLOAD_MAX_MIB", 10)
	if err != nil {
		return serverConfig{}, err
	}
	presignTTL, err := env.Duration("TASKBOARD_PRESIGN_TTL", 15*time.Minute)
	if err != nil {
		return serverConfig{}, err
	}
	cfg := serverConfig{
		Addr:            env.String("TASKBOARD_HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdownTimeout,
		UploadMaxBytes:  uploadMaxMiB << 20,
		PresignTTL:      presignTTL,
		BoardConfigPath: env.String("TASKBOARD_BOARD_CONFIG", ""),
		MeetingURL:      env.String("TASKBOARD_MEETING_URL", ""),
	}
	return cfg, cfg.Validate()
}

func (c serverConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("TASKBOARD_HTTP_ADDR is required")
	}
	if c.UploadMaxBytes <= 0 {
		return errors.New("TASKBOARD_UPLOAD_MAX_MIB must be > 0")
	}
	if c.PresignTTL <= 0 || c.PresignTTL > 7*24*time.Hour {
		return errors.New("TASKBOARD_PRESIGN_TTL must be within (0, 168h]")
	}
	if err := domain.ValidateBookingURL(c.MeetingURL); err != nil {
		return fmt.Errorf("TASKBOARD_MEETING_URL: %w", err)
	}
	return nil
}
