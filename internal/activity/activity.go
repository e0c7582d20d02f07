// Package activity is the logging collaborator: a durable, human readable
// record of what the pipeline did for each domain event.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var ErrInvalidEntry = errors.New("invalid activity entry")

type Entry struct {
	ID        string                 `json:"id"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Tenant    string                 `json:"tenant,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type Log interface {
	Append(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

func validateEntry(e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.Join(ErrInvalidEntry, errors.New("id is required"))
	}
	if strings.TrimSpace(e.Message) == "" {
		return errors.Join(ErrInvalidEntry, errors.New("message is required"))
	}
	switch e.Level {
	case LevelInfo, LevelWarn, LevelError:
	default:
		return errors.Join(ErrInvalidEntry, errors.New("unknown level "+string(e.Level)))
	}
	if e.CreatedAt.IsZero() {
		return errors.Join(ErrInvalidEntry, errors.New("created_at is required"))
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
