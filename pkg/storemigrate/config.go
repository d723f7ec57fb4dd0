package storemigrate

import (
	"log/slog"
	"strings"
	"time"
)

type Engine string

const (
	EngineSQLite Engine = "sqlite"
	EngineBolt   Engine = "bolt"
)

// Config defines how Open reaches the database and runs migrations.
type Config struct {
	Engine Engine
	Path   string
	// Fast enables WAL and relaxed syncing on SQLite.
	Fast           bool
	UpgradeTimeout time.Duration
	Logger         *slog.Logger
	Hooks          Hooks
	// OnDiagnostic receives recoverable misuse, such as an operation that
	// advances twice.
	OnDiagnostic func(error)
}

func DefaultConfig(path string) Config {
	return Config{
		Engine:         EngineSQLite,
		Path:           path,
		UpgradeTimeout: 30 * time.Second,
	}
}

func normalizeConfig(cfg Config) (Config, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return cfg, ErrPathRequired
	}
	switch cfg.Engine {
	case "":
		cfg.Engine = EngineSQLite
	case EngineSQLite, EngineBolt:
	default:
		return cfg, ErrUnknownEngine
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg, nil
}
