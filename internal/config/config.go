package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	charmLog "github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

type DeleteMode string

const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

const (
	// DefaultMinGap matches the ordering engine's renormalization threshold.
	DefaultMinGap         = 1.0 / (1 << 20)
	DefaultMaxMoveRetries = 3
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Delete   DeleteConfig   `toml:"delete"`
	Board    BoardConfig    `toml:"board"`
	Ordering OrderingConfig `toml:"ordering"`
	Schema   SchemaConfig   `toml:"schema"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the rotating log file written in dev mode.
type DevFileConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type DeleteConfig struct {
	DefaultMode DeleteMode `toml:"default_mode"`
}

type BoardConfig struct {
	Lists []ListConfig `toml:"lists"`
}

type ListConfig struct {
	Name     string `toml:"name"`
	WIPLimit int    `toml:"wip_limit"`
}

type OrderingConfig struct {
	MinGap         float64 `toml:"min_gap"`
	MaxMoveRetries int     `toml:"max_move_retries"`
}

type SchemaConfig struct {
	MetadataPath string `toml:"metadata_path"`
	OutputPath   string `toml:"output_path"`
	Watch        bool   `toml:"watch"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	WSEndpoint  string `toml:"ws_endpoint"`
}

func defaultLists() []ListConfig {
	return []ListConfig{
		{Name: "To Do"},
		{Name: "In Progress"},
		{Name: "Done"},
	}
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled:    true,
				Dir:        ".slate/log",
				MaxSizeMB:  10,
				MaxBackups: 3,
			},
		},
		Delete: DeleteConfig{
			DefaultMode: DeleteModeArchive,
		},
		Board: BoardConfig{
			Lists: defaultLists(),
		},
		Ordering: OrderingConfig{
			MinGap:         DefaultMinGap,
			MaxMoveRetries: DefaultMaxMoveRetries,
		},
		Schema: SchemaConfig{
			Watch: true,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			WSEndpoint:  "/ws",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if _, err := charmLog.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.MaxSizeMB < 0 {
		return errors.New("logging.dev_file.max_size_mb must be >= 0")
	}
	if c.Logging.DevFile.MaxBackups < 0 {
		return errors.New("logging.dev_file.max_backups must be >= 0")
	}

	switch c.Delete.DefaultMode {
	case DeleteModeArchive, DeleteModeHard:
	default:
		return fmt.Errorf("invalid delete.default_mode: %q", c.Delete.DefaultMode)
	}

	if len(c.Board.Lists) == 0 {
		return errors.New("board.lists must include at least one list")
	}
	seen := map[string]struct{}{}
	for idx, list := range c.Board.Lists {
		name := strings.TrimSpace(list.Name)
		if name == "" {
			return fmt.Errorf("board.lists[%d].name is required", idx)
		}
		if list.WIPLimit < 0 {
			return fmt.Errorf("board.lists[%d].wip_limit must be >= 0", idx)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("board.lists[%d].name is duplicated: %s", idx, name)
		}
		seen[key] = struct{}{}
	}

	gap := c.Ordering.MinGap
	if math.IsNaN(gap) || math.IsInf(gap, 0) || gap <= 0 || gap >= 1 {
		return fmt.Errorf("ordering.min_gap must be in (0, 1): %v", gap)
	}
	if c.Ordering.MaxMoveRetries < 0 {
		return errors.New("ordering.max_move_retries must be >= 0")
	}

	endpoints := map[string]string{}
	for key, raw := range map[string]string{
		"api_endpoint": c.Server.APIEndpoint,
		"mcp_endpoint": c.Server.MCPEndpoint,
		"ws_endpoint":  c.Server.WSEndpoint,
	} {
		path := strings.Trim(strings.TrimSpace(raw), "/")
		if path == "" {
			continue
		}
		if other, ok := endpoints[path]; ok {
			return fmt.Errorf("server.%s collides with server.%s", key, other)
		}
		endpoints[path] = key
	}

	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
