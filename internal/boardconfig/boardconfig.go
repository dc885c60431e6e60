// Package boardconfig describes the kanban layout shared by every project.
package boardconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const SchemaV1 = "taskboard.board.v1"

type Config struct {
	Schema        string   `yaml:"schema"`
	Columns       []string `yaml:"columns"`
	DefaultColumn string   `yaml:"default_column,omitempty"`
	DoneColumn    string   `yaml:"done_column,omitempty"`
	UpcomingDays  int      `yaml:"upcoming_days,omitempty"`
}

func Default() Config {
	return Config{
		Schema:        SchemaV1,
		Columns:       []string{"To Do", "In Progress", "Review", "Done"},
		DefaultColumn: "To Do",
		DoneColumn:    "Done",
		UpcomingDays:  7,
	}
}

// Load reads a YAML board file. An empty path yields Default.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read board config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw and fills unset fields: the default column is the first
// column, the done column is the last one.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode board config: %w", err)
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		cfg.Schema = SchemaV1
	}
	for i, c := range cfg.Columns {
		cfg.Columns[i] = strings.TrimSpace(c)
	}
	if len(cfg.Columns) > 0 {
		if cfg.DefaultColumn == "" {
			cfg.DefaultColumn = cfg.Columns[0]
		}
		if cfg.DoneColumn == "" {
			cfg.DoneColumn = cfg.Columns[len(cfg.Columns)-1]
		}
	}
	if cfg.UpcomingDays == 0 {
		cfg.UpcomingDays = 7
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Schema) != SchemaV1 {
		return fmt.Errorf("board.schema must be %q", SchemaV1)
	}
	if len(c.Columns) == 0 {
		return errors.New("board.columns must be non-empty")
	}
	seen := make(map[string]struct{}, len(c.Columns))
	for i, col := range c.Columns {
		if col == "" {
			return fmt.Errorf("board.columns[%d] is empty", i)
		}
		if strings.Contains(col, "/") {
			return fmt.Errorf("board.columns[%d] must not contain '/'", i)
		}
		if _, ok := seen[col]; ok {
			return fmt.Errorf("board.columns[%d] duplicates %q", i, col)
		}
		seen[col] = struct{}{}
	}
	if !c.HasColumn(c.DefaultColumn) {
		return fmt.Errorf("board.default_column %q is not a column", c.DefaultColumn)
	}
	if !c.HasColumn(c.DoneColumn) {
		return fmt.Errorf("board.done_column %q is not a column", c.DoneColumn)
	}
	if c.UpcomingDays < 0 {
		return errors.New("board.upcoming_days must be >= 0")
	}
	return nil
}

func (c Config) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}
