// Package config loads runtime settings from defaults, an optional YAML
// file, .env and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given; it may be absent.
const DefaultFile = "video2pdf.yaml"

// Config holds all runtime settings.
type Config struct {
	FFmpegPath string    `yaml:"ffmpeg_path"`
	ChromePath string    `yaml:"chrome_path"`
	WorkDir    string    `yaml:"work_dir"`   // engine filesystems and frame stores
	OutputDir  string    `yaml:"output_dir"` // default PDF location; empty means next to the input
	LogLevel   string    `yaml:"log_level"`
	LogFile    string    `yaml:"log_file"` // TUI mode only
	SSH        SSHConfig `yaml:"ssh"`
}

// SSHConfig configures the wish server.
type SSHConfig struct {
	Addr        string `yaml:"addr"`
	HostKeyPath string `yaml:"host_key_path"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		FFmpegPath: "ffmpeg",
		WorkDir:    filepath.Join(os.TempDir(), "video2pdf"),
		LogLevel:   "info",
		SSH: SSHConfig{
			Addr:        "localhost:23234",
			HostKeyPath: ".ssh/id_ed25519",
		},
	}
}

// Load builds the configuration. A missing file is only an error when path
// was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("ignoring .env", "err", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		"VIDEO2PDF_FFMPEG":     &c.FFmpegPath,
		"VIDEO2PDF_CHROME":     &c.ChromePath,
		"VIDEO2PDF_WORK_DIR":   &c.WorkDir,
		"VIDEO2PDF_OUTPUT_DIR": &c.OutputDir,
		"VIDEO2PDF_LOG_LEVEL":  &c.LogLevel,
		"VIDEO2PDF_LOG_FILE":   &c.LogFile,
		"VIDEO2PDF_SSH_ADDR":   &c.SSH.Addr,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
		}
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.WorkDir == "" {
		return errors.New("work_dir must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.SSH.Addr); err != nil {
		return fmt.Errorf("ssh.addr: %w", err)
	}
	return nil
}

// Level is the parsed log level.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
