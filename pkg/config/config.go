// Package config holds the runtime configuration and the persistent JSON
// state stores. Runtime settings come from a JSON file overlaid with
// environment variables; state files are full-file atomic rewrites.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration of the bot.
type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	GitHub   GitHubConfig   `json:"github"`
	Renderer RendererConfig `json:"renderer"`
	Mirror   MirrorConfig   `json:"mirror"`
	Backup   BackupConfig   `json:"backup"`
	DataDir  string         `env:"CARDSMITH_DATA_DIR"  json:"data_dir"`
	StageDir string         `env:"CARDSMITH_STAGE_DIR" json:"stage_dir"`
}

type DiscordConfig struct {
	Enabled   bool     `env:"CARDSMITH_DISCORD_ENABLED" json:"enabled"`
	Token     string   `env:"DISCORD_TOKEN"             json:"token"`
	GuildID   string   `env:"CARDSMITH_DISCORD_GUILD"   json:"guild_id,omitempty"`
	AdminIDs  []string `env:"CARDSMITH_DISCORD_ADMINS"  json:"admin_ids,omitempty"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// GitHubConfig identifies the two remote repositories: the config mirror
// (owner/name in Repo) and the public pictures repository that receives
// rendered images.
type GitHubConfig struct {
	Token        string `env:"GITHUB_TOKEN"            json:"-"`
	Repo         string `env:"GITHUB_REPO"             json:"repo"`
	Branch       string `env:"GITHUB_BRANCH"           json:"branch"`
	PicturesRepo string `env:"CARDSMITH_PICTURES_REPO" json:"pictures_repo"`
	APIBase      string `env:"CARDSMITH_GITHUB_API"    json:"api_base,omitempty"`
}

// Owner splits the "owner/name" repo identity. Errors on malformed values
// so that a bad environment fails at startup, not mid-upload.
func (g GitHubConfig) Owner() (owner, name string, err error) {
	owner, name, ok := strings.Cut(g.Repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("github repo %q: want owner/name", g.Repo)
	}
	return owner, name, nil
}

type RendererConfig struct {
	FontPath       string `env:"CARDSMITH_FONT_PATH"        json:"font_path,omitempty"`
	FastPathPixels int    `env:"CARDSMITH_FASTPATH_PIXELS"  json:"fast_path_pixels"`
	MaxWorkers     int    `env:"CARDSMITH_QUANTIZE_WORKERS" json:"max_workers"`
}

type MirrorConfig struct {
	Enabled  bool   `env:"CARDSMITH_MIRROR_ENABLED"  json:"enabled"`
	Artifact string `env:"CARDSMITH_MIRROR_FILE"     json:"artifact"`
	Interval int    `env:"CARDSMITH_MIRROR_INTERVAL" json:"interval_seconds"`
}

type BackupConfig struct {
	Enabled  bool   `env:"CARDSMITH_BACKUP_ENABLED"  json:"enabled"`
	Schedule string `env:"CARDSMITH_BACKUP_SCHEDULE" json:"schedule"`
}

// DefaultConfig returns the built-in defaults. Values mirror the original
// deployment: 1 Hz mirror polling, pictures repo on main.
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{Enabled: true},
		GitHub: GitHubConfig{
			Branch:       "main",
			PicturesRepo: "pictures",
		},
		Renderer: RendererConfig{
			FastPathPixels: 4_000_000,
		},
		Mirror: MirrorConfig{
			Enabled:  true,
			Artifact: "API_JBChangeLogs.json",
			Interval: 1,
		},
		Backup: BackupConfig{
			Schedule: "0 4 * * *",
		},
		DataDir:  "data",
		StageDir: "images",
	}
}

// LoadConfig reads the JSON config at path (a missing file is fine) and then
// applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) validate() error {
	if c.Mirror.Interval <= 0 {
		c.Mirror.Interval = 1
	}
	if c.Renderer.FastPathPixels <= 0 {
		c.Renderer.FastPathPixels = 4_000_000
	}
	if c.GitHub.Repo != "" {
		if _, _, err := c.GitHub.Owner(); err != nil {
			return err
		}
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return errors.New("discord enabled but DISCORD_TOKEN is empty")
	}
	return nil
}

// StatePath resolves a state file name inside the data directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.DataDir, name)
}

// StateFiles enumerates the persistent JSON state files the bot owns. The
// backup task pushes exactly this set to the config repo.
var StateFiles = []string{
	"embed_command.json",
	"converters_data.json",
	"leveling_data.json",
	"welcome_data.json",
	"pantheon_data.json",
	"notation_data.json",
	"stockage_data.json",
	"item_request.json",
	"API_JBChangeLogs.json",
}
