package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. WIGC_SUPABASE_ANON_KEY.
const EnvPrefix = "WIGC"

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	WordPress WordPressConfig `mapstructure:"wordpress" yaml:"wordpress"`
	Supabase  SupabaseConfig  `mapstructure:"supabase" yaml:"supabase"`
	Favorites FavoritesConfig `mapstructure:"favorites" yaml:"favorites"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig gates the HTTP API
type AuthConfig struct {
	Method string `mapstructure:"method" yaml:"method"` // "none" or "apikey"
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// SourceConfig selects where schedule content comes from
type SourceConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // "wordpress" or "file"
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// SponsorGroup maps a sponsorship post slug to its heading
type SponsorGroup struct {
	Slug  string `mapstructure:"slug" yaml:"slug"`
	Label string `mapstructure:"label" yaml:"label"`
}

// WordPressConfig describes the CMS
type WordPressConfig struct {
	BaseURL             string         `mapstructure:"base_url" yaml:"base_url"`
	EventPostType       string         `mapstructure:"event_post_type" yaml:"event_post_type"`
	PresenterPostType   string         `mapstructure:"presenter_post_type" yaml:"presenter_post_type"`
	SponsorshipPostType string         `mapstructure:"sponsorship_post_type" yaml:"sponsorship_post_type"`
	SponsorTypes        []string       `mapstructure:"sponsor_types" yaml:"sponsor_types"`
	SponsorGroups       []SponsorGroup `mapstructure:"sponsor_groups" yaml:"sponsor_groups"`
	Timeout             time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	UserAgent           string         `mapstructure:"user_agent" yaml:"user_agent"`
	Concurrency         int            `mapstructure:"concurrency" yaml:"concurrency"`
}

// SupabaseConfig holds the project URL and public key
type SupabaseConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	AnonKey     string        `mapstructure:"anon_key" yaml:"anon_key,omitempty"`
	RedirectURL string        `mapstructure:"redirect_url" yaml:"redirect_url,omitempty"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether accounts are configured
func (s SupabaseConfig) Enabled() bool {
	return s.URL != "" && s.AnonKey != ""
}

// FavoritesConfig chooses where favorites live
type FavoritesConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "supabase" or "sqlite"
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	SessionFile string `mapstructure:"session_file" yaml:"session_file"`
}

// ScheduleConfig controls time resolution and grouping
type ScheduleConfig struct {
	Timezone        string        `mapstructure:"timezone" yaml:"timezone"`
	DefaultDuration time.Duration `mapstructure:"default_duration" yaml:"default_duration"`
	SessionKind     string        `mapstructure:"session_kind" yaml:"session_kind"`
	SocialKind      string        `mapstructure:"social_kind" yaml:"social_kind"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	CalendarName    string        `mapstructure:"calendar_name" yaml:"calendar_name"`
}

// Location loads the configured time zone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// LoggingConfig selects the log level and encoding
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // "json" or "console"
}

// Dir returns the per-user directory for the session file and the local
// favorites database.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wigc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wigc"
	}
	return filepath.Join(home, ".config", "wigc")
}

// Default returns the built-in configuration
func Default() *Config {
	dir := Dir()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth:   AuthConfig{Method: "none"},
		Source: SourceConfig{Type: "wordpress"},
		WordPress: WordPressConfig{
			BaseURL:             "https://cniga.com",
			EventPostType:       "wigc-event",
			PresenterPostType:   "presenter",
			SponsorshipPostType: "sponsorships",
			SponsorTypes:        []string{"casinos", "tribal_offices", "associate_members"},
			SponsorGroups:       DefaultSponsorGroups(),
			Timeout:             30 * time.Second,
			UserAgent:           "wigc-schedule/1.0",
			Concurrency:         4,
		},
		Supabase: SupabaseConfig{Timeout: 15 * time.Second},
		Favorites: FavoritesConfig{
			Backend:     "supabase",
			SQLitePath:  filepath.Join(dir, "favorites.db"),
			SessionFile: filepath.Join(dir, "session.json"),
		},
		Schedule: ScheduleConfig{
			Timezone:        "America/Los_Angeles",
			DefaultDuration: 60 * time.Minute,
			SessionKind:     "session",
			SocialKind:      "social",
			RefreshInterval: time.Minute,
			CalendarName:    "WIGC Schedule",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// DefaultSponsorGroups lists the sponsorship tiers in display order.
func DefaultSponsorGroups() []SponsorGroup {
	return []SponsorGroup{
		{Slug: "wigc-title-sponsor", Label: "Title Sponsors"},
		{Slug: "wigc-sponsors-gold", Label: "Gold Sponsors"},
		{Slug: "wigc-sponsors-silver", Label: "Silver Sponsors"},
		{Slug: "wigc-sponsors-bronze", Label: "Bronze Sponsors"},
		{Slug: "wigc-room-key-sponsor", Label: "Hotel Card Key Sponsor"},
		{Slug: "wigc-sponsors-awards-luncheon", Label: "Award Luncheon Sponsors"},
		{Slug: "wigc-trade-show-luncheon-sponsor", Label: "Trade Show Luncheon Sponsors"},
		{Slug: "wigc-welcome-reception", Label: "Welcome Reception Sponsors"},
		{Slug: "wigc-sponsors-happy-hour", Label: "Happy Hour Sponsors"},
		{Slug: "wigc-panel-sponsor", Label: "Panel Sponsors"},
		{Slug: "wigc-continental-breakfast", Label: "Continental Breakfast Sponsors"},
		{Slug: "wigc-network-break", Label: "Network Break Sponsors"},
		{Slug: "wigc-basic-sponsor", Label: "Basic Sponsors"},
		{Slug: "wigc-bowling-sponsors-sapphire", Label: "Bowling Sapphire Sponsor"},
		{Slug: "wigc-bowling-sponsors-opal", Label: "Bowling Opal Sponsor"},
		{Slug: "wigc-bowling-sponsors-jade", Label: "Bowling Jade Sponsor"},
		{Slug: "wigc-bowling-sponsorr-turquoise", Label: "Bowling Turquoise Sponsor"},
		{Slug: "wigc-bowling-sponsors-lane-sponsor", Label: "Lane Sponsor"},
		{Slug: "wigc-afterparty-sponsors", Label: "After Party Sponsors"},
	}
}

// SetDefaults registers every default on v so env overrides apply to keys
// missing from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("auth.method", d.Auth.Method)
	v.SetDefault("auth.api_key", d.Auth.APIKey)

	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.path", d.Source.Path)

	v.SetDefault("wordpress.base_url", d.WordPress.BaseURL)
	v.SetDefault("wordpress.event_post_type", d.WordPress.EventPostType)
	v.SetDefault("wordpress.presenter_post_type", d.WordPress.PresenterPostType)
	v.SetDefault("wordpress.sponsorship_post_type", d.WordPress.SponsorshipPostType)
	v.SetDefault("wordpress.sponsor_types", d.WordPress.SponsorTypes)
	groups := make([]map[string]any, 0, len(d.WordPress.SponsorGroups))
	for _, g := range d.WordPress.SponsorGroups {
		groups = append(groups, map[string]any{"slug": g.Slug, "label": g.Label})
	}
	v.SetDefault("wordpress.sponsor_groups", groups)
	v.SetDefault("wordpress.timeout", d.WordPress.Timeout)
	v.SetDefault("wordpress.user_agent", d.WordPress.UserAgent)
	v.SetDefault("wordpress.concurrency", d.WordPress.Concurrency)

	v.SetDefault("supabase.url", d.Supabase.URL)
	v.SetDefault("supabase.anon_key", d.Supabase.AnonKey)
	v.SetDefault("supabase.redirect_url", d.Supabase.RedirectURL)
	v.SetDefault("supabase.timeout", d.Supabase.Timeout)

	v.SetDefault("favorites.backend", d.Favorites.Backend)
	v.SetDefault("favorites.sqlite_path", d.Favorites.SQLitePath)
	v.SetDefault("favorites.session_file", d.Favorites.SessionFile)

	v.SetDefault("schedule.timezone", d.Schedule.Timezone)
	v.SetDefault("schedule.default_duration", d.Schedule.DefaultDuration)
	v.SetDefault("schedule.session_kind", d.Schedule.SessionKind)
	v.SetDefault("schedule.social_kind", d.Schedule.SocialKind)
	v.SetDefault("schedule.refresh_interval", d.Schedule.RefreshInterval)
	v.SetDefault("schedule.calendar_name", d.Schedule.CalendarName)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads configuration from path, or from config.yaml in the working
// directory or Dir() when path is empty. A missing default file is not an
// error; a missing explicit file is. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Auth.Method {
	case "none":
	case "apikey":
		if c.Auth.APIKey == "" {
			errs = append(errs, fmt.Errorf("auth.api_key is required when auth.method is apikey"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.method must be none or apikey, got %q", c.Auth.Method))
	}

	switch c.Source.Type {
	case "wordpress":
		if c.WordPress.BaseURL == "" {
			errs = append(errs, fmt.Errorf("wordpress.base_url is required"))
		}
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, fmt.Errorf("source.path is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.type must be wordpress or file, got %q", c.Source.Type))
	}

	switch c.Favorites.Backend {
	case "supabase", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("favorites.backend must be supabase or sqlite, got %q", c.Favorites.Backend))
	}

	if _, err := c.Schedule.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Schedule.DefaultDuration <= 0 {
		errs = append(errs, fmt.Errorf("schedule.default_duration must be positive"))
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.Auth.APIKey = mask(masked.Auth.APIKey)
	masked.Supabase.AnonKey = mask(masked.Supabase.AnonKey)
	return yaml.Marshal(&masked)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
