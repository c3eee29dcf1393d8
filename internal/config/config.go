package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the persisted settings for mediadeck.
type Config struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`

	Model       string `toml:"model"`
	SoraVariant string `toml:"sora_variant"`
	AspectRatio string `toml:"aspect_ratio"`
	Duration    int    `toml:"duration"`
	BatchCount  int    `toml:"batch_count"`
	HD          bool   `toml:"hd"`
	Watermark   bool   `toml:"watermark"`
	Private     bool   `toml:"private"`
	NotifyHook  string `toml:"notify_hook"`

	ImageModel       string `toml:"image_model"`
	ImageAspectRatio string `toml:"image_aspect_ratio"`
	ImageSize        string `toml:"image_size"`

	BackendURL    string `toml:"backend_url"`
	SessionCookie string `toml:"session_cookie"`
	CSRFToken     string `toml:"csrf_token"`

	PollInterval      Duration `toml:"poll_interval"`
	PollJitter        Duration `toml:"poll_jitter"`
	MaxPollErrors     int      `toml:"max_poll_errors"`
	CreateConcurrency int      `toml:"create_concurrency"`
	PollConcurrency   int      `toml:"poll_concurrency"`
	SaveConcurrency   int      `toml:"save_concurrency"`
	CleanupAfter      Duration `toml:"cleanup_after"`
	MaxTasks          int      `toml:"max_tasks"`

	ImageThresholdBytes int64 `toml:"image_threshold_bytes"`
	ImageMaxDimension   int   `toml:"image_max_dimension"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogDir    string `toml:"log_dir"`
}

// Duration is a time.Duration that round-trips through TOML as a string ("4s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	defaultConfigPath = "~/.config/mediadeck/config.toml"
	defaultLogDir     = "~/.local/share/mediadeck/logs"
	defaultDataDir    = "~/.local/share/mediadeck"
	DefaultBaseURL    = "https://api.gpt-best.com"
	defaultBackendURL = "http://127.0.0.1:8000"

	envAPIKey  = "MEDIADECK_API_KEY"
	envBaseURL = "MEDIADECK_BASE_URL"
)

// Models and choices accepted by the compose form.
var (
	Models        = []string{"sora2", "veo", "seedance", "newmodel"}
	SoraVariants  = []string{"sora-2", "sora-2-pro"}
	AspectRatios  = []string{"16:9", "9:16"}
	Durations     = []int{10, 15, 25}
	MaxBatchCount = 20

	ImageModels       = []string{"gemini-2.5-flash-image", "gemini-3-pro-image-preview", "gemini-2.0-flash-exp"}
	ImageAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}
	// ImageSizes are the Gemini output sizes; empty leaves it to the provider.
	ImageSizes = []string{"", "1K", "2K", "4K"}
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		Model:               "sora2",
		SoraVariant:         "sora-2",
		AspectRatio:         "16:9",
		Duration:            10,
		BatchCount:          1,
		ImageModel:          "gemini-2.5-flash-image",
		ImageAspectRatio:    "1:1",
		BackendURL:          defaultBackendURL,
		PollInterval:        Duration(4 * time.Second),
		PollJitter:          Duration(600 * time.Millisecond),
		MaxPollErrors:       3,
		CreateConcurrency:   4,
		PollConcurrency:     8,
		SaveConcurrency:     2,
		CleanupAfter:        Duration(10 * time.Minute),
		MaxTasks:            200,
		ImageThresholdBytes: 5 * 1024 * 1024,
		ImageMaxDimension:   2048,
		LogLevel:            "info",
		LogFormat:           "console",
		LogDir:              mustExpand(defaultLogDir),
	}
}

// Load locates and parses the config, falling back to defaults when missing.
// Environment overrides are applied on top of the file.
func Load(path string) (Config, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := loadFile(resolved)
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

// Update applies fn to the config stored at path and writes it back, holding
// the file lock throughout. Environment overrides are not applied, so they
// never end up persisted.
func Update(path string, fn func(*Config) error) (Config, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Config{}, fmt.Errorf("create config dir: %w", err)
	}

	lock := flock.New(resolved + ".lock")
	if err := lock.Lock(); err != nil {
		return Config{}, fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	cfg, err := loadFile(resolved)
	if err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := fn(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := write(resolved, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(resolved string) (Config, error) {
	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path under an exclusive file lock.
func Save(path string, cfg Config) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	lock := flock.New(resolved + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock config: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return write(resolved, cfg)
}

func write(resolved string, cfg Config) error {
	bytes, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(resolved, bytes, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultPath returns the unexpanded default config location.
func DefaultPath() string {
	return defaultConfigPath
}

// LogPath returns the path of the mediadeck log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogDir) == "" {
		return mustExpand(defaultLogDir + "/mediadeck.log")
	}
	return filepath.Join(c.LogDir, "mediadeck.log")
}

// HistoryPath returns the path of the local history database.
func (c Config) HistoryPath() string {
	return filepath.Join(mustExpand(defaultDataDir), "history.db")
}

func (c *Config) normalize() {
	def := Default()

	c.APIKey = NormalizeAPIKey(c.APIKey)
	if base, _, err := NormalizeBaseURL(c.BaseURL); err == nil {
		c.BaseURL = base
	} else {
		c.BaseURL = def.BaseURL
	}
	if !contains(Models, c.Model) {
		c.Model = def.Model
	}
	if !contains(SoraVariants, c.SoraVariant) {
		c.SoraVariant = def.SoraVariant
	}
	if !contains(AspectRatios, c.AspectRatio) {
		c.AspectRatio = def.AspectRatio
	}
	if !containsInt(Durations, c.Duration) {
		c.Duration = def.Duration
	}
	if c.BatchCount < 1 || c.BatchCount > MaxBatchCount {
		c.BatchCount = def.BatchCount
	}
	c.ImageModel = strings.TrimSpace(c.ImageModel)
	if c.ImageModel == "" {
		c.ImageModel = def.ImageModel
	}
	if !contains(ImageAspectRatios, c.ImageAspectRatio) {
		c.ImageAspectRatio = def.ImageAspectRatio
	}
	c.ImageSize = strings.ToUpper(strings.TrimSpace(c.ImageSize))
	if !contains(ImageSizes, c.ImageSize) {
		c.ImageSize = ""
	}
	c.SessionCookie = strings.TrimSpace(c.SessionCookie)
	c.CSRFToken = strings.TrimSpace(c.CSRFToken)
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	if c.BackendURL == "" {
		c.BackendURL = def.BackendURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollJitter < 0 {
		c.PollJitter = def.PollJitter
	}
	if c.MaxPollErrors <= 0 {
		c.MaxPollErrors = def.MaxPollErrors
	}
	if c.CreateConcurrency <= 0 {
		c.CreateConcurrency = def.CreateConcurrency
	}
	if c.PollConcurrency <= 0 {
		c.PollConcurrency = def.PollConcurrency
	}
	if c.SaveConcurrency <= 0 {
		c.SaveConcurrency = def.SaveConcurrency
	}
	if c.CleanupAfter <= 0 {
		c.CleanupAfter = def.CleanupAfter
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = def.MaxTasks
	}
	if c.ImageThresholdBytes <= 0 {
		c.ImageThresholdBytes = def.ImageThresholdBytes
	}
	if c.ImageMaxDimension <= 0 {
		c.ImageMaxDimension = def.ImageMaxDimension
	}
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	c.LogFormat = strings.TrimSpace(c.LogFormat)
	c.LogDir = strings.TrimSpace(c.LogDir)
	if c.LogDir == "" {
		c.LogDir = defaultLogDir
	}
	c.LogDir = mustExpand(c.LogDir)
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envAPIKey)); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envBaseURL)); v != "" {
		cfg.BaseURL = v
	}
}

var bearerPrefix = regexp.MustCompile(`(?i)^bearer\s+`)

// NormalizeAPIKey trims the key and strips a leading "Bearer " prefix.
func NormalizeAPIKey(value string) string {
	raw := strings.TrimSpace(value)
	return strings.TrimSpace(bearerPrefix.ReplaceAllString(raw, ""))
}

// NormalizeBaseURL validates a provider base URL and reduces it to its origin.
// The returned flag reports whether a path, query or fragment was dropped.
func NormalizeBaseURL(value string) (string, bool, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "", false, errors.New("base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false, fmt.Errorf("base url %q is not a valid url", raw)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return "", false, fmt.Errorf("base url %q must use https", raw)
	}
	if u.Hostname() == "" {
		return "", false, fmt.Errorf("base url %q is missing a host, e.g. https://api.example.com", raw)
	}
	origin := "https://" + strings.ToLower(u.Host)
	trimmed := (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != ""
	return origin, trimmed, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ResolvePath expands path, or the default config location when it is empty,
// to an absolute path.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
