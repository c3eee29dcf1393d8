package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/config"
)

// configKey describes one user-editable config entry.
type configKey struct {
	get    func(config.Config) string
	set    func(*config.Config, string) error
	secret bool
}

var configKeys = map[string]configKey{
	"api_key": {
		get:    func(c config.Config) string { return c.APIKey },
		set:    func(c *config.Config, v string) error { c.APIKey = config.NormalizeAPIKey(v); return nil },
		secret: true,
	},
	"base_url": {
		get: func(c config.Config) string { return c.BaseURL },
		set: func(c *config.Config, v string) error {
			base, _, err := config.NormalizeBaseURL(v)
			if err != nil {
				return err
			}
			c.BaseURL = base
			return nil
		},
	},
	"model": {
		get: func(c config.Config) string { return c.Model },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.Model, v, config.Models)
		},
	},
	"sora_variant": {
		get: func(c config.Config) string { return c.SoraVariant },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.SoraVariant, v, config.SoraVariants)
		},
	},
	"aspect_ratio": {
		get: func(c config.Config) string { return c.AspectRatio },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.AspectRatio, v, config.AspectRatios)
		},
	},
	"duration": {
		get: func(c config.Config) string { return strconv.Itoa(c.Duration) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "s"))
			if err != nil {
				return fmt.Errorf("duration must be a number of seconds: %w", err)
			}
			for _, d := range config.Durations {
				if d == n {
					c.Duration = n
					return nil
				}
			}
			return fmt.Errorf("duration must be one of %v", config.Durations)
		},
	},
	"batch_count": {
		get: func(c config.Config) string { return strconv.Itoa(c.BatchCount) },
		set: func(c *config.Config, v string) error {
			return setInt(&c.BatchCount, v, 1, config.MaxBatchCount)
		},
	},
	"hd": {
		get: func(c config.Config) string { return strconv.FormatBool(c.HD) },
		set: func(c *config.Config, v string) error { return setBool(&c.HD, v) },
	},
	"watermark": {
		get: func(c config.Config) string { return strconv.FormatBool(c.Watermark) },
		set: func(c *config.Config, v string) error { return setBool(&c.Watermark, v) },
	},
	"private": {
		get: func(c config.Config) string { return strconv.FormatBool(c.Private) },
		set: func(c *config.Config, v string) error { return setBool(&c.Private, v) },
	},
	"image_model": {
		get: func(c config.Config) string { return c.ImageModel },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.ImageModel, v, config.ImageModels)
		},
	},
	"image_aspect_ratio": {
		get: func(c config.Config) string { return c.ImageAspectRatio },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.ImageAspectRatio, v, config.ImageAspectRatios)
		},
	},
	"image_size": {
		get: func(c config.Config) string { return c.ImageSize },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.ImageSize, strings.ToUpper(v), config.ImageSizes)
		},
	},
	"notify_hook": {
		get: func(c config.Config) string { return c.NotifyHook },
		set: func(c *config.Config, v string) error { c.NotifyHook = strings.TrimSpace(v); return nil },
	},
	"backend_url": {
		get: func(c config.Config) string { return c.BackendURL },
		set: func(c *config.Config, v string) error {
			v = strings.TrimSpace(v)
			if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
				return fmt.Errorf("backend url %q must start with http:// or https://", v)
			}
			c.BackendURL = v
			return nil
		},
	},
	"session_cookie": {
		get:    func(c config.Config) string { return c.SessionCookie },
		secret: true,
	},
	"csrf_token": {
		get:    func(c config.Config) string { return c.CSRFToken },
		secret: true,
	},
	"poll_interval": {
		get: func(c config.Config) string { return c.PollInterval.Std().String() },
		set: func(c *config.Config, v string) error { return setDuration(&c.PollInterval, v) },
	},
	"poll_jitter": {
		get: func(c config.Config) string { return c.PollJitter.Std().String() },
		set: func(c *config.Config, v string) error { return setDuration(&c.PollJitter, v) },
	},
	"cleanup_after": {
		get: func(c config.Config) string { return c.CleanupAfter.Std().String() },
		set: func(c *config.Config, v string) error { return setDuration(&c.CleanupAfter, v) },
	},
	"max_poll_errors": {
		get: func(c config.Config) string { return strconv.Itoa(c.MaxPollErrors) },
		set: func(c *config.Config, v string) error { return setInt(&c.MaxPollErrors, v, 1, 100) },
	},
	"create_concurrency": {
		get: func(c config.Config) string { return strconv.Itoa(c.CreateConcurrency) },
		set: func(c *config.Config, v string) error { return setInt(&c.CreateConcurrency, v, 1, 64) },
	},
	"poll_concurrency": {
		get: func(c config.Config) string { return strconv.Itoa(c.PollConcurrency) },
		set: func(c *config.Config, v string) error { return setInt(&c.PollConcurrency, v, 1, 64) },
	},
	"save_concurrency": {
		get: func(c config.Config) string { return strconv.Itoa(c.SaveConcurrency) },
		set: func(c *config.Config, v string) error { return setInt(&c.SaveConcurrency, v, 1, 64) },
	},
	"max_tasks": {
		get: func(c config.Config) string { return strconv.Itoa(c.MaxTasks) },
		set: func(c *config.Config, v string) error { return setInt(&c.MaxTasks, v, 1, 10000) },
	},
	"image_threshold_bytes": {
		get: func(c config.Config) string { return humanize.IBytes(uint64(c.ImageThresholdBytes)) },
		set: func(c *config.Config, v string) error {
			n, err := humanize.ParseBytes(strings.TrimSpace(v))
			if err != nil || n == 0 {
				return fmt.Errorf("invalid size %q", v)
			}
			c.ImageThresholdBytes = int64(n)
			return nil
		},
	},
	"image_max_dimension": {
		get: func(c config.Config) string { return strconv.Itoa(c.ImageMaxDimension) },
		set: func(c *config.Config, v string) error { return setInt(&c.ImageMaxDimension, v, 64, 8192) },
	},
	"log_level": {
		get: func(c config.Config) string { return c.LogLevel },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.LogLevel, strings.ToLower(v), []string{"debug", "info", "warn", "error"})
		},
	},
	"log_format": {
		get: func(c config.Config) string { return c.LogFormat },
		set: func(c *config.Config, v string) error {
			return setChoice(&c.LogFormat, strings.ToLower(v), []string{"console", "json"})
		},
	},
	"log_dir": {
		get: func(c config.Config) string { return c.LogDir },
		set: func(c *config.Config, v string) error { c.LogDir = strings.TrimSpace(v); return nil },
	},
}

func sortedConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:3] + "****" + value[len(value)-4:]
}

func setChoice(dst *string, value string, allowed []string) error {
	value = strings.TrimSpace(value)
	for _, candidate := range allowed {
		if candidate == value {
			*dst = value
			return nil
		}
	}
	return fmt.Errorf("value %q must be one of %s", value, strings.Join(allowed, ", "))
}

func setInt(dst *int, value string, lo, hi int) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid number %q", value)
	}
	if n < lo || n > hi {
		return fmt.Errorf("value %d out of range %d-%d", n, lo, hi)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid boolean %q", value)
	}
	*dst = b
	return nil
}

func setDuration(dst *config.Duration, value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d < 0 {
		return errors.New("duration must not be negative")
	}
	*dst = config.Duration(d)
	return nil
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the mediadeck configuration",
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigSetCommand(ctx))
	cmd.AddCommand(newConfigPathCommand(ctx))
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			values := make(map[string]string, len(configKeys))
			for _, key := range sortedConfigKeys() {
				entry := configKeys[key]
				value := entry.get(cfg)
				if entry.secret {
					value = maskSecret(value)
				}
				values[key] = value
			}
			if asJSON {
				return writeJSON(cmd, values)
			}
			rows := make([][]string, 0, len(values))
			for _, key := range sortedConfigKeys() {
				rows = append(rows, []string{key, orDash(values[key])})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newConfigSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: `Set a config value and save it to the config file.

Run "mediadeck config show" to list the keys. Session values are managed by
"mediadeck login" and cannot be set here.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(strings.TrimSpace(args[0]))
			entry, ok := configKeys[key]
			if !ok {
				return fmt.Errorf("unknown config key %q", args[0])
			}
			if entry.set == nil {
				return fmt.Errorf("%s is managed by `mediadeck login`", key)
			}
			updated, err := ctx.updateConfig(func(cfg *config.Config) error {
				return entry.set(cfg, args[1])
			})
			if err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
			value := entry.get(updated)
			if entry.secret {
				value = maskSecret(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			if key == "base_url" {
				if _, trimmed, _ := config.NormalizeBaseURL(args[1]); trimmed {
					fmt.Fprintln(cmd.ErrOrStderr(), "note: only the origin of the base url is kept")
				}
			}
			return nil
		},
	}
}

func newConfigPathCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ResolvePath(ctx.configPath())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
