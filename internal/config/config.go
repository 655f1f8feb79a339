// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/streambrr/internal/domain"
)

var envPrefix = "STREAMBRR__"

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	// Set defaults
	c.defaults()

	// Load from config file
	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	// Override with environment variables
	c.loadFromEnv()

	// Unmarshal the configuration
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	// Watch for config changes
	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	// Detect if running in container
	host := "localhost"
	if detectContainer() {
		host = "0.0.0.0"
	}

	c.viper.SetDefault("host", host)
	c.viper.SetDefault("port", 7478)
	c.viper.SetDefault("baseUrl", "/")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)

	c.viper.SetDefault("torznabUrl", "")
	c.viper.SetDefault("torznabApiKey", "")
	c.viper.SetDefault("rutorUrl", "https://rutor.info")
	c.viper.SetDefault("nnmclubUrl", "https://nnmclub.to")
	c.viper.SetDefault("kinozalUrl", "")
	c.viper.SetDefault("kinozalUsername", "")
	c.viper.SetDefault("kinozalPassword", "")
	c.viper.SetDefault("searchTimeout", 10)

	c.viper.SetDefault("debridUrl", "https://api.real-debrid.com/rest/1.0")
	c.viper.SetDefault("debridTimeout", 10)

	c.viper.SetDefault("maxAvailabilityChecks", 15)
	c.viper.SetDefault("availabilityConcurrency", 3)
	c.viper.SetDefault("resultCacheTTL", 60)
	c.viper.SetDefault("filterExpr", "")

	c.viper.SetDefault("metadataUrl", "https://v3-cinemeta.strem.io")
	c.viper.SetDefault("metadataCacheTTL", 360)

	c.viper.SetDefault("pprofEnabled", false)
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9075)
	c.viper.SetDefault("metricsBasicAuthUsers", "")
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		// Determine if this is a directory or file path
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		// Try to read the config
		if err := c.viper.ReadInConfig(); err != nil {
			// If file doesn't exist, create it. Viper only reports its own
			// not-found type when searching paths; an explicit file comes back
			// as a plain fs error.
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				// Re-read after creating
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		// Search for config in standard locations
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")                   // Current directory
		c.viper.AddConfigPath(GetDefaultConfigDir()) // OS-specific config directory

		// Try to read existing config
		if err := c.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				// No config found, create in OS-specific location
				defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
				if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
					return err
				}
				// Set the config file explicitly and read it
				c.viper.SetConfigFile(defaultConfigPath)
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// DO NOT use AutomaticEnv() - it reads ALL env vars and causes conflicts with K8s
	// Instead, explicitly bind only the environment variables we want

	// Use double underscore to avoid conflicts with K8s deployment_PORT patterns
	c.viper.BindEnv("host", envPrefix+"HOST")
	c.viper.BindEnv("port", envPrefix+"PORT")
	c.viper.BindEnv("baseUrl", envPrefix+"BASE_URL")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")

	c.viper.BindEnv("torznabUrl", envPrefix+"TORZNAB_URL")
	c.bindOrReadFromFile("torznabApiKey", "TORZNAB_API_KEY")
	c.viper.BindEnv("rutorUrl", envPrefix+"RUTOR_URL")
	c.viper.BindEnv("nnmclubUrl", envPrefix+"NNMCLUB_URL")
	c.viper.BindEnv("kinozalUrl", envPrefix+"KINOZAL_URL")
	c.viper.BindEnv("kinozalUsername", envPrefix+"KINOZAL_USERNAME")
	c.bindOrReadFromFile("kinozalPassword", "KINOZAL_PASSWORD")
	c.viper.BindEnv("searchTimeout", envPrefix+"SEARCH_TIMEOUT")

	c.viper.BindEnv("debridUrl", envPrefix+"DEBRID_URL")
	c.viper.BindEnv("debridTimeout", envPrefix+"DEBRID_TIMEOUT")

	c.viper.BindEnv("maxAvailabilityChecks", envPrefix+"MAX_AVAILABILITY_CHECKS")
	c.viper.BindEnv("availabilityConcurrency", envPrefix+"AVAILABILITY_CONCURRENCY")
	c.viper.BindEnv("resultCacheTTL", envPrefix+"RESULT_CACHE_TTL")
	c.viper.BindEnv("filterExpr", envPrefix+"FILTER_EXPR")

	c.viper.BindEnv("metadataUrl", envPrefix+"METADATA_URL")
	c.viper.BindEnv("metadataCacheTTL", envPrefix+"METADATA_CACHE_TTL")

	c.viper.BindEnv("pprofEnabled", envPrefix+"PPROF_ENABLED")
	c.viper.BindEnv("metricsEnabled", envPrefix+"METRICS_ENABLED")
	c.viper.BindEnv("metricsHost", envPrefix+"METRICS_HOST")
	c.viper.BindEnv("metricsPort", envPrefix+"METRICS_PORT")
	c.viper.BindEnv("metricsBasicAuthUsers", envPrefix+"METRICS_BASIC_AUTH_USERS")
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		// Reload configuration
		if err := c.viper.Unmarshal(c.Config); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}

		// Apply dynamic changes
		c.applyDynamicChanges()
	})
}

func (c *AppConfig) applyDynamicChanges() {
	c.Config.Version = c.version
	c.ApplyLogConfig()

	c.notifyListeners()
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := *c.Config
	for _, listener := range listeners {
		listener(&copied)
	}
}

func (c *AppConfig) writeDefaultConfig(path string) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	// Create config template
	configTemplate := `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost" (or "0.0.0.0" in containers)
host = "{{ .host }}"

# Port
# Default: 7478
port = {{ .port }}

# Base URL
# Set custom baseUrl eg /streambrr/ to serve in subdirectory.
# Not needed for subdomain, or by accessing with :port directly.
# Optional
#baseUrl = "/streambrr/"

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/streambrr.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Torznab aggregation API
# Candidates come from this endpoint first; the tracker scrapers below only
# run when it returns nothing or is not configured.
# Optional
#torznabUrl = "http://localhost:9117/api/v2.0/indexers/all/results/torznab"
#torznabApiKey = ""

# Tracker scrapers
# Leave a URL empty to disable that tracker.
# Default: "{{ .rutorUrl }}"
rutorUrl = "{{ .rutorUrl }}"

# Default: "{{ .nnmclubUrl }}"
nnmclubUrl = "{{ .nnmclubUrl }}"

# Kinozal requires an account; the scraper stays disabled until the URL and
# both credentials are set.
#kinozalUrl = "https://kinozal.tv"
#kinozalUsername = ""
#kinozalPassword = ""

# Per-tracker search timeout in seconds
# Default: {{ .searchTimeout }}
#searchTimeout = {{ .searchTimeout }}

# Debrid service API base URL
# Default: "{{ .debridUrl }}"
#debridUrl = "{{ .debridUrl }}"

# Debrid API request timeout in seconds
# Default: {{ .debridTimeout }}
#debridTimeout = {{ .debridTimeout }}

# How many of the top ranked candidates get an availability check per request
# Default: {{ .maxAvailabilityChecks }}
#maxAvailabilityChecks = {{ .maxAvailabilityChecks }}

# Concurrent availability checks against the debrid API
# Default: {{ .availabilityConcurrency }}
#availabilityConcurrency = {{ .availabilityConcurrency }}

# How long resolved stream lists are served from cache, in minutes
# Default: {{ .resultCacheTTL }}
#resultCacheTTL = {{ .resultCacheTTL }}

# Candidate filter expression
# Evaluated per candidate over {Title, Seeders, SizeBytes, Resolution, Source, Codec, HDR}.
# Example: 'Seeders >= 5 && Source != "CAM"'
# Optional
#filterExpr = ""

# Metadata (Cinemeta) API base URL
# Default: "{{ .metadataUrl }}"
#metadataUrl = "{{ .metadataUrl }}"

# How long metadata lookups are cached, in minutes
# Default: {{ .metadataCacheTTL }}
#metadataCacheTTL = {{ .metadataCacheTTL }}

# Prometheus Metrics
# Enable Prometheus metrics on separate port (no authentication required)
# Default: false
#metricsEnabled = false

# Metrics server host (bind address for metrics endpoint)
# Default: "127.0.0.1"
# Set to "0.0.0.0" to bind to all interfaces if needed
#metricsHost = "127.0.0.1"

# Metrics server port (separate from main web interface)
# Default: 9075 (standard Prometheus range)
#metricsPort = 9075

# Basic authentication for metrics endpoint (optional)
# Format: "username:bcrypt_hash" or "user1:hash1,user2:hash2" for multiple users
# Passwords must be bcrypt-hashed. Use tools like htpasswd or online bcrypt generators
# Example: "prometheus:$2y$10$example_bcrypt_hash_here"
# Leave empty to disable authentication (default)
#metricsBasicAuthUsers = ""
`

	// Prepare template data
	data := map[string]any{
		"host":                    c.viper.GetString("host"),
		"port":                    c.viper.GetInt("port"),
		"logLevel":                c.viper.GetString("logLevel"),
		"logMaxSize":              c.viper.GetInt("logMaxSize"),
		"logMaxBackups":           c.viper.GetInt("logMaxBackups"),
		"rutorUrl":                c.viper.GetString("rutorUrl"),
		"nnmclubUrl":              c.viper.GetString("nnmclubUrl"),
		"searchTimeout":           c.viper.GetInt("searchTimeout"),
		"debridUrl":               c.viper.GetString("debridUrl"),
		"debridTimeout":           c.viper.GetInt("debridTimeout"),
		"maxAvailabilityChecks":   c.viper.GetInt("maxAvailabilityChecks"),
		"availabilityConcurrency": c.viper.GetInt("availabilityConcurrency"),
		"resultCacheTTL":          c.viper.GetInt("resultCacheTTL"),
		"metadataUrl":             c.viper.GetString("metadataUrl"),
		"metadataCacheTTL":        c.viper.GetInt("metadataCacheTTL"),
	}

	// Parse and execute template
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	// Create config file
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// Helper functions

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	// First check if XDG_CONFIG_HOME is set (Docker containers set this to /config)
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// If XDG_CONFIG_HOME is /config (Docker), use it directly
		if xdgConfig == "/config" {
			return xdgConfig
		}
		// Otherwise append streambrr subdirectory
		return filepath.Join(xdgConfig, "streambrr")
	}

	switch runtime.GOOS {
	case "windows":
		// Use %APPDATA%\streambrr on Windows
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "streambrr")
		}
		// Fallback to home directory
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "streambrr")
	default:
		// Use ~/.config/streambrr for Unix-like systems
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "streambrr")
	}
}

func detectContainer() bool {
	// Check Docker
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	// Check LXC
	if _, err := os.Stat("/dev/.lxc-boot-id"); err == nil {
		return true
	}
	// Check if running as init
	if os.Getpid() == 1 {
		return true
	}
	return false
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := c.baseLogWriter()

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	// Create log directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}

	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		writer.FormatTimestamp = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		}
		writer.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			msg := strings.TrimSpace(fmt.Sprint(i))
			if msg == "" {
				return ""
			}
			return msg
		}
		return writer
	}
	return os.Stderr
}

func (c *AppConfig) baseLogWriter() io.Writer {
	return baseLogWriter(c.version)
}

// DefaultLogWriter returns the base log writer for the provided version.
func DefaultLogWriter(version string) io.Writer {
	return baseLogWriter(version)
}

// InitDefaultLogger configures zerolog with the default writer for this version.
// This is used by CLI entry points before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(DefaultLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath determines the actual config file path from the provided directory or file path
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	// Check if it's a direct file path (ends with .toml) - backward compatibility
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	// Check if the path points to an existing file (backward compatibility)
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	// Treat as directory path and append config.toml
	return filepath.Join(configDirOrPath, "config.toml")
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	// Fallback to default config directory when no config file is explicitly used
	return GetDefaultConfigDir()
}

func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}

// Sets viper variable if environment variable with _FILE suffix is present
func (c *AppConfig) bindOrReadFromFile(viperVar string, envVar string) {
	if filePath := os.Getenv(envPrefix + envVar + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read " + envVar + "_FILE")
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
	} else {
		c.viper.BindEnv(viperVar, envPrefix+envVar)
	}
}
