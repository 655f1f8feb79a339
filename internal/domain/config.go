// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the runtime configuration unmarshaled from config.toml
// and environment variable overrides.
type Config struct {
	Version string `mapstructure:"-"`

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	// Structured indexer aggregation API (Torznab). The adapter is
	// enabled only when TorznabURL is set.
	TorznabURL    string `mapstructure:"torznabUrl"`
	TorznabAPIKey string `mapstructure:"torznabApiKey"`

	// Tracker scraping adapters.
	RutorURL        string `mapstructure:"rutorUrl"`
	NNMClubURL      string `mapstructure:"nnmclubUrl"`
	KinozalURL      string `mapstructure:"kinozalUrl"`
	KinozalUsername string `mapstructure:"kinozalUsername"`
	KinozalPassword string `mapstructure:"kinozalPassword"`

	// Per-adapter search timeout in seconds.
	SearchTimeout int `mapstructure:"searchTimeout"`

	DebridURL     string `mapstructure:"debridUrl"`
	DebridTimeout int    `mapstructure:"debridTimeout"`

	MaxAvailabilityChecks   int    `mapstructure:"maxAvailabilityChecks"`
	AvailabilityConcurrency int    `mapstructure:"availabilityConcurrency"`
	ResultCacheTTL          int    `mapstructure:"resultCacheTTL"`
	FilterExpr              string `mapstructure:"filterExpr"`

	MetadataURL      string `mapstructure:"metadataUrl"`
	MetadataCacheTTL int    `mapstructure:"metadataCacheTTL"`

	PprofEnabled          bool   `mapstructure:"pprofEnabled"`
	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`
}
