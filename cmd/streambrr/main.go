// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/streambrr/internal/aggregate"
	"github.com/autobrr/streambrr/internal/api"
	"github.com/autobrr/streambrr/internal/buildinfo"
	"github.com/autobrr/streambrr/internal/config"
	"github.com/autobrr/streambrr/internal/debrid"
	"github.com/autobrr/streambrr/internal/domain"
	"github.com/autobrr/streambrr/internal/mediameta"
	"github.com/autobrr/streambrr/internal/metrics"
	"github.com/autobrr/streambrr/internal/resolver"
	"github.com/autobrr/streambrr/internal/scraper"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "streambrr",
		Short: "Debrid stream resolver for media players",
		Long: `streambrr - Resolves movie and episode ids into instantly playable
debrid-cached streams, aggregated from torznab indexers and tracker scrapers.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
		pprofFlag bool
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/streambrr/ or %APPDATA%\\streambrr\\). For backward compatibility, can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	command.Run = func(cmd *cobra.Command, args []string) {
		app := NewApplication(configDir, logPath, pprofFlag)
		app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of streambrr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/streambrr/config.toml
- Windows: %APPDATA%\streambrr\config.toml

You can specify either a directory path or a direct file path:
- Directory: streambrr generate-config --config-dir /path/to/config/
- File: streambrr generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

type Application struct {
	configDir string
	logPath   string
	pprofFlag bool
}

func NewApplication(configDir, logPath string, pprofFlag bool) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
		pprofFlag: pprofFlag,
	}
}

func (app *Application) runServer() {
	// Initialize configuration
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize configuration")
	}

	// Override with CLI flags if provided
	if app.logPath != "" {
		os.Setenv("STREAMBRR__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	if app.pprofFlag {
		cfg.Config.PprofEnabled = true
	}

	cfg.ApplyLogConfig()

	log.Info().Str("version", buildinfo.Version).Msg("Starting streambrr")

	var pipelineMetrics *metrics.Metrics
	if cfg.Config.MetricsEnabled {
		pipelineMetrics = metrics.New()
	}

	searchTimeout := time.Duration(cfg.Config.SearchTimeout) * time.Second

	// Metadata lookups ride the same timeout as the sources, both sit on the
	// critical path of a resolution
	var metadataSource resolver.MetadataSource
	if cfg.Config.MetadataURL != "" {
		metadataClient := mediameta.NewClient(
			cfg.Config.MetadataURL,
			searchTimeout,
			time.Duration(cfg.Config.MetadataCacheTTL)*time.Minute,
		)
		defer metadataClient.Close()
		metadataSource = metadataClient
	}

	// Structured API source, enabled when configured
	var apiSource scraper.Source
	var torznabSource *scraper.Torznab
	if cfg.Config.TorznabURL != "" {
		torznabSource = scraper.NewTorznab("torznab", cfg.Config.TorznabURL, cfg.Config.TorznabAPIKey, searchTimeout)
		apiSource = torznabSource
	}

	// Tracker scrapers, each enabled by its URL. Kinozal additionally needs
	// an account to search at all.
	var scrapers []scraper.Source
	if cfg.Config.RutorURL != "" {
		scrapers = append(scrapers, scraper.NewRutor(cfg.Config.RutorURL, searchTimeout))
	}
	if cfg.Config.NNMClubURL != "" {
		scrapers = append(scrapers, scraper.NewNNMClub(cfg.Config.NNMClubURL, searchTimeout))
	}
	if cfg.Config.KinozalURL != "" {
		if cfg.Config.KinozalUsername != "" && cfg.Config.KinozalPassword != "" {
			kinozal, err := scraper.NewKinozal(cfg.Config.KinozalURL, cfg.Config.KinozalUsername, cfg.Config.KinozalPassword, searchTimeout)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize kinozal scraper")
			}
			scrapers = append(scrapers, kinozal)
		} else {
			log.Warn().Msg("Kinozal URL configured without credentials, scraper stays disabled")
		}
	}

	if apiSource == nil && len(scrapers) == 0 {
		log.Warn().Msg("No sources configured, every resolution will come up empty")
	}

	aggregator := aggregate.New(apiSource, scrapers, searchTimeout, pipelineMetrics)

	provider := debrid.NewRealDebrid(cfg.Config.DebridURL, time.Duration(cfg.Config.DebridTimeout)*time.Second)

	resolverService, err := resolver.New(aggregator, provider, metadataSource, pipelineMetrics, resolver.Options{
		MaxAvailabilityChecks:   cfg.Config.MaxAvailabilityChecks,
		AvailabilityConcurrency: cfg.Config.AvailabilityConcurrency,
		CacheTTL:                time.Duration(cfg.Config.ResultCacheTTL) * time.Minute,
		FilterExpr:              cfg.Config.FilterExpr,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize resolver")
	}

	cfg.RegisterReloadListener(func(conf *domain.Config) {
		if err := resolverService.SetFilter(conf.FilterExpr); err != nil {
			log.Error().Err(err).Msg("Failed to apply reloaded filter expression, keeping previous filter")
		}
	})

	// Probe the structured source once at startup. Failure only warns, the
	// endpoint may come up later.
	if torznabSource != nil {
		go func() {
			err := retry.Do(
				func() error {
					probeCtx, cancel := context.WithTimeout(context.Background(), searchTimeout)
					defer cancel()
					return torznabSource.Healthcheck(probeCtx)
				},
				retry.Attempts(3),
				retry.Delay(time.Second),
				retry.DelayType(retry.BackOffDelay),
				retry.LastErrorOnly(true),
			)
			if err != nil {
				log.Warn().Err(err).Msg("Torznab endpoint not reachable at startup")
				return
			}
			log.Debug().Msg("Torznab endpoint healthy")
		}()
	}

	// Start server in goroutine
	httpServer := api.NewServer(&api.Dependencies{
		Config:   cfg,
		Version:  buildinfo.Version,
		Resolver: resolverService,
	})

	errorChannel := make(chan error)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
	case err := <-errorChannel:
		log.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	if cfg.Config.MetricsEnabled {
		// Start metrics server on separate port
		go func() {
			metricsServer := metrics.NewServer(
				cfg.Config.MetricsHost,
				cfg.Config.MetricsPort,
				cfg.Config.MetricsBasicAuthUsers,
			)

			errorChannel <- metricsServer.ListenAndServe()
		}()
	}

	// Start profiling server if enabled
	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			log.Info().Msg("Access profiling at: http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("got error during graceful http shutdown")

		os.Exit(1)
	}

	os.Exit(0)
}
