package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emberlaunch/ember/internal/adapters/auth"
	"github.com/emberlaunch/ember/internal/adapters/msa"
	"github.com/emberlaunch/ember/internal/adapters/repo/accountsjson"
	"github.com/emberlaunch/ember/internal/adapters/repo/instancetoml"
	"github.com/emberlaunch/ember/internal/adapters/secrets/localkey"
	"github.com/emberlaunch/ember/internal/adapters/symlink"
	"github.com/emberlaunch/ember/internal/application"
	"github.com/emberlaunch/ember/internal/domain"
	"github.com/emberlaunch/ember/internal/ports"
	"github.com/emberlaunch/ember/internal/process"
)

type app struct {
	auth          *application.AuthService
	launch        *application.LaunchService
	registry      ports.AccountRegistry
	installations ports.InstallationRepository
	settings      domain.Settings
	clock         ports.Clock
	log           *slog.Logger
}

func wireApp(log *slog.Logger) (*app, error) {
	cfg, configDir, err := loadConfig()
	if err != nil {
		return nil, err
	}

	crypter, err := localkey.New(cfg.GetString("secrets.key_path"))
	if err != nil {
		return nil, fmt.Errorf("wire token crypter: %w", err)
	}

	registry, err := accountsjson.NewRegistry(cfg.GetString("accounts.path"), crypter)
	if err != nil {
		return nil, fmt.Errorf("wire account registry: %w", err)
	}

	installations, err := instancetoml.NewRepository(cfg, configDir)
	if err != nil {
		return nil, fmt.Errorf("wire installation repository: %w", err)
	}

	client := &auth.Client{
		Endpoints:      auth.DefaultEndpoints(),
		ClientID:       cfg.GetString("auth.client_id"),
		Scopes:         []string{"XboxLive.signin", "offline_access"},
		HTTPClient:     http.DefaultClient,
		RequestTimeout: 30 * time.Second,
	}
	chain := msa.Chain{
		Endpoints:      msa.DefaultEndpoints(),
		HTTPClient:     http.DefaultClient,
		RequestTimeout: 30 * time.Second,
	}

	clock := ports.SystemClock{}
	deviceFlow := auth.NewDeviceFlow(client, chain, clock)
	browserFlow := auth.NewBrowserFlow(client, chain, cfg.GetString("auth.listen"))
	supervisor := process.NewSupervisor(log)
	symlinks := symlink.NewManager(log)

	settings := domain.Settings{
		GameRoot:    cfg.GetString("game.root"),
		JavaBinary:  cfg.GetString("game.java"),
		MemoryMinMB: cfg.GetInt("game.memory_min_mb"),
		MemoryMaxMB: cfg.GetInt("game.memory_max_mb"),
	}

	return &app{
		auth:          application.NewAuthService(registry, deviceFlow, browserFlow, clock, log),
		registry:      registry,
		installations: installations,
		settings:      settings,
		clock:         clock,
		log:           log,
		launch: application.NewLaunchService(application.LaunchServiceDeps{
			Installations: installations,
			Registry:      registry,
			Refresher:     client,
			Exchanger:     chain,
			Symlinks:      symlinks,
			Supervisor:    supervisor,
			Settings:      settings,
			Clock:         clock,
			Log:           log,
		}),
	}, nil
}

// loadConfig resolves defaults under the user config dir and reads an
// optional config.toml, with EMBER_* environment overrides.
func loadConfig() (*viper.Viper, string, error) {
	configDir, err := resolveConfigDir()
	if err != nil {
		return nil, "", err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("resolve home directory: %w", err)
	}

	cfg := viper.New()
	cfg.SetDefault("accounts.path", filepath.Join(configDir, "accounts.json"))
	cfg.SetDefault("secrets.key_path", filepath.Join(configDir, "secret.key"))
	cfg.SetDefault("installations.path", filepath.Join(configDir, "installations.toml"))
	cfg.SetDefault("game.root", filepath.Join(homeDir, ".ember"))
	cfg.SetDefault("game.java", "java")
	cfg.SetDefault("game.memory_min_mb", 512)
	cfg.SetDefault("game.memory_max_mb", 4096)
	cfg.SetDefault("auth.client_id", "00000000402b5328")
	cfg.SetDefault("auth.listen", "127.0.0.1:43319")

	cfg.SetEnvPrefix("EMBER")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	cfg.SetConfigFile(filepath.Join(configDir, "config.toml"))
	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
	}

	return cfg, configDir, nil
}

func resolveConfigDir() (string, error) {
	if dir := os.Getenv("EMBER_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}

	return filepath.Join(base, "ember"), nil
}
