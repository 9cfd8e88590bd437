package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/common"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/executor"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/handlers"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/jobmanager"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/models"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/network"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/operators"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/peer"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/server"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage"
	badgerstore "github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/storage/badger"
)

// App owns the lifecycle of one platform instance: storage, the job
// manager, the in-process executor and the HTTP server.
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Storage  interfaces.StorageManager
	Manager  *jobmanager.Manager
	Registry *operators.Registry

	server  *server.Server
	spawner *executor.Spawner
	sweeper *contexts.Sweeper
}

// New wires every component from the configuration.
func New(config *common.Config) (*App, error) {
	logger := common.InitLogger(config)

	storageManager, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	book, err := network.LoadAddressBook(config.Party.ConfigFile)
	if err != nil {
		_ = storageManager.Close()
		return nil, err
	}
	if _, ok := book.Get(config.Party.Name); !ok {
		_ = storageManager.Close()
		return nil, fmt.Errorf("party %q not present in %s", config.Party.Name, config.Party.ConfigFile)
	}
	netGen := network.NewGenerator(book, &config.Network)
	peerClient := peer.NewClient(book, config.Party.PeerToken, logger)

	registry := operators.NewRegistry()
	operators.RegisterBuiltins(registry)

	global := contexts.NewGlobalConfigService(storageManager.Configs(), logger)
	missionCtx := contexts.NewMissionContextService(storageManager.Configs(), logger)
	jobCtx := contexts.NewJobContextService(storageManager.Jobs(), logger)

	manager := jobmanager.NewManager(jobmanager.Options{
		Party:          config.Party.Name,
		MaxJobLimit:    config.Jobs.MaxJobLimit,
		DefaultMission: config.Jobs.DefaultMission,
	}, storageManager, jobCtx, peerClient, logger)

	exec := executor.New(executor.Options{
		Party:       config.Party.Name,
		SafeWorkDir: config.Jobs.SafeWorkDir,
		Storage:     storageManager,
		Manager:     manager,
		Registry:    registry,
		NetGen:      netGen,
		Global:      global,
		Mission:     missionCtx,
		JobContext:  jobCtx,
		Logger:      logger,
	})
	spawner := executor.NewSpawner(exec, logger)
	manager.SetTaskRunner(spawner)

	auth := handlers.NewAuth(config.Party.JWTSecret, storageManager.Users(), logger)
	router := server.NewRouter(auth,
		handlers.NewJobHandler(manager, logger),
		handlers.NewTaskHandler(manager, logger))
	httpServer := server.New(config, router, logger)

	sweeper := contexts.NewSweeper(storageManager.Configs(), logger, config.Jobs.SweepSchedule)

	a := &App{
		Config:   config,
		Logger:   logger,
		Storage:  storageManager,
		Manager:  manager,
		Registry: registry,
		server:   httpServer,
		spawner:  spawner,
		sweeper:  sweeper,
	}
	if err := a.bootstrap(); err != nil {
		_ = storageManager.Close()
		return nil, err
	}
	return a, nil
}

// bootstrap loads mission templates and seeds configured users.
func (a *App) bootstrap() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if dir := a.Config.Jobs.MissionsDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			loaded, err := storage.LoadMissionsFromDir(ctx, a.Logger, a.Storage.Missions(), dir)
			if err != nil {
				return fmt.Errorf("failed to load missions: %w", err)
			}
			a.Logger.Info().Int("loaded", loaded).Str("dir", dir).Msg("Mission templates ready")
		} else {
			a.Logger.Warn().Str("dir", dir).Msg("Missions directory not found, skipping template load")
		}
	}

	for _, seed := range a.Config.Users {
		if _, err := a.Storage.Users().GetUser(ctx, seed.Name); err == nil {
			continue
		}
		user := &models.User{
			Name:   seed.Name,
			Role:   models.UserRole(seed.Role),
			Status: models.UserStatusNormal,
		}
		if err := a.Storage.Users().SaveUser(ctx, user); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", seed.Name, err)
		}
		a.Logger.Info().Str("user", seed.Name).Str("role", seed.Role).Msg("User seeded")
	}
	return nil
}

// Start begins background services and blocks on the HTTP server.
func (a *App) Start() error {
	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	a.Logger.Info().
		Str("party", a.Config.Party.Name).
		Str("scheme", a.Config.Network.Scheme).
		Msg("Platform instance starting")
	return a.server.Start()
}

// Shutdown stops the server, drains executors and closes storage.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	a.sweeper.Stop()
	a.spawner.Shutdown()
	return a.Storage.Close()
}
