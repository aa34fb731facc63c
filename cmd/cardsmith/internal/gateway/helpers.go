package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/tinyland-inc/cardsmith/cmd/cardsmith/internal"
	"github.com/tinyland-inc/cardsmith/pkg/assets"
	"github.com/tinyland-inc/cardsmith/pkg/bus"
	"github.com/tinyland-inc/cardsmith/pkg/cards"
	"github.com/tinyland-inc/cardsmith/pkg/channels"
	"github.com/tinyland-inc/cardsmith/pkg/config"
	gatewaypkg "github.com/tinyland-inc/cardsmith/pkg/gateway"
	"github.com/tinyland-inc/cardsmith/pkg/imaging/text"
	"github.com/tinyland-inc/cardsmith/pkg/leveling"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
	"github.com/tinyland-inc/cardsmith/pkg/pantheon"
	"github.com/tinyland-inc/cardsmith/pkg/pixelart"
	"github.com/tinyland-inc/cardsmith/pkg/quantize"
	"github.com/tinyland-inc/cardsmith/pkg/render"
	"github.com/tinyland-inc/cardsmith/pkg/session"
	"github.com/tinyland-inc/cardsmith/pkg/stockage"
	"github.com/tinyland-inc/cardsmith/pkg/store"
)

// catalogRefreshInterval paces re-reading the mirrored value catalog and
// refreshing stocked item values from it.
const catalogRefreshInterval = time.Minute

type stateStores struct {
	embed      *config.Store
	converters *config.Store
	leveling   *config.Store
	welcome    *config.Store
	pantheon   *config.Store
	notation   *config.Store
	stockage   *config.Store
	rules      *config.Store
	catalog    *config.Store
}

func openStores(cfg *config.Config) (*stateStores, error) {
	open := func(name string, defaults any) (*config.Store, error) {
		return config.OpenStore(cfg.StatePath(name), defaults)
	}

	var s stateStores
	var err error
	if s.embed, err = open("embed_command.json", nil); err != nil {
		return nil, err
	}
	if s.converters, err = open("converters_data.json", defaultConverters()); err != nil {
		return nil, err
	}
	if s.leveling, err = open("leveling_data.json", cards.DefaultLevelingData()); err != nil {
		return nil, err
	}
	if s.welcome, err = open("welcome_data.json", cards.DefaultWelcomeData()); err != nil {
		return nil, err
	}
	if s.pantheon, err = open("pantheon_data.json", nil); err != nil {
		return nil, err
	}
	if s.notation, err = open("notation_data.json", nil); err != nil {
		return nil, err
	}
	if s.stockage, err = open("stockage_data.json", nil); err != nil {
		return nil, err
	}
	if s.rules, err = open("item_request.json", nil); err != nil {
		return nil, err
	}
	if s.catalog, err = open("API_JBChangeLogs.json", nil); err != nil {
		return nil, err
	}
	return &s, nil
}

// defaultConverters seeds converters_data.json with a monochrome palette;
// real deployments replace it through the config repository.
func defaultConverters() map[string]any {
	return map[string]any{
		"default_palette": "classic",
		"palettes": map[string]any{
			"classic": []map[string]any{
				{"rgb": []int{0, 0, 0}, "name": "black", "enabled": true},
				{"rgb": []int{85, 85, 85}, "name": "dark gray", "enabled": true},
				{"rgb": []int{170, 170, 170}, "name": "light gray", "enabled": true},
				{"rgb": []int{255, 255, 255}, "name": "white", "enabled": true},
			},
		},
	}
}

func gatewayCmd(debug, console bool) error {
	if debug {
		logger.SetLevel(zapcore.DebugLevel)
		fmt.Println("🔍 Debug mode enabled")
	}
	defer logger.Sync()

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.GitHub.Token == "" || cfg.GitHub.Repo == "" {
		return fmt.Errorf("GITHUB_TOKEN and GITHUB_REPO are required")
	}

	stores, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("error opening state files: %w", err)
	}

	owner, repoName, err := cfg.GitHub.Owner()
	if err != nil {
		return err
	}
	configClient := store.NewClient(cfg.GitHub.Token, owner, repoName, cfg.GitHub.Branch)
	picturesClient := store.NewClient(cfg.GitHub.Token, owner, cfg.GitHub.PicturesRepo, cfg.GitHub.Branch)
	if cfg.GitHub.APIBase != "" {
		configClient.SetBaseURL(cfg.GitHub.APIBase)
		picturesClient.SetBaseURL(cfg.GitHub.APIBase)
	}

	regular, err := text.Load(cfg.Renderer.FontPath)
	if err != nil {
		return fmt.Errorf("error loading font: %w", err)
	}
	bold, err := text.LoadBold("")
	if err != nil {
		return fmt.Errorf("error loading bold font: %w", err)
	}

	quantizer := quantize.New(cfg.Renderer.FastPathPixels)
	defer quantizer.Close()

	ingestor := assets.NewIngestor(picturesClient, cfg.StageDir)
	renderer := render.New(assets.NewFetcher(), regular, bold)
	converter := pixelart.NewConverter(quantizer, ingestor, assets.NewFetcher())

	eventBus := bus.NewEventBus()
	defer eventBus.Close()

	var chans []channels.Channel
	if cfg.Discord.Enabled {
		chans = append(chans, channels.NewDiscordChannel(
			cfg.Discord.Token, cfg.Discord.GuildID, eventBus,
			cfg.Discord.AllowFrom, channels.WithAdminList(cfg.Discord.AdminIDs),
		))
	}
	if console {
		chans = append(chans, channels.NewConsoleChannel(eventBus))
	}
	if len(chans) == 0 {
		return fmt.Errorf("no channels enabled; enable discord or pass --console")
	}

	stockageSvc := stockage.NewService(stores.rules, stores.catalog, stores.stockage)

	gw := gatewaypkg.New(
		eventBus,
		chans,
		renderer,
		ingestor,
		converter,
		leveling.NewService(),
		session.NewService(),
		pantheon.NewService(stores.pantheon, stores.notation),
		stockageSvc,
		gatewaypkg.Stores{
			Embed:      stores.embed,
			Converters: stores.converters,
			Leveling:   stores.leveling,
			Welcome:    stores.welcome,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, ch := range chans {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("error starting %s channel: %w", ch.Name(), err)
		}
		fmt.Printf("✓ Channel started: %s\n", ch.Name())
	}

	if cfg.Mirror.Enabled {
		mirror := store.NewMirror(configClient, cfg.Mirror.Artifact, cfg.StatePath(cfg.Mirror.Artifact))
		go mirror.Run(ctx)
		go refreshCatalog(ctx, stores.catalog, stockageSvc)
		fmt.Printf("✓ Mirror polling %s\n", cfg.Mirror.Artifact)
	}

	if cfg.Backup.Enabled {
		backup := store.NewBackup(configClient, cfg.Backup.Schedule, cfg.DataDir, config.StateFiles)
		go backup.Run(ctx)
		fmt.Printf("✓ Backup scheduled: %s\n", cfg.Backup.Schedule)
	}

	go func() {
		if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("gateway", "dispatcher stopped", map[string]any{"error": err.Error()})
		}
	}()

	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	eventBus.Close()
	for _, ch := range chans {
		if err := ch.Stop(context.Background()); err != nil {
			logger.WarnCF("gateway", "channel stop failed", map[string]any{"channel": ch.Name(), "error": err.Error()})
		}
	}
	fmt.Println("✓ Gateway stopped")

	return nil
}

// refreshCatalog periodically re-reads the mirrored catalog file and
// refreshes stocked item values from it.
func refreshCatalog(ctx context.Context, catalog *config.Store, svc *stockage.Service) {
	ticker := time.NewTicker(catalogRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := catalog.Reload(); err != nil {
				continue
			}
			if err := svc.RefreshValues(); err != nil {
				logger.WarnCF("stockage", "value refresh failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
