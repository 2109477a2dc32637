package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/tutuna/podcatcher/internals/catcher"
	"github.com/tutuna/podcatcher/internals/config"
	"github.com/tutuna/podcatcher/internals/database"
	"github.com/tutuna/podcatcher/internals/fetcher"
	"github.com/tutuna/podcatcher/internals/ledger"
	"github.com/tutuna/podcatcher/internals/notify"
	"github.com/tutuna/podcatcher/internals/tagger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const configEnv = "PODCATCHER_CONFIG"

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(dir, "podcatcher", "config.json")
}

// app carries the global flags shared by every command.
type app struct {
	configPath string
	verbose    bool
	out        io.Writer
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		log.Printf("Loaded %d feeds from %s", len(cfg.Feeds), a.configPath)
	}
	return cfg, nil
}

// openStore returns the ledger store selected by the settings and a
// function releasing it.
func openStore(settings config.Settings) (ledger.Store, func(), error) {
	if settings.Ledger.Backend != config.LedgerDatabase {
		store, err := ledger.NewFileStore(settings.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	params := database.InitDbParams(settings.Ledger.DbType, settings.Ledger.DSN, settings.DataDir)
	if params.Type == database.DbTypeSqlite {
		if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
			return nil, nil, errors.Wrapf(err, "create data dir %s", settings.DataDir)
		}
	}
	db, err := database.DbConnect(params)
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.NewDBStore(db)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing ledger database: %v", err)
		}
	}
	return store, closeDB, nil
}

func newLoader(settings config.Settings) *fetcher.Loader {
	ua := settings.UserAgent
	if ua == "" {
		ua = fetcher.DefaultUserAgent
	}
	return fetcher.New(settings.HTTPTimeout(), ua)
}

// newCatcher wires a Catcher from the configuration.
func (a *app) newCatcher(cfg *config.Config, dryRun bool) (*catcher.Catcher, func(), error) {
	store, closeStore, err := openStore(cfg.Settings)
	if err != nil {
		return nil, nil, err
	}
	p := catcher.Params{
		Settings: cfg.Settings,
		Fetcher:  newLoader(cfg.Settings),
		Store:    store,
		Tagger:   tagger.New(),
		DryRun:   dryRun,
		Verbose:  a.verbose,
	}
	if tg := cfg.Settings.Telegram; tg.Enabled && !dryRun {
		n, err := notify.NewTelegram(tg.Channel, tg.URL)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		p.Notifier = n
	}
	return catcher.New(p), closeStore, nil
}

func main() {
	a := &app{out: os.Stdout}
	flag.StringVar(&a.configPath, "config", defaultConfigPath(), "path of the JSON or YAML configuration file")
	flag.BoolVar(&a.verbose, "verbose", false, "verbose logging")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&downloadCmd{app: a}, "")
	subcommands.Register(&serviceCmd{app: a}, "")
	subcommands.Register(&listFeedsCmd{app: a}, "")
	subcommands.Register(&listEpisodesCmd{app: a}, "")
	subcommands.Register(&rawFeedCmd{app: a}, "")
	subcommands.Register(&versionCmd{}, "")
	subcommands.ImportantFlag("config")
	flag.Parse()

	if a.verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := subcommands.Execute(ctx)
	stop()
	os.Exit(int(status))
}
