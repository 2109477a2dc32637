package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/subcommands"
	"github.com/robfig/cron/v3"
	"github.com/tutuna/podcatcher/internals/catcher"
	"github.com/tutuna/podcatcher/internals/config"
	"github.com/tutuna/podcatcher/internals/feeds"
	"github.com/tutuna/podcatcher/internals/ledger"
)

const defaultSchedule = "@every 1h"

// runPass synchronizes every configured feed once. Failed feeds make the
// pass fail; an interrupt does not.
func runPass(ctx context.Context, c *catcher.Catcher, feedConfigs []config.FeedConfig) subcommands.ExitStatus {
	results := c.SyncAll(ctx, feedConfigs)
	failed, downloaded := 0, 0
	for _, res := range results {
		downloaded += len(res.Downloaded)
		if res.Err != nil {
			failed++
		}
	}
	log.Printf("Pass finished: %d feeds checked, %d episodes downloaded, %d feeds failed.", len(results), downloaded, failed)
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type downloadCmd struct {
	app    *app
	dryRun bool
}

func (*downloadCmd) Name() string     { return "download" }
func (*downloadCmd) Synopsis() string { return "Download new episodes of all feeds." }
func (*downloadCmd) Usage() string {
	return `download [-dry-run]:
  Download new episodes of all enabled feeds, oldest first.
`
}

func (c *downloadCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "only report what would be downloaded")
}

func (c *downloadCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.app.loadConfig()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	pc, closeStore, err := c.app.newCatcher(cfg, c.dryRun)
	if err != nil {
		log.Printf("Error setting up: %v", err)
		return subcommands.ExitFailure
	}
	defer closeStore()
	return runPass(ctx, pc, cfg.Feeds)
}

type serviceCmd struct {
	app      *app
	schedule string
}

func (*serviceCmd) Name() string     { return "service" }
func (*serviceCmd) Synopsis() string { return "Download new episodes on a schedule." }
func (*serviceCmd) Usage() string {
	return `service [-schedule <cron spec>]:
  Run a download pass now and then on every tick of the schedule until interrupted.
`
}

func (c *serviceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.schedule, "schedule", defaultSchedule, "cron schedule of download passes")
}

func (c *serviceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.app.loadConfig()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	pc, closeStore, err := c.app.newCatcher(cfg, false)
	if err != nil {
		log.Printf("Error setting up: %v", err)
		return subcommands.ExitFailure
	}
	defer closeStore()
	return serve(ctx, c.schedule, func() { runPass(ctx, pc, cfg.Feeds) })
}

// serve runs pass once and then on schedule until ctx is done. Ticks that
// arrive while a pass is still running are skipped.
func serve(ctx context.Context, schedule string, pass func()) subcommands.ExitStatus {
	logger := cron.PrintfLogger(log.Default())
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	if _, err := sched.AddFunc(schedule, pass); err != nil {
		log.Printf("Invalid schedule %q: %v", schedule, err)
		return subcommands.ExitUsageError
	}

	log.Printf("Starting the service, schedule %q", schedule)
	pass()
	if ctx.Err() != nil {
		return subcommands.ExitSuccess
	}
	sched.Start()
	<-ctx.Done()
	log.Println("Stopping the service")
	<-sched.Stop().Done()
	return subcommands.ExitSuccess
}

type listFeedsCmd struct {
	app *app
}

func (*listFeedsCmd) Name() string     { return "listFeeds" }
func (*listFeedsCmd) Synopsis() string { return "List configured feeds." }
func (*listFeedsCmd) Usage() string {
	return `listFeeds:
  Print the configured feeds with their effective settings.
`
}

func (c *listFeedsCmd) SetFlags(_ *flag.FlagSet) {}

func (c *listFeedsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.app.loadConfig()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	rows := make([][]string, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		eff := config.Resolve(cfg.Settings, fc)
		cutoff := "-"
		if eff.Cutoff != nil {
			cutoff = eff.Cutoff.Format(time.RFC3339)
		}
		rows = append(rows, []string{
			eff.Name,
			strconv.FormatBool(eff.Enabled),
			strconv.FormatBool(eff.StrictHTTPS),
			eff.Destination,
			cutoff,
			eff.URL,
		})
	}
	fmt.Fprintln(c.app.out, renderTable(c.app.out,
		[]string{"Name", "Enabled", "Strict HTTPS", "Destination", "Skip older than", "URL"}, rows))
	return subcommands.ExitSuccess
}

type listEpisodesCmd struct {
	app  *app
	feed string
}

func (*listEpisodesCmd) Name() string     { return "listEpisodes" }
func (*listEpisodesCmd) Synopsis() string { return "List the episodes of a feed." }
func (*listEpisodesCmd) Usage() string {
	return `listEpisodes -feed <name>:
  Print the episodes currently in a feed and whether they were downloaded.
`
}

func (c *listEpisodesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.feed, "feed", "", "name of the configured feed")
}

func (c *listEpisodesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.feed == "" {
		f.PrintDefaults()
		return subcommands.ExitUsageError
	}
	cfg, err := c.app.loadConfig()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	fc, ok := cfg.Feed(c.feed)
	if !ok {
		log.Printf("No feed named '%s' in %s", c.feed, c.app.configPath)
		return subcommands.ExitUsageError
	}
	eff := config.Resolve(cfg.Settings, fc)

	raw, err := newLoader(cfg.Settings).FetchText(ctx, eff.URL, eff.StrictHTTPS)
	if err != nil {
		log.Printf("Error fetching feed '%s': %v", eff.Name, err)
		return subcommands.ExitFailure
	}
	feed, err := feeds.Parse(raw)
	if err != nil {
		log.Printf("Error parsing feed '%s': %v", eff.Name, err)
		return subcommands.ExitFailure
	}
	store, closeStore, err := openStore(cfg.Settings)
	if err != nil {
		log.Printf("Error opening ledger: %v", err)
		return subcommands.ExitFailure
	}
	defer closeStore()
	l, err := ledger.Open(store, eff.Name)
	if err != nil {
		log.Printf("Error opening ledger of '%s': %v", eff.Name, err)
		return subcommands.ExitFailure
	}

	entries := feed.Entries(eff.Cutoff)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		downloaded := "no"
		if l.IsDownloaded(e.Enclosure) {
			downloaded = "yes"
		}
		rows = append(rows, []string{e.Published.Format("2006-01-02 15:04"), e.Title, downloaded, e.Enclosure})
	}
	fmt.Fprintf(c.app.out, "%s (%d episodes)\n", feed.Title, len(entries))
	fmt.Fprintln(c.app.out, renderTable(c.app.out, []string{"Published", "Title", "Downloaded", "URL"}, rows))
	if latest, ok := l.Latest(); ok {
		fmt.Fprintf(c.app.out, "Latest download: %s (%s)\n", latest.Title, latest.Published)
	}
	return subcommands.ExitSuccess
}

type rawFeedCmd struct {
	app  *app
	feed string
}

func (*rawFeedCmd) Name() string     { return "rawFeed" }
func (*rawFeedCmd) Synopsis() string { return "Print the raw document of a feed." }
func (*rawFeedCmd) Usage() string {
	return `rawFeed -feed <name>:
  Fetch a configured feed and print it unparsed.
`
}

func (c *rawFeedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.feed, "feed", "", "name of the configured feed")
}

func (c *rawFeedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.feed == "" {
		f.PrintDefaults()
		return subcommands.ExitUsageError
	}
	cfg, err := c.app.loadConfig()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	fc, ok := cfg.Feed(c.feed)
	if !ok {
		log.Printf("No feed named '%s' in %s", c.feed, c.app.configPath)
		return subcommands.ExitUsageError
	}
	raw, err := newLoader(cfg.Settings).FetchText(ctx, fc.URL, fc.IsStrictHTTPS())
	if err != nil {
		log.Printf("Error fetching feed '%s': %v", fc.Name, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.app.out, raw)
	return subcommands.ExitSuccess
}

type versionCmd struct{}

func (*versionCmd) Name() string     { return "version" }
func (*versionCmd) Synopsis() string { return "Print the version." }
func (*versionCmd) Usage() string {
	return `version:
  Print the version.
`
}

func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("podcatcher", version)
	return subcommands.ExitSuccess
}
