package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/brightpath-pm/billflow/internal/config"
	"github.com/brightpath-pm/billflow/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Serve struct{} `cmd:"" help:"Run the pipeline daemon and review API"`

	Ingest struct {
		Files []string `arg:"" help:"PDF files to drop into the pending stage"`
	} `cmd:"" help:"Upload PDFs into the pipeline"`

	Enrich struct {
		Keys []string `arg:"" optional:"" help:"Parsed-output keys to enrich; all of stage 3 when omitted"`
	} `cmd:"" help:"Re-run dimension enrichment over parsed outputs"`

	Post struct {
		Keys      []string `arg:"" help:"Pre-entrata batch keys to post"`
		PostMonth string   `help:"Accounting period MM/YYYY"`
	} `cmd:"" help:"Post built batches to Entrata"`

	MasterBills struct {
		Start string `help:"Window start YYYY-MM-DD"`
		End   string `help:"Window end YYYY-MM-DD"`
	} `cmd:"" name:"master-bills" help:"Generate master-bill roll-ups from assigned lines"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	config.LoadEnvFile()
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "serve":
		if err := runServe(cfg); err != nil {
			slog.Error("Serve failed", "error", err)
			os.Exit(1)
		}
	case "ingest <files>":
		if err := runIngest(cfg, CLI.Ingest.Files); err != nil {
			slog.Error("Ingest failed", "error", err)
			os.Exit(1)
		}
	case "enrich", "enrich <keys>":
		if err := runEnrich(cfg, CLI.Enrich.Keys); err != nil {
			slog.Error("Enrich failed", "error", err)
			os.Exit(1)
		}
	case "post <keys>":
		if err := runPost(cfg, CLI.Post.Keys, CLI.Post.PostMonth); err != nil {
			slog.Error("Post failed", "error", err)
			os.Exit(1)
		}
	case "master-bills":
		if err := runMasterBills(cfg, CLI.MasterBills.Start, CLI.MasterBills.End); err != nil {
			slog.Error("Master bills failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
