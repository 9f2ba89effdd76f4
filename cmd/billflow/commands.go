package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brightpath-pm/billflow/internal/config"
	"github.com/brightpath-pm/billflow/internal/daemon"
	"github.com/brightpath-pm/billflow/internal/enrich"
	"github.com/brightpath-pm/billflow/internal/entrata"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/storage"
	"github.com/brightpath-pm/billflow/internal/tables"
	"github.com/brightpath-pm/billflow/internal/ubi"
)

func runServe(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func runIngest(cfg *config.Config, files []string) error {
	store, err := storage.NewFSStore(cfg.StoreRoot)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		key := stage.Pending + filepath.Base(f)
		if err := store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("upload %s: %w", f, err)
		}
		fmt.Printf("uploaded %s\n", key)
	}
	return nil
}

// runEnrich re-runs enrichment over Stage 3 outputs with exact dimension
// matching only; the fuzzy LLM matcher runs in the daemon.
func runEnrich(cfg *config.Config, keys []string) error {
	store, err := storage.NewFSStore(cfg.StoreRoot)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	snapshots := enrich.NewSnapshots()
	if err := snapshots.Refresh(ctx, store); err != nil {
		return fmt.Errorf("load dimension snapshots: %w", err)
	}
	if len(keys) == 0 {
		if keys, err = store.List(ctx, stage.ParsedOutputs); err != nil {
			return err
		}
	}

	enricher := &enrich.Enricher{Store: store, Snapshots: snapshots}
	for _, k := range keys {
		if err := enricher.Process(ctx, k); err != nil {
			return fmt.Errorf("enrich %s: %w", k, err)
		}
		fmt.Printf("enriched %s\n", k)
	}
	return nil
}

func runPost(cfg *config.Config, keys []string, postMonth string) error {
	store, err := storage.NewFSStore(cfg.StoreRoot)
	if err != nil {
		return err
	}
	defer store.Close()
	db, err := tables.Open(cfg.TablePath)
	if err != nil {
		return err
	}
	defer db.Close()

	orchestrator := &entrata.Orchestrator{
		Store: store,
		Client: &entrata.Client{
			BaseURL:  cfg.EntrataURL,
			Username: cfg.EntrataUsername,
			Password: cfg.EntrataPassword,
		},
		Drafts: db.Drafts(),
		Errors: db.Errors(),
	}
	results := orchestrator.PostKeys(context.Background(), keys, entrata.PostOptions{
		PostMonth: postMonth,
	})
	return printJSON(results)
}

func runMasterBills(cfg *config.Config, start, end string) error {
	store, err := storage.NewFSStore(cfg.StoreRoot)
	if err != nil {
		return err
	}
	defer store.Close()
	db, err := tables.Open(cfg.TablePath)
	if err != nil {
		return err
	}
	defer db.Close()

	dr, err := ubi.ParseDateRange(start, end)
	if err != nil {
		return err
	}
	engine := &ubi.Engine{Store: store, UBI: db.UBI()}
	bills, err := engine.MasterBills(context.Background(), dr)
	if err != nil {
		return err
	}
	return printJSON(bills)
}

func runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	sample := `# billflow configuration
store_root: ./billstore
table_path: ./billflow.db
listen_addr: ":8080"
model: gemini-2.0-flash
# nats_url: nats://localhost:4222
# entrata_url: https://example.entrata.com/api/v1/invoices
`
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
