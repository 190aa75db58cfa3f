// ember - A terminal chat client for locally hosted inference servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/morganforge/ember/internal/config"
	"github.com/morganforge/ember/internal/session"
	"github.com/morganforge/ember/internal/storage"
	"github.com/morganforge/ember/internal/transport"
	"github.com/morganforge/ember/internal/ui/chat"
	"github.com/morganforge/ember/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	serverURL := flag.String("server", "", "inference server URL (overrides config)")
	modelID := flag.String("model", "", "model to chat with (overrides config)")
	configPath := flag.String("config", "", "path to config file")
	noHistory := flag.Bool("no-history", false, "disable conversation persistence")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ember %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	// The TUI needs a real terminal; fail early with a clear message instead
	// of garbling piped output.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "ember: standard output is not a terminal")
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ember: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config.
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *modelID != "" {
		cfg.DefaultModel = *modelID
	}
	if *noHistory {
		cfg.History.Enabled = false
	}

	logger, closeLog := openLogger()
	defer closeLog()

	if err := run(cfg, *configPath, logger); err != nil {
		fmt.Fprintf(os.Stderr, "ember: %v\n", err)
		os.Exit(1)
	}
}

// openLogger opens the log file under the config directory. The TUI owns
// the terminal, so diagnostics must never go to stdout or stderr while it
// runs. Falls back to a discard logger when the file cannot be opened.
func openLogger() (*log.Logger, func()) {
	discard := log.New(io.Discard, "", 0)

	if err := config.EnsureDir(); err != nil {
		return discard, func() {}
	}
	path, err := config.LogPath()
	if err != nil {
		return discard, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return discard, func() {}
	}
	return log.New(f, "", log.LstdFlags), func() { f.Close() }
}

// run wires config, storage, transport, and session into the TUI.
func run(cfg *config.Config, configPath string, logger *log.Logger) error {
	theme := styles.NewTheme(cfg.UI.Theme)

	client := transport.NewClient(transport.Config{
		BaseURL:     cfg.Server.URL,
		Timeout:     time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		Temperature: cfg.Server.Temperature,
	})

	var history session.History
	var store *storage.Store
	if cfg.History.Enabled {
		dbPath, err := cfg.HistoryPath()
		if err != nil {
			return fmt.Errorf("resolve history path: %w", err)
		}
		store, err = storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		history = store
	}

	sess := session.New(session.Config{
		Transport: session.ClientTransport{Client: client},
		History:   history,
		Logger:    logger,
		ModelID:   cfg.DefaultModel,
	})

	// Pick up where the last run left off.
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conv, err := store.LoadLatest(ctx)
		cancel()
		switch {
		case err != nil:
			logger.Printf("history restore failed: %v", err)
		case conv != nil:
			if err := sess.Restore(conv); err != nil {
				logger.Printf("history restore rejected: %v", err)
			}
		}
	}

	exportDir := "."
	if dir, err := config.Dir(); err == nil {
		exportDir = filepath.Join(dir, "exports")
	}

	view := chat.New(chat.Config{
		Session:   sess,
		Client:    client,
		Theme:     theme,
		Markdown:  cfg.UI.Markdown,
		ExportDir: exportDir,
		Logger:    logger,
	})

	p := tea.NewProgram(view, tea.WithAltScreen())
	view.SetProgram(p)

	// Hot-reload the config file; only the settings that can change without
	// a restart are applied.
	watchPath := configPath
	if watchPath == "" {
		if path, err := config.Path(); err == nil {
			watchPath = path
		}
	}
	if watchPath != "" {
		watcher, err := config.Watch(watchPath,
			func(next *config.Config) {
				if next.DefaultModel != "" && next.DefaultModel != sess.Model() {
					sess.SetModel(next.DefaultModel)
				}
				logger.Printf("config reloaded from %s", watchPath)
			},
			func(err error) {
				logger.Printf("config reload failed: %v", err)
			})
		if err != nil {
			logger.Printf("config watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	logger.Printf("ember %s starting: server=%s model=%s history=%t",
		Version, cfg.Server.URL, cfg.DefaultModel, cfg.History.Enabled)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
