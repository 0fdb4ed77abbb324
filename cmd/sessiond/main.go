// Command sessiond is the session-manager backend: it indexes the local
// agent's JSONL transcripts into a SQLite cache and serves the dispatcher
// over HTTP and WebSocket for the desktop/web UI to consume.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pi-agent/session-manager/internal/authtoken"
	"github.com/pi-agent/session-manager/internal/broadcast"
	"github.com/pi-agent/session-manager/internal/config"
	"github.com/pi-agent/session-manager/internal/dispatch"
	"github.com/pi-agent/session-manager/internal/scanner"
	"github.com/pi-agent/session-manager/internal/store"
	"github.com/pi-agent/session-manager/internal/terminal"
	"github.com/pi-agent/session-manager/internal/transport"
	"github.com/pi-agent/session-manager/internal/writebuffer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr        string
		dataDir     string
		configDir   string
		staticDir   string
		allowOrigin string
	)

	cmd := &cobra.Command{
		Use:   "sessiond",
		Short: "Index and serve local agent session transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), serverOptions{
				addr:        addr,
				dataDir:     dataDir,
				configDir:   configDir,
				staticDir:   staticDir,
				allowOrigin: allowOrigin,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4317", "address to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory for the SQLite cache (default: config dir)")
	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory for scan config and auth token (default: ~/.pi/agent)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "optional directory of UI assets to serve at /")
	cmd.Flags().StringVar(&allowOrigin, "allow-origin", "", "CORS origin to allow (empty disables CORS headers)")

	cmd.AddCommand(newAttachCmd())

	return cmd
}

type serverOptions struct {
	addr        string
	dataDir     string
	configDir   string
	staticDir   string
	allowOrigin string
}

func runServer(ctx context.Context, opts serverOptions) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfgDir := opts.configDir
	if cfgDir == "" {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("resolving config dir: %w", err)
		}
		cfgDir = dir
	}
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	scanCfg, err := config.LoadScanConfig(cfgDir)
	if err != nil {
		return fmt.Errorf("loading scan config: %w", err)
	}

	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = cfgDir
	}

	st, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	tokens, err := authtoken.Load(cfgDir)
	if err != nil {
		return fmt.Errorf("loading auth token: %w", err)
	}

	wb := writebuffer.New(st)
	defer wb.Close()

	sc := scanner.New(scanCfg, st, wb)
	bc := broadcast.New()
	terminals := terminal.NewManager(bc)

	d := &dispatch.Dispatcher{
		Store:      st,
		Scanner:    sc,
		WriteBuf:   wb,
		Terminals:  terminals,
		Broadcast:  bc,
		AuthTokens: tokens,
		ConfigDir:  cfgDir,
	}

	if err := os.MkdirAll(scanCfg.SessionsDir, 0o755); err != nil {
		slog.Warn("creating sessions dir failed", "dir", scanCfg.SessionsDir, "error", err)
	}

	w, err := watcherFor(scanCfg.SessionsDir, sc, bc)
	if err != nil {
		slog.Warn("starting file watcher failed, falling back to scan-on-demand only", "error", err)
	} else {
		defer w.Close()
	}

	srv := &transport.Server{
		Dispatcher:  d,
		Auth:        transport.NewAuthenticator(tokens),
		AllowOrigin: opts.allowOrigin,
	}

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Mux(opts.staticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sessiond listening", "addr", opts.addr, "sessionsDir", scanCfg.SessionsDir)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		wb.Flush()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func watcherFor(root string, sc *scanner.Scanner, bc *broadcast.Broadcaster) (interface{ Close() error }, error) {
	w, err := newWatcher(root, sc, bc)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}
