package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/runledger/internal/config"
	"github.com/rpggio/runledger/internal/server"
	"github.com/rpggio/runledger/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the HTTP API, with MCP mounted at /mcp, or serve MCP over stdio.

Examples:
  runledger serve                    # HTTP on the configured port
  runledger serve --port 9000        # HTTP on port 9000
  runledger serve --transport stdio  # MCP over stdin/stdout`,
	RunE: runServe,
}

var (
	servePort      int
	serveTransport string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport mode: http or stdio (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("transport") {
		cfg.Transport.Mode = serveTransport
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	stdio := cfg.Transport.Mode == "stdio"
	logger, closeLog, err := newLogger(cfg.Log.Level, cfg.Log.Path, stdio)
	if err != nil {
		return fmt.Errorf("log file error: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.New(ctx, telemetry.Config{
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure: cfg.Telemetry.Insecure,
		Interval: cfg.Telemetry.Interval,
		Version:  Version,
	})
	if err != nil {
		return err
	}

	app, err := server.New(cfg, server.Options{
		Logger:  logger,
		Meter:   provider.Meter("github.com/rpggio/runledger"),
		Version: Version,
	})
	if err != nil {
		return err
	}

	if stdio {
		err = runStdio(ctx, logger, app.MCP)
	} else {
		err = runHTTP(ctx, logger, cfg, app.Handler)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if cerr := app.Close(shutdownCtx); cerr != nil {
		logger.Error("shutdown error", "error", cerr)
	}
	if perr := provider.Shutdown(shutdownCtx); perr != nil {
		logger.Warn("telemetry shutdown error", "error", perr)
	}
	return err
}

func runStdio(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport")
	// Run blocks until stdin closes or ctx is canceled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, cfg config.Config, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			// Open MCP event streams keep connections busy past the deadline.
			logger.Warn("forcing http server close", "error", err)
			return httpServer.Close()
		}
		return nil
	})
	return g.Wait()
}
