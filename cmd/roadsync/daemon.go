package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openrescue/roadsync/internal/bus"
	"github.com/openrescue/roadsync/internal/hub"
	"github.com/openrescue/roadsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the update hub and change feed",
	Long: `Run the background daemon: a WebSocket hub broadcasting request
updates, fed by the backend change feed.

Online deployments listen on the Postgres notification channel; local
deployments watch the SQLite database file for writes by other
roadsync processes. Connected clients receive:
- request_update: a request changed state
- note_added: an audit note was appended
- stats: aggregate request counts

Connect with a WebSocket client:
  ws://localhost:8377/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		logger := log.New(&lumberjack.Logger{
			Filename:   a.cfg.LogPath(),
			MaxSize:    a.cfg.Log.MaxSizeMB,
			MaxBackups: a.cfg.Log.MaxBackups,
			MaxAge:     a.cfg.Log.MaxAgeDays,
		}, "[daemon] ", log.LstdFlags)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		b := bus.New(logger)
		b.AttachFeed(ctx, a.changeFeed(logger))

		server := hub.NewServer(&hub.Config{Addr: a.cfg.Hub.Addr, Logger: logger})
		if err := server.Start(); err != nil {
			return err
		}

		events, unsubscribe := b.Subscribe()
		defer unsubscribe()
		handler := hub.NewHandler(server, a.store, logger)
		go handler.Run(ctx, events)

		fmt.Println(ui.RenderPass("Daemon running"))
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())
		fmt.Printf("Health check: http://%s/health\n", server.Addr())
		fmt.Println(ui.RenderDim("Press Ctrl+C to stop..."))

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			return err
		}
		cancel()
		b.Wait()
		return nil
	},
}

// changeFeed picks the feed matching the deployment: Postgres
// notifications online, filesystem watching locally.
func (a *app) changeFeed(logger *log.Logger) bus.Feed {
	if a.cfg.Online() {
		dsn, err := backendDSN(a.cfg.Backend.URL, a.cfg.Backend.Key)
		if err != nil {
			logger.Printf("backend url unusable for change feed: %v", err)
			return nil
		}
		return bus.NewPGFeed(dsn, logger)
	}
	return bus.NewFileFeed(a.cfg.DatabasePath(), 0, logger)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
