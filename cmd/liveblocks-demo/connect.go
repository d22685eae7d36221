package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	liveblocks "github.com/M-Faheem-Khan/liveblocks"
	"github.com/M-Faheem-Khan/liveblocks/room"
)

type connectConfig struct {
	roomID           string
	publicAPIKey     string
	authEndpoint     string
	liveblocksServer string
	logLevel         string
}

// newConnectCmd drives one room interactively: every line on stdin is a
// command (set/delete/broadcast/undo/redo/presence/quit), and every
// status change, storage update, or broadcast the room observes is
// printed as it arrives.
func newConnectCmd() *cobra.Command {
	cfg := &connectConfig{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a room and drive it from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.roomID, "room", envOrDefault("LIVEBLOCKS_ROOM", "demo-room"), "room id to enter")
	cmd.Flags().StringVar(&cfg.publicAPIKey, "public-api-key", envOrDefault("LIVEBLOCKS_PUBLIC_KEY", ""), "public API key (mutually exclusive with --auth-endpoint)")
	cmd.Flags().StringVar(&cfg.authEndpoint, "auth-endpoint", envOrDefault("LIVEBLOCKS_AUTH_ENDPOINT", ""), "auth endpoint URL minting session tokens")
	cmd.Flags().StringVar(&cfg.liveblocksServer, "server", envOrDefault("LIVEBLOCKS_SERVER", ""), "override the WebSocket server base URL")
	cmd.Flags().StringVar(&cfg.logLevel, "log-level", envOrDefault("LIVEBLOCKS_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")

	return cmd
}

func runConnect(ctx context.Context, cfg *connectConfig) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.publicAPIKey == "" && cfg.authEndpoint == "" {
		cfg.authEndpoint = "http://localhost:8787/authorize"
		logger.Info("no credentials supplied, defaulting to local auth-server", zap.String("auth_endpoint", cfg.authEndpoint))
	}

	client, err := liveblocks.NewClient(liveblocks.Options{
		PublicAPIKey:     cfg.publicAPIKey,
		AuthEndpoint:     cfg.authEndpoint,
		LiveblocksServer: cfg.liveblocksServer,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("invalid client options: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r := client.Enter(cfg.roomID)
	defer func() {
		if err := client.Leave(cfg.roomID); err != nil {
			logger.Warn("leave failed", zap.Error(err))
		}
	}()

	r.OnStatusChange(func(s room.State) {
		logger.Info("status changed", zap.Stringer("status", s))
	})
	r.OnBroadcast(func(actor int, event any) {
		fmt.Printf("broadcast from actor %d: %v\n", actor, event)
	})
	r.SubscribeStorage(func(updates []liveblocks.StorageUpdate) {
		for _, u := range updates {
			fmt.Printf("storage update: %s %s\n", u.Kind, u.NodeID)
		}
	})

	r.Connect()
	fmt.Printf("entering room %q — commands: set <key> <value>, delete <key>, broadcast <text>, undo, redo, presence <key> <value>, quit\n", cfg.roomID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if handleCommand(r, line) {
				return nil
			}
		}
	}
}

func handleCommand(r *room.Room, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true
	case "set":
		if len(fields) < 3 {
			fmt.Println("usage: set <key> <value>")
			return false
		}
		if _, err := r.Root().Set(fields[1], strings.Join(fields[2:], " ")); err != nil {
			fmt.Println("error:", err)
		}
	case "delete":
		if len(fields) < 2 {
			fmt.Println("usage: delete <key>")
			return false
		}
		if err := r.Root().Delete(fields[1]); err != nil {
			fmt.Println("error:", err)
		}
	case "broadcast":
		r.Broadcast(strings.Join(fields[1:], " "))
	case "undo":
		if err := r.Undo(); err != nil {
			fmt.Println("error:", err)
		}
	case "redo":
		if err := r.Redo(); err != nil {
			fmt.Println("error:", err)
		}
	case "presence":
		if len(fields) < 3 {
			fmt.Println("usage: presence <key> <value>")
			return false
		}
		r.UpdatePresence(map[string]any{fields[1]: strings.Join(fields[2:], " ")}, false)
	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
