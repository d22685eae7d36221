// Command liveblocks-demo is a small CLI exercising this module: connect
// drives a room from a terminal, auth-server mints short-lived tokens for
// a "connect" instance to authenticate against, grounded on the teacher's
// cmd/agent/main.go and cmd/server/main.go cobra + envOrDefault shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "liveblocks-demo",
		Short: "liveblocks-demo — exercise the liveblocks room client from a terminal",
	}
	root.AddCommand(newConnectCmd())
	root.AddCommand(newAuthServerCmd())
	return root
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
