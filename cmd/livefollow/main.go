package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"livefollow/internal/logging"
)

func main() {
	// A missing .env is the normal case; variables come from the shell then.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("LIVEFOLLOW_ENV"))

	root := &cobra.Command{
		Use:           "livefollow",
		Short:         "Device-local live-follow session engine",
		Long:          "livefollow synchronizes a leader's document and scroll position to followers on the same device through a shared store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a JSON config file (overrides LIVEFOLLOW_CONFIG_FILE)")

	root.AddCommand(newLeadCommand(logger))
	root.AddCommand(newFollowCommand(logger))
	root.AddCommand(newPanelCommand(logger))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
