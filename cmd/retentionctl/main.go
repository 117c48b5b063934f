// Command retentionctl is a terminal client for the retention agent API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/retention-agent/internal/client"
)

var (
	cfgFile string
	cfg     *Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMark(), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "retentionctl",
		Short:         "Talk to the hotel retention agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.retentionctl.yaml)")
	rootCmd.PersistentFlags().String("server", defaultServer, "retention API base URL")
	rootCmd.PersistentFlags().String("thread", "", "thread id")
	rootCmd.PersistentFlags().Duration("timeout", defaultTimeout, "request timeout")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newChatCmd(),
		newSendCmd(),
		newDecisionCmd("approve", "Approve the pending action"),
		newDecisionCmd("reject", "Reject the pending action"),
		newThreadCmd(),
		newHealthCmd(),
	)
	return rootCmd
}

func apiClient() *client.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return client.New(cfg.Server, timeout)
}

func requireThread() (string, error) {
	if cfg.Thread == "" {
		return "", fmt.Errorf("no thread id: pass --thread or set RETENTIONCTL_THREAD")
	}
	return cfg.Thread, nil
}
