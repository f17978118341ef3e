// Command rabbithole runs the chat proxy in front of a Responses API
// backend.
//
// Usage:
//
//	rabbithole serve [--config path] [--port n]
//	rabbithole check [--config path]
//
// Configuration is read from YAML and the environment; see pkg/config.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/rabbithole/pkg/config"
	"github.com/rhuss/rabbithole/pkg/debug"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rabbithole",
		Short:         "Chat proxy that speaks to a Responses API backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to the YAML config file")
	root.AddCommand(newServeCmd(), newCheckCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}

			debug.Init(cfg.Debug.Categories, cfg.Debug.Level)
			cfg.LogWarnings()

			if err := serve(cfg); err != nil {
				slog.Error("server failed", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides server.port and PORT)")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print warnings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range cfg.Warnings() {
				fmt.Fprintln(out, "warning:", w)
			}
			fmt.Fprintf(out, "config ok: upstream=%s auth=%s request_log=%s port=%d\n",
				cfg.Upstream.BaseURL, cfg.Auth.Type, cfg.RequestLog.Type, cfg.Server.Port)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		return nil, err
	}
	return cfg, nil
}
