//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/mymmsc/reactor/internal/app"
	"github.com/mymmsc/reactor/internal/config"
)

func NewCLI(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "reactor",
		Short:        "Single-threaded I/O reactor over epoll, kqueue and select",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "file path of the config file")
	root.PersistentFlags().StringP("backend", "b", "", "poller backend (epoll, kqueue, select)")

	root.AddCommand(TimerCmd(), EchoCmd(), ChatCmd(), UDPEchoCmd(), NetcatCmd())
	return root
}

// loadConfig reads --config and applies the flags a command overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.Loop.Backend = b
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("interval") {
		cfg.Timer.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("count") {
		cfg.Timer.Count, _ = cmd.Flags().GetInt("count")
	}
	return cfg, cfg.Validate()
}

func loadApp(cmd *cobra.Command) (*app.ReactorApp, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.NewApp(cfg)
}

// runApp runs a until it stops or the process is interrupted, then closes it.
func runApp(cmd *cobra.Command, a *app.ReactorApp) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM, unix.SIGHUP)
	defer stop()
	defer a.Close()
	return a.Run(ctx)
}
