package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lab1702/ground-control/game"
	"github.com/lab1702/ground-control/internal/config"
	"github.com/lab1702/ground-control/internal/logging"
	"github.com/lab1702/ground-control/server"
)

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

// runBot is the command's body; tests replace it to inspect the resolved
// configuration.
var runBot = run

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string
	var noAnnounce bool

	rootCmd := &cobra.Command{
		Use:   "ground-control [flags] URL...",
		Short: "Ground control: AI wingmen on request for arcade dogfight servers",
		Long: "ground-control connects to one or more game servers (ws:// or wss:// URLs), " +
			"watches chat for " + server.CmdHelp + ", " + server.CmdWings + " and " + server.CmdCallOff +
			", and sends AI wingmen after the players who ask for them.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				v.Set("servers", args)
			}
			if noAnnounce {
				v.Set("announce", false)
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			log := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
			log.Info().Str("loglevel", log.GetLevel().String()).Strs("servers", cfg.Servers).Msg("Ground control starting")
			return runBot(cmd.Context(), cfg, log)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (json, toml or yaml)")
	flags.String("name", "GROUND-CTRL", "in-game name of the ground control bot")
	flags.Int("max-wingmen", game.MaxWingmen, "maximum wingmen per requesting player")
	flags.BoolVar(&noAnnounce, "no-announce", false, "do not greet players joining the game")
	flags.Duration("tick", game.TickInterval, "wingman control interval")
	flags.String("status-addr", "", "address for the HTTP status endpoint (disabled when empty)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")

	for key, flag := range map[string]string{
		"name":        "name",
		"max_wingmen": "max-wingmen",
		"tick":        "tick",
		"status_addr": "status-addr",
		"log_level":   "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), server.Version)
			return err
		},
	}
}

// run wires the registry, scheduler and optional status endpoint together
// and blocks until ctx is cancelled or every server has been given up on.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	registry := server.NewRegistry(cfg.MaxWingmen)

	sc := server.DefaultSchedulerConfig()
	sc.Session.Name = cfg.Name
	sc.Session.Flag = cfg.Flag
	sc.Session.Announce = cfg.Announce
	sc.Session.Tick = cfg.Tick
	sc.Session.HandshakeTimeout = cfg.HandshakeTimeout
	sc.Session.ReplyInterval = cfg.ReplyInterval
	sc.Session.TargetStaleAfter = cfg.TargetStaleAfter
	sc.ReconnectBackoff = cfg.ReconnectBackoff
	sc.MaxBackoff = cfg.MaxBackoff
	sc.MaxReconnect = cfg.MaxReconnect

	sched := server.NewScheduler(registry, sc, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx, cfg.Servers)
	})
	if cfg.StatusAddr != "" {
		g.Go(func() error {
			return server.ServeStatus(gctx, cfg.StatusAddr, sched.StatusHandler(), log)
		})
	}

	err := g.Wait()
	if err != nil {
		log.Error().Err(err).Msg("Ground control stopped")
		return err
	}
	log.Info().Msg("Ground control shut down")
	return nil
}
