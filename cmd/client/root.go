package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/client"
	"github.com/immxrtalbeast/trailboard/internal/config"
	"github.com/immxrtalbeast/trailboard/internal/service"
	"github.com/immxrtalbeast/trailboard/lib/logger"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	server     string
	house      string
	room       string
	name       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "trailboard",
		Short:         "Trailboard client: watch, export and discover shared boards",
		Long:          "trailboard connects to a relay, joins a room and follows the fading trails, cursors and blackboard strokes of everyone in it.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")
	flags.StringVar(&opts.server, "server", "", "relay websocket url")
	flags.StringVar(&opts.house, "house", "", "house code")
	flags.StringVar(&opts.room, "room", "", "room name")
	flags.StringVar(&opts.name, "name", "", "display name")

	rootCmd.AddCommand(
		newWatchCmd(opts),
		newExportCmd(opts),
		newDiscoverCmd(opts),
	)

	return rootCmd
}

// load reads the config and applies command line overrides.
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.server != "" {
		cfg.Client.ServerURL = o.server
	}
	if o.house != "" {
		cfg.Client.HouseCode = o.house
	}
	if o.room != "" {
		cfg.Client.RoomName = o.room
	}
	if o.name != "" {
		cfg.Client.DisplayName = o.name
	}
	return cfg, nil
}

type app struct {
	cfg     *config.Config
	log     *slog.Logger
	clock   clockwork.Clock
	session *client.Session
}

func (o *options) wireApp(cmd *cobra.Command) (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	log := logger.Setup(cfg.Env, cmd.ErrOrStderr())
	clock := clockwork.NewRealClock()

	session := client.NewSession(
		client.Config{
			ServerURL:       cfg.Client.ServerURL,
			ReconnectDelay:  cfg.Client.ReconnectDelay,
			PeerInactivity:  cfg.Board.PeerInactivity,
			CleanupInterval: cfg.Board.CleanupInterval,
		},
		log,
		clock,
		client.NewWebsocketDialer(5*time.Second),
		client.Stores{
			Peers:   service.NewPeerRegistry(log, clock, cfg.Board.TrailLifetime),
			Cursors: service.NewCursorTracker(clock, cfg.Board.CursorStaleness),
		},
	)

	return &app{cfg: cfg, log: log, clock: clock, session: session}, nil
}

// join enters the configured room and starts connecting. A failed first
// dial is retried by the session.
func (a *app) join(ctx context.Context) error {
	if err := a.session.Join(a.cfg.Client.HouseCode, a.cfg.Client.RoomName, a.cfg.Client.DisplayName, ""); err != nil {
		return err
	}
	if err := a.session.Connect(ctx); err != nil {
		a.log.Warn("relay not reachable yet, retrying", slog.Duration("delay", a.cfg.Client.ReconnectDelay))
	}
	return nil
}
