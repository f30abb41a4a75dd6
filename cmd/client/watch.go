package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/client"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		interval time.Duration
		draw     bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and print what happens in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.wireApp(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			defer app.session.Disconnect()

			if err := app.join(ctx); err != nil {
				return err
			}
			go func() { _ = app.session.Run(ctx) }()
			if draw {
				go drawDemo(ctx, client.NewBoard(app.session, app.clock, app.cfg.Board.TrailLifetime, app.cfg.Board.HitRadius))
			}

			return watch(ctx, cmd, app.session, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "summary interval")
	cmd.Flags().BoolVar(&draw, "draw", false, "draw a demo trail")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, session *client.Session, interval time.Duration) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-session.Events():
			switch ev.Kind {
			case client.EventState:
				fmt.Fprintf(out, "connection: %s\n", ev.State)
			case client.EventMessage:
				describe(out, ev.Message)
			}
		case <-ticker.C:
			marks := 0
			for _, trail := range session.Peers().Snapshot() {
				marks += len(trail.Marks)
			}
			fmt.Fprintf(out, "mode=%s peers=%d marks=%d cursors=%d strokes=%d\n",
				session.Mode(),
				session.Peers().Len(),
				marks,
				session.Cursors().Count(),
				session.Strokes().Len(),
			)
		}
	}
}

func describe(out io.Writer, msg domain.Inbound) {
	switch m := msg.(type) {
	case *domain.Joined:
		role := "member"
		if m.IsHousemaster {
			role = "housemaster"
		}
		fmt.Fprintf(out, "joined as %s, mode %s\n", role, m.Mode)
	case *domain.Rooms:
		for _, r := range m.Rooms {
			fmt.Fprintf(out, "room %s: %d users\n", r.Name, r.Users)
		}
	case *domain.TafelSync:
		fmt.Fprintf(out, "board synced: %d strokes\n", len(m.Strokes))
	case *domain.ModeChange:
		fmt.Fprintf(out, "mode changed to %s by %s\n", m.Mode, m.UserName)
	case *domain.RoomLifetimeChange:
		fmt.Fprintf(out, "trail lifetime set to %dms by %s\n", m.Lifetime, m.UserName)
	case *domain.ServerError:
		fmt.Fprintf(out, "relay error: %s\n", m.Message)
	}
}

// drawDemo traces a Lissajous figure, one stroke per loop.
func drawDemo(ctx context.Context, board *client.Board) {
	ticker := time.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if step%120 == 0 {
			board.Trail().Cleanup()
			_ = board.BeginStroke()
		}
		t := float64(step) / 120 * 2 * math.Pi
		_, _ = board.Draw(400+300*math.Sin(3*t), 300+200*math.Sin(2*t), 1)
		step++
		if step%120 == 0 {
			_ = board.EndStroke()
		}
	}
}
