package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/client"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/internal/export"
	"github.com/spf13/cobra"
)

var errSyncTimeout = errors.New("timed out waiting for the board")

func newExportCmd(opts *options) *cobra.Command {
	var (
		format  string
		out     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save the blackboard of a room as JSON or PDF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "pdf" {
				return fmt.Errorf("unsupported format %q, want json or pdf", format)
			}

			app, err := opts.wireApp(cmd)
			if err != nil {
				return err
			}
			defer app.session.Disconnect()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := app.join(ctx); err != nil {
				return err
			}
			if err := waitForSync(ctx, app.session); err != nil {
				return err
			}

			strokes := app.session.Strokes().ExportAll()
			if out == "" || out == "-" {
				return writeBoard(cmd.OutOrStdout(), format, strokes, app.cfg.Client.HouseCode, app.cfg.Client.RoomName)
			}
			return saveBoard(out, format, strokes, app.cfg.Client.HouseCode, app.cfg.Client.RoomName)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the relay")
	return cmd
}

func waitForSync(ctx context.Context, session *client.Session) error {
	for {
		select {
		case <-ctx.Done():
			return errSyncTimeout
		case ev := <-session.Events():
			if ev.Kind != client.EventMessage {
				continue
			}
			if _, ok := ev.Message.(*domain.TafelSync); ok {
				return nil
			}
		}
	}
}

// saveBoard writes the board to path. A failed close is reported, since it
// can mean the file is incomplete.
func saveBoard(path, format string, strokes []domain.Stroke, house, room string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeBoard(f, format, strokes, house, room); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeBoard(w io.Writer, format string, strokes []domain.Stroke, house, room string) error {
	if format == "pdf" {
		opts := export.DefaultPDFOptions()
		opts.Title = domain.RoomKey(house, room)
		return export.WritePDF(w, strokes, opts)
	}
	return export.WriteJSON(w, strokes, time.Now())
}
