package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"bundlesync"
	"bundlesync/cmd/bundlesyncd/ui"
	"bundlesync/session"

	"github.com/spf13/cobra"
)

func resolveCmd(a *app) *cobra.Command {
	var (
		isolation string
		noColor   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve URL...",
		Short: "Show which factory a worker would use for each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor(noColor)
			rows, err := a.resolve(cmd.Context(), isolation, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"REQUEST", "SOURCE", "TARGET"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&isolation, "isolation", "", "Isolation key to resolve under")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

// resolve builds a session from config and looks every URL up on a worker
// replica, the same path a running worker takes.
func (a *app) resolve(ctx context.Context, isolation string, rawURLs []string) (_ [][]string, err error) {
	reqs := make([]bundlesync.Request, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		reqs = append(reqs, bundlesync.RequestForURL(u, isolation))
	}

	initial, err := a.provider().Bundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("build bundle: %w", err)
	}
	sess := session.New(a.cfg.Session, initial)
	defer func() { err = errors.Join(err, sess.Close(context.Background())) }()

	w, err := sess.SpawnWorker(ctx, "resolve")
	if err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}
	defer func() { err = errors.Join(err, w.Close(context.Background())) }()

	rows := make([][]string, 0, len(reqs))
	for _, req := range reqs {
		m, err := w.Match(ctx, req)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []string{req.String(), source(m.Source), target(m.Handle)})
		if m.Handle != nil {
			_ = m.Handle.Close()
		}
	}
	return rows, nil
}

func source(s bundlesync.Source) string {
	if s == bundlesync.SourceNone {
		return ui.Muted(s.String())
	}
	return s.String()
}

func target(h bundlesync.FactoryHandle) string {
	if h == nil {
		return ui.Muted("-")
	}
	return ui.Accent(h.Target())
}
