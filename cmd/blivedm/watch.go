package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xyself/blivedm/internal/config"
	"github.com/xyself/blivedm/internal/errors"
	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/handler"
	"github.com/xyself/blivedm/pkg/resolve"
	"github.com/xyself/blivedm/pkg/supervisor"
)

// archiveFlags are the archive and metrics overrides shared by the
// session commands.
type archiveFlags struct {
	sqlite      string
	s3Bucket    string
	s3Prefix    string
	metricsAddr string
}

func (f *archiveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sqlite, "sqlite", "", "Archive raw notifications to this SQLite database")
	cmd.Flags().StringVar(&f.s3Bucket, "s3-bucket", "", "Archive raw notifications to this S3 bucket")
	cmd.Flags().StringVar(&f.s3Prefix, "s3-prefix", "", "Key prefix for S3 archive objects")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
}

func (f *archiveFlags) apply(cfg *config.Config) {
	if f.sqlite != "" {
		cfg.Archive.SQLite = f.sqlite
	}
	if f.s3Bucket != "" {
		cfg.Archive.S3Bucket = f.s3Bucket
	}
	if f.s3Prefix != "" {
		cfg.Archive.S3Prefix = f.s3Prefix
	}
	if f.metricsAddr != "" {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

func watchCmd(g *globalFlags) *cobra.Command {
	var flags archiveFlags

	cmd := &cobra.Command{
		Use:   "watch [room-id...]",
		Short: "Connect to live rooms and log their chat",
		Long: `Connect to each room and log its notifications until interrupted.

Rooms come from the arguments, or from "rooms" in blivedm.json and
BLIVEDM_ROOMS when none are given. Short room ids are accepted. A
dropped session is reconnected with exponential backoff; a rejected
auth stops the command.

Examples:
  blivedm watch 21396545
  blivedm watch 1 6 --sqlite events.db --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := parseRooms(args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), g, func(cfg *config.Config) {
				flags.apply(cfg)
				if len(rooms) > 0 {
					cfg.Rooms = rooms
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			return runWatch(cmd.Context(), a)
		},
	}

	flags.register(cmd)
	return cmd
}

func parseRooms(args []string) ([]int64, error) {
	rooms := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Newf(errors.CategoryCLI, "invalid room id %q", arg).
				WithSuggestion("Room ids are positive integers, as in live.bilibili.com/<room-id>")
		}
		rooms = append(rooms, id)
	}
	return rooms, nil
}

func runWatch(ctx context.Context, a *app) error {
	if len(a.cfg.Rooms) == 0 {
		return errors.Newf(errors.CategoryCLI, "no rooms to watch").
			WithSuggestion("Pass room ids as arguments or set BLIVEDM_ROOMS")
	}

	resolver := resolve.NewWeb(
		resolve.WithLogger(a.logger),
		resolve.WithSessData(a.cfg.SessData),
		resolve.WithIdentity(a.cfg.Buvid, a.cfg.UserAgent),
	)
	// One handler so duplicates are suppressed across reconnects.
	h := handler.NewLogging(handler.WithLogger(a.logger)).Handler()

	rooms := make([]watched, 0, len(a.cfg.Rooms))
	for _, room := range a.cfg.Rooms {
		opts := a.clientOptions(resolver, h)
		sup := supervisor.New(func() *client.Client { return client.New(room, opts...) },
			supervisor.WithLogger(a.logger.With("room", room)),
			supervisor.WithMetrics(a.metrics),
		)
		rooms = append(rooms, watched{room: room, sess: sup, run: sup.Run})
	}
	info("watching %d room(s)", len(rooms))
	return runSessions(ctx, a, rooms)
}

// runSessions runs every supervisor and, when configured, the metrics
// server. The first failure stops everything; the server also stops once
// every supervisor has returned.
func runSessions(ctx context.Context, a *app, rooms []watched) error {
	g, gctx := errgroup.WithContext(ctx)
	sessions, sctx := errgroup.WithContext(gctx)
	for _, w := range rooms {
		sessions.Go(func() error { return w.run(sctx) })
	}

	srvCtx, stopServer := context.WithCancel(gctx)
	g.Go(func() error {
		defer stopServer()
		return sessions.Wait()
	})
	if addr := a.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return serveHTTP(srvCtx, addr, newRouter(a.registry, rooms), a.logger)
		})
	}
	return g.Wait()
}
