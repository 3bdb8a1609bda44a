package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xyself/blivedm/internal/config"
	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/handler"
	"github.com/xyself/blivedm/pkg/resolve"
	"github.com/xyself/blivedm/pkg/supervisor"
)

func openLiveCmd(g *globalFlags) *cobra.Command {
	var (
		flags archiveFlags
		code  string
	)

	cmd := &cobra.Command{
		Use:   "openlive",
		Short: "Receive a streamer's chat through an open platform app",
		Long: `Start an open platform app session for a streamer and log its
notifications until interrupted. The app session is kept alive with
heartbeats and ended on exit.

Credentials come from BLIVEDM_OPEN_ACCESS_KEY_ID,
BLIVEDM_OPEN_ACCESS_KEY_SECRET and BLIVEDM_OPEN_APP_ID. The streamer's
identity code comes from --code or BLIVEDM_OPEN_CODE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g, func(cfg *config.Config) {
				flags.apply(cfg)
				if code != "" {
					cfg.OpenLive.Code = code
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.cfg.ValidateOpenLive(); err != nil {
				return err
			}
			return runOpenLive(cmd.Context(), a)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&code, "code", "", "Streamer identity code")
	return cmd
}

func runOpenLive(ctx context.Context, a *app) error {
	oc := a.cfg.OpenLive
	game := resolve.NewAppSession(resolve.NewOpenLive(oc.AccessKeyID, oc.AccessKeySecret, oc.AppID, oc.Code,
		resolve.WithLogger(a.logger),
		resolve.WithIdentity(a.cfg.Buvid, a.cfg.UserAgent),
	))
	a.closers = append(a.closers, game.Close)

	h := handler.NewLogging(handler.WithLogger(a.logger)).Handler()
	opts := a.clientOptions(game, h)
	sup := supervisor.New(func() *client.Client { return client.New(0, opts...) },
		supervisor.WithLogger(a.logger),
		supervisor.WithMetrics(a.metrics),
	)
	info("starting open platform session for app %d", oc.AppID)
	return runSessions(ctx, a, []watched{{room: 0, sess: sup, run: sup.Run}})
}
