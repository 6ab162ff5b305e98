package main

import (
	"context"
	"log"
	"os"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaecron "github.com/SundaeSwap-finance/sundae-rooms/sundae-cron"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("rooms-reaper")

func main() {
	app := sundaecli.App(
		service,
		action,
		append(
			sundaecli.CommonFlags,
			bootstrap.RoomsFlags...,
		)...,
	)
	err := app.Run(os.Args)
	if err != nil {
		log.Fatalln(err)
	}
}

func action(c *cli.Context) error {
	logger := sundaecli.Logger(service)

	server, closer, err := bootstrap.BuildServer(c.Context, service, logger, sundaerooms.NewGatewayTransport())
	if err != nil {
		return err
	}
	defer closer(context.Background())

	handler := sundaecron.NewHandler(service, logger, func(ctx context.Context) error {
		before := time.Now().Add(-bootstrap.RoomsOpts.ConnTTL)
		n, err := server.Reap(ctx, before, sundaecli.CommonOpts.Dry)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().
			Time("before", before).
			Int("reaped", n).
			Bool("dry", sundaecli.CommonOpts.Dry).
			Msg("reaped stale connections")
		return nil
	})
	return handler.Start(c.Context)
}
