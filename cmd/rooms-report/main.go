package main

import (
	"context"
	"log"
	"os"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaereport "github.com/SundaeSwap-finance/sundae-rooms/sundae-report"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/urfave/cli/v2"
)

var opts struct {
	Channels cli.StringSlice
}

var service = sundaecli.NewService("rooms-report")

func main() {
	app := sundaecli.App(
		service,
		action,
		append(
			append(
				append(sundaecli.CommonFlags, sundaereport.ReportFlags...),
				&cli.StringSliceFlag{
					Name:        "channel",
					Usage:       "Channel to count members of; may be repeated",
					EnvVars:     []string{"CHANNELS"},
					Destination: &opts.Channels,
				},
			),
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

	sess := session.Must(session.NewSession(aws.NewConfig()))
	handler := sundaereport.NewHandler(service, logger, s3.New(sess), sundaereport.ReportOpts.Name, func(ctx context.Context) (interface{}, error) {
		return server.Stats(ctx, time.Now().Add(-bootstrap.RoomsOpts.ConnTTL), opts.Channels.Value()...)
	})
	return handler.Start(c.Context)
}
