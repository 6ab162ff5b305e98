package main

import (
	"context"
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaekinesis "github.com/SundaeSwap-finance/sundae-rooms/sundae-kinesis"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/publish"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("rooms-dispatcher")

func main() {
	app := sundaecli.App(
		service,
		action,
		append(
			append(sundaecli.CommonFlags, sundaekinesis.KinesisFlags...),
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

	dispatcher := &sundaerooms.Dispatcher{Server: server, Logger: logger}
	handler := sundaekinesis.NewHandler(service, logger, dispatcher.HandleRecord)
	return handler.Start(c.Context, publish.StreamName(sundaecli.CommonOpts.Env))
}
