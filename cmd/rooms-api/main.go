package main

import (
	"context"
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaerest "github.com/SundaeSwap-finance/sundae-rooms/sundae-rest"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/publish"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"
)

var opts struct {
	DomainName string
	Stage      string
}

var service = sundaecli.NewService("rooms-api")

func main() {
	app := sundaecli.App(
		service,
		action,
		append(
			append(
				sundaecli.CommonFlags,
				sundaecli.PortFlag(3002),
				sundaecli.StringFlag("ws-domain", "Domain name of the WebSocket API deployment", &opts.DomainName),
				sundaecli.StringFlag("ws-stage", "Stage of the WebSocket API deployment", &opts.Stage, "dev"),
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

	api := &API{
		Server:     server,
		Publisher:  publish.Build(sundaecli.CommonOpts.Env, opts.DomainName, opts.Stage),
		DomainName: opts.DomainName,
		Stage:      opts.Stage,
		Health:     bootstrap.Healthcheck,
	}
	routes := sundaerest.Middlewares(logger, chi.NewRouter())
	api.Mount(routes)
	return sundaerest.Webserver(logger, routes)
}
