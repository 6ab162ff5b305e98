package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/localws"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("rooms-ws")

func main() {
	app := sundaecli.App(
		service,
		action,
		append(
			append(sundaecli.CommonFlags, sundaecli.PortFlag(3001)),
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

	if sundaecli.CommonOpts.Console {
		return serveLocal(c.Context, logger)
	}

	server, closer, err := bootstrap.BuildServer(c.Context, service, logger, sundaerooms.NewGatewayTransport())
	if err != nil {
		return err
	}
	defer closer(context.Background())

	handler := &sundaerooms.Handler{Server: server, Logger: logger}
	lambda.Start(handler.HandleEvent)
	return nil
}

// serveLocal accepts WebSockets directly, standing in for API Gateway.
func serveLocal(ctx context.Context, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%v", sundaecli.CommonOpts.Port)
	gateway := localws.New(fmt.Sprintf("localhost%v", addr), "local", logger)

	server, closer, err := bootstrap.BuildServer(ctx, service, logger, gateway)
	if err != nil {
		return err
	}
	defer closer(context.Background())
	defer gateway.Close()

	handler := &sundaerooms.Handler{Server: server, Logger: logger}
	gateway.Route = handler.HandleEvent

	logger.Info().Str("addr", addr).Msg("accepting websocket connections")
	return http.ListenAndServe(addr, gateway)
}
