package main

import (
	"context"
	"log"
	"os"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-rooms/sundae-ddb"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/bootstrap"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/connectiondao"
	"github.com/urfave/cli/v2"
)

var service = sundaecli.NewService("rooms-sweeper")

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

// action removes the memberships of connection rows DynamoDB expired through
// TTL. It listens to the connections table stream.
func action(c *cli.Context) error {
	logger := sundaecli.Logger(service)

	store, closer, err := bootstrap.BuildStore(c.Context, logger)
	if err != nil {
		return err
	}
	defer closer(context.Background())

	sweeper := &sundaerooms.Sweeper{
		Store:  store,
		Logger: logger,
		Dry:    sundaecli.CommonOpts.Dry,
	}
	table := sundaeddb.StreamTable(connectiondao.TableName(sundaecli.CommonOpts.Env))
	handler := sundaeddb.NewRemoveHandler(service, logger, table, sweeper.HandleRemove)
	return handler.Start(c.Context)
}
