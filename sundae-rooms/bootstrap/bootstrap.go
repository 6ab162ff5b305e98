// Package bootstrap builds a rooms Server from command line flags. It is
// shared by every binary under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	sundaeddb "github.com/SundaeSwap-finance/sundae-rooms/sundae-ddb"
	sundaemongo "github.com/SundaeSwap-finance/sundae-rooms/sundae-mongo"
	sundaeredis "github.com/SundaeSwap-finance/sundae-rooms/sundae-redis"
	sundaerooms "github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/mongostore"
	"github.com/SundaeSwap-finance/sundae-rooms/sundae-rooms/redisstore"
	sundaesecret "github.com/SundaeSwap-finance/sundae-rooms/sundae-secret"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

var RoomsOpts struct {
	Store          string
	Concurrency    int
	ConnTTL        time.Duration
	RegistrySecret string
}

var StoreFlag = sundaecli.StringFlag("store", "Registry backend: memory, dynamodb, mongo or redis", &RoomsOpts.Store, StoreDynamoDB)
var ConcurrencyFlag = sundaecli.IntFlag("concurrency", "Maximum concurrent pushes per emit", &RoomsOpts.Concurrency, 50)
var ConnTTLFlag = sundaecli.DurationFlag("conn-ttl", "How long a connection may live before it is expired or reaped", &RoomsOpts.ConnTTL, 2*time.Hour)
var RegistrySecretFlag = sundaecli.StringFlag("registry-secret", "Secrets Manager secret holding mongodb_url and redis_url", &RoomsOpts.RegistrySecret)

var RoomsFlags = append(
	[]cli.Flag{
		StoreFlag,
		ConcurrencyFlag,
		ConnTTLFlag,
		RegistrySecretFlag,
	},
	sundaeddb.DDBFlags...,
)

// Closer releases whatever BuildStore connected to.
type Closer func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Healthcheck pings the backend connected by the last BuildStore call.
var Healthcheck = noop

func registry(logger zerolog.Logger) (sundaesecret.Registry, error) {
	if RoomsOpts.RegistrySecret == "" {
		return sundaesecret.Registry{}, nil
	}
	logger.Info().Str("secret", RoomsOpts.RegistrySecret).Msg("loading registry secret")
	return sundaesecret.LoadRegistry(session.Must(session.NewSession(aws.NewConfig())), RoomsOpts.RegistrySecret)
}

// BuildStore connects to the backend chosen by --store.
func BuildStore(ctx context.Context, logger zerolog.Logger) (sundaerooms.Store, Closer, error) {
	ctx = logger.WithContext(ctx)
	logger = logger.With().Str("store", RoomsOpts.Store).Logger()

	switch RoomsOpts.Store {
	case StoreMemory:
		Healthcheck = noop
		return sundaerooms.NewMemoryStore(), noop, nil

	case StoreDynamoDB:
		api, err := sundaeddb.DynamoDBAPI(sundaeddb.Session())
		if err != nil {
			return nil, nil, err
		}
		store := sundaerooms.NewDynamoStore(api, sundaecli.CommonOpts.Env, RoomsOpts.ConnTTL)
		Healthcheck = noop
		logger.Info().Msg("using dynamodb registry")
		return store, noop, nil

	case StoreMongo:
		cfg, err := sundaemongo.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		r, err := registry(logger)
		if err != nil {
			return nil, nil, err
		}
		if r.MongoURL != "" {
			cfg.ConnectionURL = r.MongoURL
		}

		client, err := sundaemongo.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.New(client.Database(cfg.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		Healthcheck = sundaemongo.Healthcheck(client)
		logger.Info().Str("database", cfg.Database).Msg("using mongo registry")
		return store, client.Disconnect, nil

	case StoreRedis:
		cfg, err := sundaeredis.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		r, err := registry(logger)
		if err != nil {
			return nil, nil, err
		}
		if r.RedisURL != "" {
			cfg.ConnectionURL = r.RedisURL
		}

		client, err := sundaeredis.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		Healthcheck = sundaeredis.Healthcheck(client)
		logger.Info().Str("prefix", cfg.KeyPrefix).Msg("using redis registry")
		return redisstore.New(client, cfg.KeyPrefix), func(context.Context) error { return client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", RoomsOpts.Store)
	}
}

// BuildServer builds the store and a Server pushing through transport.
// CloudWatch metrics are reported unless running in console mode.
func BuildServer(ctx context.Context, service sundaecli.Service, logger zerolog.Logger, transport sundaerooms.Transport) (*sundaerooms.Server, Closer, error) {
	store, closer, err := BuildStore(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []sundaerooms.Option{
		sundaerooms.WithLogger(logger),
		sundaerooms.WithConcurrency(RoomsOpts.Concurrency),
	}
	if !sundaecli.CommonOpts.Console {
		sess := session.Must(session.NewSession(aws.NewConfig()))
		opts = append(opts, sundaerooms.WithMetrics(sundaecli.NewMetrics(service, cloudwatch.New(sess))))
	}

	return sundaerooms.New(store, transport, opts...), closer, nil
}
