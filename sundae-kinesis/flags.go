package sundaekinesis

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	consumer "github.com/harlow/kinesis-consumer"
	"github.com/urfave/cli/v2"
)

var KinesisOpts struct {
	StreamName string
	Replay     bool
	ReplayFrom cli.Timestamp
}

var StreamNameFlag = sundaecli.StringFlag("stream-name", "The stream name to read records from", &KinesisOpts.StreamName)
var ReplayFlag = sundaecli.BoolFlag("replay", "Whether to replay from the beginning, or start from the next message", &KinesisOpts.Replay)

var ReplayFromFlag = cli.TimestampFlag{
	Name:        "replay-from",
	Usage:       "Timestamp to replay from",
	Layout:      "2006-01-02 15:04:05",
	EnvVars:     []string{"REPLAY_FROM"},
	Destination: &KinesisOpts.ReplayFrom,
}

var KinesisFlags = []cli.Flag{
	StreamNameFlag,
	ReplayFlag,
	&ReplayFromFlag,
}

// Options translates the replay flags into consumer options. Without --replay
// the consumer starts at the tip of the stream.
func Options() []consumer.Option {
	if !KinesisOpts.Replay {
		return []consumer.Option{consumer.WithShardIteratorType("LATEST")}
	}
	if ts := KinesisOpts.ReplayFrom.Value(); ts != nil {
		return []consumer.Option{
			consumer.WithShardIteratorType("AT_TIMESTAMP"),
			consumer.WithTimestamp(*ts),
		}
	}
	return []consumer.Option{consumer.WithShardIteratorType("TRIM_HORIZON")}
}

// StreamName returns the --stream-name flag, or fallback when unset.
func StreamName(fallback string) string {
	if KinesisOpts.StreamName != "" {
		return KinesisOpts.StreamName
	}
	return fallback
}
