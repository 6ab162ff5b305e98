package sundaeddb

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/urfave/cli/v2"
)

// DDBOpts configures how the registry reaches DynamoDB.
var DDBOpts struct {
	DAXCluster  string
	DAXRegion   string
	Endpoint    string
	StreamTable string
}

var DAXClusterFlag = sundaecli.StringFlag("dax-cluster", "DAX cluster endpoint to read the registry through", &DDBOpts.DAXCluster)
var DAXRegionFlag = sundaecli.StringFlag("dax-region", "Region of the DAX cluster", &DDBOpts.DAXRegion, "us-east-2")
var EndpointFlag = sundaecli.StringFlag("ddb-endpoint", "DynamoDB endpoint override, e.g. http://localhost:8000 for DynamoDB Local", &DDBOpts.Endpoint)
var StreamTableFlag = sundaecli.StringFlag("stream-table", "Table whose stream is consumed; defaults to the connections table of --env", &DDBOpts.StreamTable)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	DAXRegionFlag,
	EndpointFlag,
	StreamTableFlag,
}

// StreamTable returns --stream-table, or fallback when it is unset.
func StreamTable(fallback string) string {
	if DDBOpts.StreamTable != "" {
		return DDBOpts.StreamTable
	}
	return fallback
}
