package sundaereport

import (
	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/urfave/cli/v2"
)

// ReportOpts selects where a report snapshot is written and read back from.
var ReportOpts struct {
	Bucket string
	Name   string

	OutFile   string
	GetLatest bool
}

var BucketFlag = sundaecli.StringFlag("bucket", "S3 bucket holding report snapshots", &ReportOpts.Bucket)
var NameFlag = sundaecli.StringFlag("report-name", "Key segment the snapshots are filed under", &ReportOpts.Name, "registry")
var OutFileFlag = sundaecli.StringFlag("out-file", "Local file for the snapshot in dry mode, or for --get-latest", &ReportOpts.OutFile)
var GetLatestFlag = sundaecli.BoolFlag("get-latest", "Read back the newest snapshot instead of taking one", &ReportOpts.GetLatest)

var ReportFlags = []cli.Flag{
	BucketFlag,
	NameFlag,
	OutFileFlag,
	GetLatestFlag,
}
