// Package sundaereport runs a scheduled job that writes a JSON report to S3,
// keyed by service, report name and time.
package sundaereport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"
)

// maxLookbackDays bounds how far GetRawAsOf searches for an earlier report.
const maxLookbackDays = 5

type GenerateCallback func(ctx context.Context) (interface{}, error)

type Handler struct {
	service sundaecli.Service
	logger  zerolog.Logger
	s3      s3iface.S3API

	reportName string
	stdout     io.Writer
	now        func() time.Time

	generate GenerateCallback
}

func ReportKey(serviceName, reportName string, timestamp time.Time) string {
	return fmt.Sprintf("%v/%v/%v/%v/%v", serviceName, reportName, timestamp.Format("2006-01-02"), timestamp.Format("15"), timestamp.Format("2006-01-02-15:04:05.json"))
}

func NewHandler(
	service sundaecli.Service,
	logger zerolog.Logger,
	s3api s3iface.S3API,
	reportName string,
	generate GenerateCallback,
) *Handler {
	return &Handler{
		service:    service,
		logger:     logger,
		s3:         s3api,
		reportName: reportName,
		stdout:     os.Stdout,
		now:        func() time.Time { return time.Now().UTC() },
		generate:   generate,
	}
}

// Generate builds the report and stores it. In dry mode it is printed, or
// written to --out-file, instead.
func (h *Handler) Generate(ctx context.Context, _ json.RawMessage) error {
	ctx = h.logger.WithContext(ctx)
	h.logger.Info().Str("report", h.reportName).Msg("generating report")

	report, err := h.generate(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to generate report")
		return err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	now := h.now()
	switch {
	case sundaecli.CommonOpts.Dry && ReportOpts.OutFile == "":
		return writeIndented(h.stdout, data)

	case sundaecli.CommonOpts.Dry:
		h.logger.Info().Str("filename", ReportOpts.OutFile).Int("size", len(data)).Msg("dry run, saving report locally")
		return writeFile(ReportOpts.OutFile, data)

	default:
		key := ReportKey(h.service.Name, h.reportName, now)
		h.logger.Info().Str("bucket", ReportOpts.Bucket).Str("key", key).Int("size", len(data)).Msg("saving report to s3")
		_, err := h.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(ReportOpts.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to save report to s3://%v/%v: %w", ReportOpts.Bucket, key, err)
		}
		return nil
	}
}

// GetRawAsOf returns the newest report stored on the day of timestamp,
// stepping back a day at a time when a day has none.
func GetRawAsOf(ctx context.Context, s3api s3iface.S3API, bucket, serviceName, reportName string, timestamp time.Time) ([]byte, string, error) {
	for days := 0; days <= maxLookbackDays; days++ {
		prefix := fmt.Sprintf("%v/%v/%v", serviceName, reportName, timestamp.Format("2006-01-02"))
		out, err := s3api.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(bucket),
			MaxKeys: aws.Int64(1000),
			Prefix:  aws.String(prefix),
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to list reports in %v: %w", prefix, err)
		}

		if len(out.Contents) == 0 {
			yesterday := timestamp.AddDate(0, 0, -1)
			timestamp = time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 23, 59, 59, 0, time.UTC)
			continue
		}

		sort.Slice(out.Contents, func(i, j int) bool {
			return aws.StringValue(out.Contents[i].Key) > aws.StringValue(out.Contents[j].Key)
		})
		key := aws.StringValue(out.Contents[0].Key)

		obj, err := s3api.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to get report %v: %w", key, err)
		}
		defer obj.Body.Close()

		data, err := io.ReadAll(obj.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read report %v: %w", key, err)
		}
		return data, key, nil
	}
	return nil, "", fmt.Errorf("no %v report in the %v days before %v", reportName, maxLookbackDays, timestamp)
}

func GetLatest(ctx context.Context, s3api s3iface.S3API, bucket, serviceName, reportName string, obj any) (string, error) {
	data, key, err := GetRawAsOf(ctx, s3api, bucket, serviceName, reportName, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(data, obj); err != nil {
		return "", fmt.Errorf("failed to unmarshal latest report: %w", err)
	}
	return key, nil
}

func (h *Handler) Start(ctx context.Context) error {
	if ReportOpts.GetLatest {
		data, _, err := GetRawAsOf(ctx, h.s3, ReportOpts.Bucket, h.service.Name, h.reportName, h.now())
		if err != nil {
			return err
		}
		if ReportOpts.OutFile == "" {
			return writeIndented(h.stdout, data)
		}
		return writeFile(ReportOpts.OutFile, data)
	}

	switch {
	case sundaecli.CommonOpts.Console:
		return h.Generate(ctx, nil)

	default:
		lambda.Start(h.Generate)
	}
	return nil
}

func writeIndented(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func writeFile(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
