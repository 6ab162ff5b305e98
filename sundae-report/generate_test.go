package sundaereport

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-rooms/sundae-cli"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

type mockS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, input *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.StringValue(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2WithContext(_ aws.Context, input *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range m.objects {
		if strings.HasPrefix(key, aws.StringValue(input.Prefix)) {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (m *mockS3) GetObjectWithContext(_ aws.Context, input *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(m.objects[aws.StringValue(input.Key)]))}, nil
}

func newHandler(api *mockS3, at time.Time) *Handler {
	h := NewHandler(sundaecli.NewService("rooms-report"), zerolog.Nop(), api, "registry", func(ctx context.Context) (interface{}, error) {
		return map[string]int{"connections": 3}, nil
	})
	h.now = func() time.Time { return at }
	return h
}

func TestReportKey(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 5, 6, 0, time.UTC)
	assert.Equal(t, "svc/registry/2024-03-01/14/2024-03-01-14:05:06.json", ReportKey("svc", "registry", ts))
}

func TestGenerate(t *testing.T) {
	var (
		ctx       = context.Background()
		api       = &mockS3{objects: map[string][]byte{}}
		yesterday = time.Now().UTC().AddDate(0, 0, -1)
	)

	assert.Nil(t, newHandler(api, yesterday).Generate(ctx, nil))
	assert.Len(t, api.objects, 1)

	var report map[string]int
	key, err := GetLatest(ctx, api, "", "rooms-report", "registry", &report)
	assert.Nil(t, err)
	assert.Equal(t, ReportKey("rooms-report", "registry", yesterday), key)
	assert.Equal(t, 3, report["connections"])
}

func TestGenerateDry(t *testing.T) {
	sundaecli.CommonOpts.Dry = true
	defer func() { sundaecli.CommonOpts.Dry = false }()

	var (
		ctx     = context.Background()
		api     = &mockS3{objects: map[string][]byte{}}
		handler = newHandler(api, time.Now().UTC())
		stdout  bytes.Buffer
	)
	handler.stdout = &stdout

	assert.Nil(t, handler.Generate(ctx, nil))
	assert.Empty(t, api.objects)
	assert.JSONEq(t, `{"connections":3}`, stdout.String())

	ReportOpts.OutFile = filepath.Join(t.TempDir(), "out", "report.json")
	defer func() { ReportOpts.OutFile = "" }()

	assert.Nil(t, handler.Generate(ctx, nil))
	data, err := os.ReadFile(ReportOpts.OutFile)
	assert.Nil(t, err)
	assert.JSONEq(t, `{"connections":3}`, string(data))
}

func TestGetRawAsOfGivesUp(t *testing.T) {
	api := &mockS3{objects: map[string][]byte{}}
	_, _, err := GetRawAsOf(context.Background(), api, "", "svc", "registry", time.Now())
	assert.NotNil(t, err)
}
