package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/tickwire/internal/errors"
)

// objectPutter is the part of *s3.Client used to publish reports.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// newObjectPutter builds the S3 client for s3:// report paths.
var newObjectPutter = func() (objectPutter, error) {
	return newS3Client()
}

// newS3Client configures S3 from the standard AWS environment variables.
// TICKWIRE_S3_ENDPOINT points it at an S3-compatible store instead.
func newS3Client() (*s3.Client, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION is not set")
	}

	opts := s3.Options{Region: region}
	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		creds := aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "tickwire environment",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	if endpoint := os.Getenv("TICKWIRE_S3_ENDPOINT"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts), nil
}

// parseS3URL splits s3://bucket/key.
func parseS3URL(raw string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(raw, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", false
	}
	return bucket, key, true
}

// writeBenchJSON writes report to path. "-" selects stdout and an
// s3://bucket/key path uploads the report.
func writeBenchJSON(ctx context.Context, path string, stdout io.Writer, report benchReport) error {
	if path == "" {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	switch {
	case path == "-":
		_, err := stdout.Write(buf.Bytes())
		return err
	case strings.HasPrefix(path, "s3://"):
		return uploadReport(ctx, path, buf.Bytes(), report)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func uploadReport(ctx context.Context, path string, data []byte, report benchReport) error {
	bucket, key, ok := parseS3URL(path)
	if !ok {
		return errors.New(errors.CodeReportUpload).
			WithDetail(fmt.Sprintf("%q is not an s3://bucket/key path.", path))
	}

	client, err := newObjectPutter()
	if err != nil {
		return errors.New(errors.CodeReportUpload).Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"profile":   report.Workload.Profile,
			"transport": report.Workload.Transport,
			"run-time":  report.Run.Timestamp,
		},
	})
	if err != nil {
		return errors.New(errors.CodeReportUpload).Wrap(fmt.Errorf("s3 upload failed: %w", err))
	}
	return nil
}
