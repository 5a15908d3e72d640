// Package manifest loads and verifies the summary and file listing for a
// bulk load source: an S3 prefix containing a manifest-summary.json and
// manifest-files.json pair (the shape DynamoDB export-to-S3 and many bulk
// loaders use), consumed by the bench CLI's load subcommand to stream a
// backfill into batch.Engine.
package manifest

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/gurre/ddb-dam/awsx"
)

var s3URIPattern = regexp.MustCompile(`^s3://([^/]+)/(.+)$`)

// Summary is the metadata for one load source, read from
// manifest-summary.json and manifest-files.json.
//
// Example:
//
//	loader := manifest.NewS3Loader(client)
//	summary, err := loader.Load(ctx, "s3://my-bucket/loads/run-42/manifest-summary.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("source contains %d items\n", summary.ItemCount)
type Summary struct {
	Version            string `json:"version"`
	SourceARN          string `json:"sourceArn"`
	StartTime          string `json:"startTime"`
	EndTime            string `json:"endTime"`
	TableARN           string `json:"tableArn"`
	TableID            string `json:"tableId"`
	S3Bucket           string `json:"s3Bucket"`
	S3Prefix           string `json:"s3Prefix"`
	S3SseAlgorithm     string `json:"s3SseAlgorithm"`
	S3SseKmsKeyID      string `json:"s3SseKmsKeyId"`
	ManifestFilesS3Key string `json:"manifestFilesS3Key"`
	BilledSizeBytes    int64  `json:"billedSizeBytes"`
	ItemCount          int64  `json:"itemCount"`
	OutputFormat       string `json:"outputFormat"`

	// DataFiles is parsed separately from manifest-files.json, one JSON
	// object per line.
	DataFiles []FileMeta
}

// FileMeta is the metadata for a single data file within a load source.
type FileMeta struct {
	Key       string `json:"dataFileS3Key"`
	ETag      string `json:"etag"`
	MD5Base64 string `json:"md5Checksum"`
	ItemCount int64  `json:"itemCount"`
}

// Loader loads and verifies manifest files.
type Loader interface {
	Load(ctx context.Context, manifestS3URI string) (Summary, error)
	VerifyChecksums(ctx context.Context, summary Summary) error
}

// S3Loader implements Loader using AWS S3.
type S3Loader struct {
	client awsx.S3Client
}

// NewS3Loader wraps an S3 client for manifest access.
func NewS3Loader(client awsx.S3Client) *S3Loader {
	return &S3Loader{client: client}
}

// Load reads manifest-summary.json at manifestS3URI, then reads the
// newline-delimited manifest-files.json it points to.
func (l *S3Loader) Load(ctx context.Context, manifestS3URI string) (Summary, error) {
	var summary Summary

	bucket, err := extractBucketFromS3URI(manifestS3URI)
	if err != nil {
		return Summary{}, err
	}
	s3Key, err := extractKeyFromS3URI(manifestS3URI)
	if err != nil {
		return Summary{}, err
	}

	resp, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &s3Key,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get manifest summary: %w", err)
	}
	if resp.Body == nil {
		return Summary{}, fmt.Errorf("manifest summary response body is nil")
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return Summary{}, fmt.Errorf("failed to decode manifest summary: %w", err)
	}

	filesResp, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &summary.ManifestFilesS3Key,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get manifest files: %w", err)
	}
	if filesResp.Body == nil {
		return Summary{}, fmt.Errorf("manifest files response body is nil")
	}
	defer func() { _ = filesResp.Body.Close() }()

	decoder := json.NewDecoder(filesResp.Body)
	summary.DataFiles = make([]FileMeta, 0, 64)
	for {
		var file FileMeta
		if err := decoder.Decode(&file); err == io.EOF {
			break
		} else if err != nil {
			return Summary{}, fmt.Errorf("failed to decode manifest file entry: %w", err)
		}
		summary.DataFiles = append(summary.DataFiles, file)
	}

	return summary, nil
}

// VerifyChecksums HEADs every data file and compares its ETag against the
// manifest's MD5, assuming single-part uploads.
func (l *S3Loader) VerifyChecksums(ctx context.Context, summary Summary) error {
	if summary.S3Bucket == "" {
		return fmt.Errorf("no S3 bucket specified in summary")
	}
	bucket := summary.S3Bucket

	for _, file := range summary.DataFiles {
		key := file.Key
		resp, err := l.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &bucket,
			Key:    &key,
		})
		if err != nil {
			return fmt.Errorf("failed to get metadata for data file %s: %w", file.Key, err)
		}
		if resp.ETag == nil {
			return fmt.Errorf("ETag is nil for data file %s", file.Key)
		}

		etag := strings.Trim(*resp.ETag, "\"")

		md5Bytes, err := base64.StdEncoding.DecodeString(file.MD5Base64)
		if err != nil {
			return fmt.Errorf("failed to decode MD5 Base64 for data file %s: %w", file.Key, err)
		}
		expectedMD5Hex := fmt.Sprintf("%x", md5Bytes)

		if etag != expectedMD5Hex {
			quotedExpectedMD5 := fmt.Sprintf("\"%s\"", expectedMD5Hex)
			if *resp.ETag != quotedExpectedMD5 {
				return fmt.Errorf("checksum mismatch for data file %s: expected %s, got %s",
					file.Key, expectedMD5Hex, etag)
			}
		}
	}

	return nil
}

func extractBucketFromS3URI(uri string) (string, error) {
	matches := s3URIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return "", fmt.Errorf("invalid S3 URI format: %s (must be s3://bucket/key)", uri)
	}
	return matches[1], nil
}

func extractKeyFromS3URI(uri string) (string, error) {
	matches := s3URIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return "", fmt.Errorf("invalid S3 URI format: %s (must be s3://bucket/key)", uri)
	}
	return matches[2], nil
}
