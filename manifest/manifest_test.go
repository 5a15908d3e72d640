package manifest

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockS3Client struct {
	data  map[string][]byte
	etags map[string]string
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if params.Key == nil {
		return nil, fmt.Errorf("key is nil")
	}
	data, ok := m.data[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: &mockReadCloser{data: data}}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if params.Key == nil {
		return nil, fmt.Errorf("key is nil")
	}
	if m.etags != nil {
		if etag, ok := m.etags[*params.Key]; ok {
			return &s3.HeadObjectOutput{ETag: aws.String(etag)}, nil
		}
	}
	data, ok := m.data[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.HeadObjectOutput{ETag: aws.String(fmt.Sprintf("%x", data))}, nil
}

type mockReadCloser struct {
	data   []byte
	offset int
}

func (m *mockReadCloser) Read(p []byte) (n int, err error) {
	if m.offset >= len(m.data) {
		return 0, io.EOF
	}
	n = copy(p, m.data[m.offset:])
	m.offset += n
	if m.offset >= len(m.data) {
		err = io.EOF
	}
	return n, err
}

func (m *mockReadCloser) Close() error { return nil }

func TestManifestLoaderErrorCases(t *testing.T) {
	mockClient := &mockS3Client{data: map[string][]byte{}}
	loader := NewS3Loader(mockClient)

	_, err := loader.Load(context.Background(), "s3://test-bucket/test-key")
	if err == nil {
		t.Error("expected error for missing files, got nil")
	}
}

func TestLoaderReadsSummaryAndFiles(t *testing.T) {
	summaryKey := "loads/run-42/manifest-summary.json"
	filesKey := "loads/run-42/manifest-files.json"

	summaryJSON := `{
		"version": "2020-06-30",
		"tableArn": "arn:aws:dynamodb:us-east-1:123456789012:table/widgets",
		"s3Bucket": "test-bucket",
		"s3Prefix": "loads/run-42",
		"manifestFilesS3Key": "` + filesKey + `",
		"itemCount": 3
	}`
	filesJSON := `{"dataFileS3Key":"loads/run-42/data-0001.json.gz","etag":"aaa","md5Checksum":"","itemCount":1}
{"dataFileS3Key":"loads/run-42/data-0002.json.gz","etag":"bbb","md5Checksum":"","itemCount":1}
{"dataFileS3Key":"loads/run-42/data-0003.json.gz","etag":"ccc","md5Checksum":"","itemCount":1}
`

	mockClient := &mockS3Client{
		data: map[string][]byte{
			summaryKey: []byte(summaryJSON),
			filesKey:   []byte(filesJSON),
		},
	}

	loader := NewS3Loader(mockClient)
	summary, err := loader.Load(context.Background(), "s3://test-bucket/"+summaryKey)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	if summary.ItemCount != 3 {
		t.Errorf("expected 3 items, got %d", summary.ItemCount)
	}
	if len(summary.DataFiles) != 3 {
		t.Errorf("expected 3 data files, got %d", len(summary.DataFiles))
	}
	if summary.S3Bucket != "test-bucket" {
		t.Errorf("expected s3Bucket test-bucket, got %s", summary.S3Bucket)
	}
}

func TestInvalidS3URI(t *testing.T) {
	loader := NewS3Loader(&mockS3Client{})

	invalidURIs := []string{
		"not-an-s3-uri",
		"s3://",
		"s3://bucket",
		"file:///path/to/file",
	}

	for _, uri := range invalidURIs {
		_, err := loader.Load(context.Background(), uri)
		if err == nil {
			t.Errorf("expected error for invalid URI %s, got nil", uri)
		}
	}
}
