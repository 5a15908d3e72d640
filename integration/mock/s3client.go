package mock

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is a mock implementation of awsx.S3Client for testing, and of the
// s3streamer.S3Client interface so it doubles as a streaming source.
type S3Client struct {
	// Maps bucket/key to file content
	Files map[string][]byte
	// Maps bucket/key to metadata
	Metadata map[string]map[string]string
	// Maps bucket/key to ETags
	ETags map[string]*string
}

// NewS3Client creates a new mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{
		Files:    make(map[string][]byte),
		Metadata: make(map[string]map[string]string),
		ETags:    make(map[string]*string),
	}
}

// AddFile registers content at bucket/key, deriving its ETag as the quoted
// hex MD5 the way S3 does for non-multipart uploads.
func (m *S3Client) AddFile(bucket, key string, content []byte) {
	bucketKey := fmt.Sprintf("%s/%s", bucket, key)
	m.Files[bucketKey] = content
	m.Metadata[bucketKey] = map[string]string{"Content-Type": "application/json"}
	sum := md5.Sum(content)
	m.ETags[bucketKey] = aws.String(fmt.Sprintf("\"%x\"", sum))
}

// MD5Base64 returns the base64-encoded MD5 of content, matching the form
// manifest.FileMeta.MD5Base64 expects for checksum verification.
func MD5Base64(content []byte) string {
	sum := md5.Sum(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)

	content, ok := m.Files[bucketKey]
	if !ok {
		// Try finding by suffix match if exact match fails
		for k, v := range m.Files {
			if strings.HasSuffix(k, *params.Key) {
				content = v
				bucketKey = k
				ok = true
				break
			}
		}

		if !ok {
			// For debugging
			fmt.Printf("Mock S3: Key not found: %s\n", bucketKey)
			fmt.Printf("Available keys: %v\n", m.listKeys())

			return nil, &types.NoSuchKey{
				Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", *params.Key)),
			}
		}
	}

	metadata := m.Metadata[bucketKey]
	if metadata == nil {
		metadata = make(map[string]string)
	}

	contentLength := int64(len(content))

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		Metadata:      metadata,
		ETag:          m.ETags[bucketKey],
		ContentLength: &contentLength,
	}, nil
}

// PutObject implements the S3Client interface for writing objects
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	bucketKey := fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)

	// Read the entire body
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	m.Files[bucketKey] = data

	// Set up metadata
	if params.Metadata != nil {
		m.Metadata[bucketKey] = params.Metadata
	} else {
		m.Metadata[bucketKey] = make(map[string]string)
	}

	// Set ETag
	etag := fmt.Sprintf("\"%x\"", len(data))
	m.ETags[bucketKey] = aws.String(etag)

	return &s3.PutObjectOutput{
		ETag: aws.String(etag),
	}, nil
}

// HeadObject implements the S3Client interface for retrieving object metadata
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	bucketKey := ""

	// If a bucket is provided, create the bucket/key format
	if params.Bucket != nil {
		bucketKey = fmt.Sprintf("%s/%s", *params.Bucket, *params.Key)
	}

	// Check if we have the file with this exact key
	content, ok := m.Files[bucketKey]

	// If not found by exact match, try to find by suffix
	if !ok {
		for k, v := range m.Files {
			if strings.HasSuffix(k, *params.Key) {
				content = v
				bucketKey = k
				ok = true
				break
			}
		}
	}

	// If still not found, look for the key in our available files
	if !ok {
		fmt.Printf("Mock S3 HeadObject: Key not found: %s\n", bucketKey)
		fmt.Printf("Available keys: %v\n", m.listKeys())
		return nil, &types.NoSuchKey{
			Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", *params.Key)),
		}
	}

	contentLength := int64(len(content))

	// Ensure we have an ETag for this object
	if _, ok := m.ETags[bucketKey]; !ok {
		// Generate an ETag based on content length (simplified for testing)
		etag := fmt.Sprintf("\"%x\"", len(content))
		m.ETags[bucketKey] = aws.String(etag)
	}

	return &s3.HeadObjectOutput{
		ETag:          m.ETags[bucketKey],
		Metadata:      m.Metadata[bucketKey],
		ContentLength: &contentLength,
	}, nil
}

// listKeys returns a list of all keys in the mock S3 bucket (for debugging)
func (m *S3Client) listKeys() []string {
	var keys []string
	for k := range m.Files {
		keys = append(keys, k)
	}
	return keys
}

// CreateMultipartUpload is a stub implementation for the s3streamer.S3Client interface
func (m *S3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, fmt.Errorf("CreateMultipartUpload not implemented in mock")
}

// UploadPart is a stub implementation for the s3streamer.S3Client interface
func (m *S3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, fmt.Errorf("UploadPart not implemented in mock")
}

// CompleteMultipartUpload is a stub implementation for the s3streamer.S3Client interface
func (m *S3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, fmt.Errorf("CompleteMultipartUpload not implemented in mock")
}

// AbortMultipartUpload is a stub implementation for the s3streamer.S3Client interface
func (m *S3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, fmt.Errorf("AbortMultipartUpload not implemented in mock")
}
