// Package config loads and validates the parameters for a coordinator run:
// a parallel-scan of a source table feeding a batch.Writer pipeline into a
// destination table.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the parameters for one coordinator run.
type Config struct {
	SourceTable     string        // table the parallel scan reads from
	DestTable       string        // table the batch writer writes to
	Region          string        // AWS region
	TotalSegments   int32         // parallel-scan segment count
	BatchSize       int           // DynamoDB batch size (<=25)
	CheckpointURI   string        // s3:// or file:// URI for resumable state
	ReportS3URI     string        // optional s3:// URI for the final report
	DryRun          bool          // if true, scan but skip writes
	ShutdownTimeout time.Duration // graceful shutdown timeout

	checkpointScheme string // scheme parsed from CheckpointURI
}

// CheckpointScheme returns the scheme ("s3" or "file") parsed from
// CheckpointURI by Validate.
func (c *Config) CheckpointScheme() string {
	return c.checkpointScheme
}

// Validate checks that every required field is present and within range,
// and parses CheckpointURI's scheme for the coordinator's store selection.
func (c *Config) Validate() error {
	if c.SourceTable == "" {
		return fmt.Errorf("source table is required")
	}
	if c.DestTable == "" {
		return fmt.Errorf("dest table is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}

	if c.TotalSegments < 1 {
		return fmt.Errorf("total segments must be at least 1")
	}

	if c.BatchSize < 1 || c.BatchSize > 25 {
		return fmt.Errorf("batch size must be between 1 and 25")
	}

	if c.CheckpointURI == "" {
		return fmt.Errorf("checkpoint URI is required")
	}
	u, err := url.Parse(c.CheckpointURI)
	if err != nil {
		return fmt.Errorf("invalid checkpoint URI: %w", err)
	}
	if u.Scheme != "s3" && u.Scheme != "file" {
		return fmt.Errorf("checkpoint URI must use s3 or file scheme")
	}
	c.checkpointScheme = u.Scheme

	if c.ReportS3URI != "" && !strings.HasPrefix(c.ReportS3URI, "s3://") {
		return fmt.Errorf("report S3 URI must start with s3://")
	}

	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second")
	}

	return nil
}
