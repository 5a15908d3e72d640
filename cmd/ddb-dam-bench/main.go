// Package main implements the ddb-dam-bench CLI: a harness that drives the
// batch engine and paginator family against a live (or local) DynamoDB
// endpoint. It has two subcommands: "copy" runs a parallel-scan-to-
// batch-writer pass between two tables, and "load" replays an S3-resident
// bulk-load manifest through the batch engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/s3streamer"

	"github.com/gurre/ddb-dam/awsx"
	"github.com/gurre/ddb-dam/batch"
	"github.com/gurre/ddb-dam/checkpoint"
	"github.com/gurre/ddb-dam/config"
	"github.com/gurre/ddb-dam/coordinator"
	"github.com/gurre/ddb-dam/itemimage"
	"github.com/gurre/ddb-dam/manifest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ddb-dam-bench <copy|load> [flags]")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "copy":
		err = runCopy(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	default:
		err = fmt.Errorf("unknown subcommand %q (want copy or load)", os.Args[1])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// preflightPermissions runs an IAM SimulatePrincipalPolicy check against
// actions, returning an error naming the first denied action. Skipped
// entirely when principalARN is empty, since simulation requires a
// principal to evaluate against.
func preflightPermissions(ctx context.Context, client awsx.IAMClient, principalARN string, actions []string) error {
	if principalARN == "" {
		return nil
	}
	out, err := client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: &principalARN,
		ActionNames:     actions,
	})
	if err != nil {
		return fmt.Errorf("failed to simulate principal policy: %w", err)
	}
	for _, result := range out.EvaluationResults {
		if result.EvalDecision != types.PolicyEvaluationDecisionTypeAllowed {
			return fmt.Errorf("principal %s is not allowed to perform %s", principalARN, *result.EvalActionName)
		}
	}
	return nil
}

func runCopy(args []string) error {
	fs := flag.NewFlagSet("copy", flag.ExitOnError)

	sourceTable := fs.String("source", "", "source DynamoDB table name")
	destTable := fs.String("dest", "", "destination DynamoDB table name")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	segments := fs.Int("segments", 10, "parallel scan segment count")
	batchSize := fs.Int("batch", 25, "batch size for DynamoDB writes (max 25)")
	checkpointURI := fs.String("checkpoint", "", "s3:// or file:// URI for resumable scan state")
	reportS3URI := fs.String("report", "", "S3 URI for the final report")
	dryRun := fs.Bool("dry-run", false, "scan but skip writes")
	shutdownTimeout := fs.Duration("shutdown-timeout", 5*time.Minute, "graceful shutdown timeout")
	principalARN := fs.String("principal-arn", "", "IAM principal ARN to pre-flight check before running (skipped if empty)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := &config.Config{
		SourceTable:     *sourceTable,
		DestTable:       *destTable,
		Region:          *region,
		TotalSegments:   int32(*segments),
		BatchSize:       *batchSize,
		CheckpointURI:   *checkpointURI,
		ReportS3URI:     *reportS3URI,
		DryRun:          *dryRun,
		ShutdownTimeout: *shutdownTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	dynamoClient := awsx.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
	s3Client := awsx.NewS3Client(s3.NewFromConfig(awsCfg))

	if err := preflightPermissions(ctx, awsx.NewIAMClient(iam.NewFromConfig(awsCfg)), *principalARN,
		[]string{"dynamodb:Scan", "dynamodb:BatchWriteItem", "dynamodb:UpdateItem"}); err != nil {
		return fmt.Errorf("pre-flight permission check failed: %w", err)
	}

	checkpointStore, err := openCheckpointStore(cfg.CheckpointScheme(), cfg.CheckpointURI, s3Client)
	if err != nil {
		return err
	}

	coord := coordinator.NewCoordinator(cfg, dynamoClient, checkpointStore, awsx.NewS3ReportUploader(s3Client))

	fmt.Printf("Starting copy of table %s to %s\n", cfg.SourceTable, cfg.DestTable)
	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("copy operation failed: %w", err)
	}
	fmt.Println("Copy operation completed successfully")
	return nil
}

func openCheckpointStore(scheme, uri string, s3Client awsx.S3Client) (checkpoint.Store, error) {
	switch scheme {
	case "s3":
		return checkpoint.NewS3Store(s3Client, uri)
	case "file":
		return checkpoint.NewFileStore(uri)
	default:
		return checkpoint.NewMemoryStore(), nil
	}
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)

	manifestURI := fs.String("manifest", "", "S3 URI of the bulk-load manifest (s3://bucket/prefix)")
	tableName := fs.String("table", "", "destination DynamoDB table name")
	region := fs.String("region", "", "AWS region (defaults to AWS_REGION env)")
	batchSize := fs.Int("batch", 25, "batch size for DynamoDB writes (max 25)")
	verifyChecksums := fs.Bool("verify-checksums", true, "verify each data file's MD5 against its S3 ETag before loading")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *manifestURI == "" {
		return fmt.Errorf("-manifest is required")
	}
	if *tableName == "" {
		return fmt.Errorf("-table is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(*region))
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := awsx.NewS3Client(rawS3Client)
	dynamoClient := awsx.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))

	loader := manifest.NewS3Loader(s3Client)
	summary, err := loader.Load(ctx, *manifestURI)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	if *verifyChecksums {
		if err := loader.VerifyChecksums(ctx, summary); err != nil {
			return fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	streamer := s3streamer.NewS3Streamer(rawS3Client)
	decoder := itemimage.NewJSONDecoder()

	ops := make(chan itemimage.Operation)
	writer := batch.NewWriter(dynamoClient, *tableName, *batchSize)
	results := writer.Run(ctx, ops)
	defer writer.Close()

	written, failed := 0, 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if r.Err != nil {
				failed++
				continue
			}
			written++
		}
	}()

	var streamErr error
streamFiles:
	for _, file := range summary.DataFiles {
		streamErr = streamer.Stream(ctx, summary.S3Bucket, file.Key, 0, func(line []byte, byteOffset int64) error {
			op, err := decoder.Decode(line)
			if errors.Is(err, itemimage.ErrCorrupt) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case ops <- op:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if streamErr != nil {
			break streamFiles
		}
	}

	close(ops)
	<-done

	if streamErr != nil {
		return fmt.Errorf("failed to stream load source: %w", streamErr)
	}

	fmt.Printf("Load complete: %d items written, %d failed\n", written, failed)
	return nil
}
