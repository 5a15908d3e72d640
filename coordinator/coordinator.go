// Package coordinator wires a paginate.ParallelScanPaginator scanning a
// source table into a shared batch.Writer pipeline writing to a
// destination table: a concrete, end-to-end composition of the paginator
// family and the batch engine, with the signal-handling, progress
// reporting, checkpointing, and report-upload shape of a long-running
// operational job.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/gurre/ddb-dam/awsx"
	"github.com/gurre/ddb-dam/batch"
	"github.com/gurre/ddb-dam/checkpoint"
	"github.com/gurre/ddb-dam/config"
	"github.com/gurre/ddb-dam/itemimage"
	"github.com/gurre/ddb-dam/metrics"
	"github.com/gurre/ddb-dam/paginate"
)

// ReportUploader uploads a finished run's report.
type ReportUploader interface {
	UploadReport(ctx context.Context, uri string, report metrics.Report) error
}

// Coordinator runs one parallel-scan-to-batch-writer pass over a table
// pair, checkpointing scan progress along the way.
type Coordinator struct {
	cfg            *config.Config
	client         awsx.DynamoDBClient
	store          checkpoint.Store
	metrics        *metrics.Metrics
	reportUploader ReportUploader

	itemsScanned int64
}

// NewCoordinator builds a Coordinator from its dependencies.
func NewCoordinator(cfg *config.Config, client awsx.DynamoDBClient, store checkpoint.Store, reportUploader ReportUploader) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		client:         client,
		store:          store,
		metrics:        metrics.NewMetrics(),
		reportUploader: reportUploader,
	}
}

const checkpointInterval = 5 * time.Second

// Run loads any prior checkpoint, launches the parallel scan and batch
// writer, and drives them to exhaustion (or until ctx is cancelled),
// checkpointing ScanState periodically so the run can resume after a
// crash.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, os.Kill)
	defer cancel()

	state, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	scanState := state.ScanState
	if len(scanState) == 0 {
		scanState = make(paginate.ParallelScanState, c.cfg.TotalSegments)
	}

	scanner, err := paginate.NewParallelScanPaginator(c.client, c.cfg.SourceTable, c.cfg.TotalSegments, scanState)
	if err != nil {
		return fmt.Errorf("failed to start parallel scan: %w", err)
	}
	defer scanner.Close()

	var writer *batch.Writer
	var ops chan itemimage.Operation
	var results <-chan batch.Result
	if !c.cfg.DryRun {
		ops = make(chan itemimage.Operation)
		writer = batch.NewWriter(c.client, c.cfg.DestTable, c.cfg.BatchSize)
		results = writer.Run(ctx, ops)
		defer writer.Close()
	}

	checkpointTicker := time.NewTicker(checkpointInterval)
	defer checkpointTicker.Stop()
	progressTicker := time.NewTicker(5 * time.Second)
	defer progressTicker.Stop()

	resultsDone := make(chan struct{})
	if results != nil {
		go func() {
			defer close(resultsDone)
			for r := range results {
				if r.Err != nil {
					c.metrics.RecordError()
					continue
				}
				c.metrics.RecordItemYielded()
			}
		}()
	} else {
		close(resultsDone)
	}

	scanErr := c.drainScan(ctx, scanner, ops, checkpointTicker, progressTicker)

	if ops != nil {
		close(ops)
		<-resultsDone
	}
	if scanErr != nil {
		return scanErr
	}

	if err := c.saveCheckpoint(ctx, scanner); err != nil {
		return err
	}

	report := c.metrics.GenerateReport()
	fmt.Println(report)

	if c.cfg.ReportS3URI != "" && c.reportUploader != nil {
		if err := c.reportUploader.UploadReport(ctx, c.cfg.ReportS3URI, report); err != nil {
			return fmt.Errorf("failed to upload report: %w", err)
		}
		fmt.Printf("Report uploaded to %s\n", c.cfg.ReportS3URI)
	}

	return nil
}

func (c *Coordinator) drainScan(ctx context.Context, scanner *paginate.ParallelScanPaginator, ops chan<- itemimage.Operation, checkpointTicker, progressTicker *time.Ticker) error {
	for {
		select {
		case <-checkpointTicker.C:
			if err := c.saveCheckpoint(ctx, scanner); err != nil {
				return err
			}
		case <-progressTicker.C:
			fmt.Printf("Progress: %d items scanned\n", atomic.LoadInt64(&c.itemsScanned))
		default:
		}

		page, hasMore, err := scanner.Next(ctx)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		for _, item := range page.Items {
			atomic.AddInt64(&c.itemsScanned, 1)
			if ops == nil {
				continue
			}
			select {
			case ops <- itemimage.Operation{Type: itemimage.OpPut, NewImage: item}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !hasMore {
			return nil
		}
	}
}

func (c *Coordinator) saveCheckpoint(ctx context.Context, scanner *paginate.ParallelScanPaginator) error {
	scanState, err := scanner.ScanState()
	if err != nil {
		return fmt.Errorf("failed to snapshot scan state: %w", err)
	}
	return c.store.Save(ctx, checkpoint.State{
		RunID:     c.cfg.SourceTable + "->" + c.cfg.DestTable,
		ScanState: scanState,
	})
}
