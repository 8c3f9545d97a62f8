// Package process runs the collection pipeline: fetch each configured
// source, extract and normalize its entries, and write the resulting records
// through the dedup store.
package process

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/codeanster/washington-air-quality/internal/extract"
	"github.com/codeanster/washington-air-quality/internal/models"
)

// Fetcher retrieves the raw entries of one feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.RawEntry, error)
}

// RecordStore persists records and source polling state.
type RecordStore interface {
	UpsertIfAbsent(ctx context.Context, rec *models.AirQualityRecord) (bool, error)
	MarkSourcePolled(ctx context.Context, source *models.Source, fetchErr error) error
}

// Summary reports the outcome of one collection run.
type Summary struct {
	Sources    int
	Entries    int64
	Inserted   int64
	Duplicates int64
	Failed     int64
}

// Processor fans sources out to fetch workers and funnels all records
// through a single writer goroutine. Extraction and normalization are pure,
// so workers share no mutable state; the store is the only shared resource
// and its writes are serialized by the writer.
type Processor struct {
	fetcher     Fetcher
	store       RecordStore
	WorkerCount int

	sourceQueue chan models.Source
	writeQueue  chan models.AirQualityRecord
	errorQueue  chan error

	workerWg sync.WaitGroup

	entries    atomic.Int64
	inserted   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// NewProcessor creates a Processor. A workerCount of zero or less uses the
// CPU count.
func NewProcessor(fetcher Fetcher, store RecordStore, workerCount int) (*Processor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	return &Processor{
		fetcher:     fetcher,
		store:       store,
		WorkerCount: workerCount,
		sourceQueue: make(chan models.Source, workerCount*2),
		writeQueue:  make(chan models.AirQualityRecord, workerCount*5),
		errorQueue:  make(chan error, workerCount),
	}, nil
}

// Run processes every source through fetch, extract, normalize and store.
// Per-source and per-record failures are logged and skipped; only loss of
// store connectivity aborts the run and is returned as the run error.
// Cancelling between sources leaves already committed records intact: no
// transaction spans more than one insert.
func (p *Processor) Run(ctx context.Context, sources []models.Source) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		var firstErr error
		for err := range p.errorQueue {
			if err == nil {
				continue
			}
			log.Error().Err(err).Msg("Error occurred")
			if firstErr == nil && isStoreConnectivityError(err) {
				firstErr = err
			}
		}
		errChan <- firstErr
		close(errChan)
	}()

	var stageWg sync.WaitGroup

	stageWg.Add(1)
	go func() {
		defer stageWg.Done()
		for i := 0; i < p.WorkerCount; i++ {
			p.workerWg.Add(1)
			go p.sourceWorker(ctx)
		}
		p.workerWg.Wait()
		close(p.writeQueue)
		log.Debug().Msg("All source workers finished")
	}()

	stageWg.Add(1)
	go func() {
		defer stageWg.Done()
		p.recordWriter(ctx, cancel)
		log.Debug().Msg("Record writer finished")
	}()

queueLoop:
	for _, source := range sources {
		select {
		case p.sourceQueue <- source:
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Context cancelled during source queuing")
			break queueLoop
		}
	}
	close(p.sourceQueue)

	stageWg.Wait()
	close(p.errorQueue)

	finalErr := <-errChan
	return Summary{
		Sources:    len(sources),
		Entries:    p.entries.Load(),
		Inserted:   p.inserted.Load(),
		Duplicates: p.duplicates.Load(),
		Failed:     p.failed.Load(),
	}, finalErr
}

// sourceWorker fetches sources from the queue, extracts and normalizes their
// entries, and queues the records for writing. A fetch failure is logged,
// recorded against the source, and the worker moves to the next source.
func (p *Processor) sourceWorker(ctx context.Context) {
	defer p.workerWg.Done()

	for {
		select {
		case source, ok := <-p.sourceQueue:
			if !ok {
				return
			}

			log.Info().
				Int64("source_id", source.ID).
				Str("url", source.URL).
				Msg("Polling source")

			entries, fetchErr := p.fetcher.Fetch(ctx, source.URL)

			if err := p.store.MarkSourcePolled(ctx, &source, fetchErr); err != nil {
				p.sendError(err)
			}

			if fetchErr != nil {
				p.sendError(fmt.Errorf("error fetching source %d (%s): %w", source.ID, source.URL, fetchErr))
				continue
			}

			for _, entry := range entries {
				p.entries.Add(1)
				record := extract.Normalize(extract.Extract(entry))

				select {
				case p.writeQueue <- record:
				case <-ctx.Done():
					log.Info().
						Int64("source_id", source.ID).
						Err(ctx.Err()).
						Msg("Worker cancelling record queueing")
					return
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// recordWriter serializes all store writes. A failed insert is logged with
// the full record for diagnosis and the writer continues; connectivity loss
// cancels the run.
func (p *Processor) recordWriter(ctx context.Context, cancel context.CancelFunc) {
	for record := range p.writeQueue {
		inserted, err := p.store.UpsertIfAbsent(ctx, &record)
		if err != nil {
			p.failed.Add(1)
			log.Error().
				Err(err).
				Str("location", record.Location).
				Interface("report_timestamp", record.ReportTimestamp).
				Str("title", record.Title).
				Str("link", record.Link).
				Str("agency", record.Agency).
				Msg("Failed to store record")
			p.sendError(err)
			if isStoreConnectivityError(err) {
				cancel()
			}
			continue
		}
		if inserted {
			p.inserted.Add(1)
		} else {
			p.duplicates.Add(1)
		}
	}
}

// sendError sends an error to the error queue without blocking.
func (p *Processor) sendError(err error) {
	if err == nil {
		return
	}
	select {
	case p.errorQueue <- err:
	default:
		log.Error().Err(err).Msg("Error queue full, logging error instead of queuing")
	}
}

// isStoreConnectivityError reports whether the error means the store is gone
// rather than a single record failing.
func isStoreConnectivityError(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "unable to open database")
}

// Stats returns the running counters for the current or last run.
func (p *Processor) Stats() (inserted, duplicates, failed int64) {
	return p.inserted.Load(), p.duplicates.Load(), p.failed.Load()
}
