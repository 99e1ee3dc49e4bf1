// Package ingestion loads announced-prefix lists into the dataset store.
//
// Payloads are parked in the store before parsing so an interrupted import
// can be replayed on the next start. Parsing runs on a worker pool; a single
// writer goroutine batches the results into transactions, committing every
// FlushInterval or BatchSize prefixes, whichever comes first.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/metrics"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
)

// Config holds importer tuning.
type Config struct {
	// BatchSize is the maximum number of prefixes per transaction.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FlushInterval is the maximum time a partial batch waits.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// Workers is the number of concurrent parsers.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns sensible defaults for the importer.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: 500 * time.Millisecond,
		Workers:       runtime.NumCPU(),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	return c
}

// Stats tracks importer throughput since construction.
type Stats struct {
	Imports  int64 `json:"imports"`
	Prefixes int64 `json:"prefixes"`
	Batches  int64 `json:"batches"`
	Errors   int64 `json:"errors"`
}

// Report describes one finished import.
type Report struct {
	SetID    string        `json:"set_id"`
	Source   Source        `json:"source"`
	Payloads int           `json:"payloads"`
	Parsed   int           `json:"parsed"`
	Invalid  int           `json:"invalid"`
	Added    int           `json:"added"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// payload is one raw input with a name for error messages.
type payload struct {
	name string
	data []byte
}

// ============================================================
// Importer
// ============================================================

// Importer parses prefix lists and writes them into a database.Store.
type Importer struct {
	config  Config
	store   database.Store
	metrics *metrics.Metrics
	log     zerolog.Logger
	stats   Stats
}

// NewImporter creates an importer. m may be nil.
func NewImporter(config Config, store database.Store, m *metrics.Metrics, log zerolog.Logger) *Importer {
	return &Importer{
		config:  config.normalized(),
		store:   store,
		metrics: m,
		log:     log.With().Str("component", "importer").Logger(),
	}
}

// Stats returns a snapshot of the importer counters.
func (im *Importer) Stats() Stats {
	return Stats{
		Imports:  atomic.LoadInt64(&im.stats.Imports),
		Prefixes: atomic.LoadInt64(&im.stats.Prefixes),
		Batches:  atomic.LoadInt64(&im.stats.Batches),
		Errors:   atomic.LoadInt64(&im.stats.Errors),
	}
}

// Import stores one payload into set. A set without an ID gets a fresh UUID;
// a set without a name is named after its ID.
func (im *Importer) Import(ctx context.Context, set *database.PrefixSet, source Source, data []byte) (*Report, error) {
	return im.importAll(ctx, set, source, []payload{{name: "payload", data: data}})
}

// ImportFiles reads every path and stores their union into set.
func (im *Importer) ImportFiles(ctx context.Context, set *database.PrefixSet, source Source, paths ...string) (*Report, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input files")
	}
	payloads := make([]payload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		payloads = append(payloads, payload{name: filepath.Base(p), data: data})
	}
	return im.importAll(ctx, set, source, payloads)
}

func (im *Importer) importAll(ctx context.Context, set *database.PrefixSet, source Source, payloads []payload) (*Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	if set.Name == "" {
		set.Name = set.ID
	}
	if source == "" {
		source = SourceAuto
	}
	if set.Source == "" {
		if source == SourceAuto && len(payloads) > 0 {
			set.Source = string(DetectSource(payloads[0].data))
		} else {
			set.Source = string(source)
		}
	}

	if err := im.store.CreateSet(set); err != nil {
		im.fail()
		return nil, fmt.Errorf("creating set %s: %w", set.ID, err)
	}

	// Park the raw payloads first; they are committed only once every
	// prefix has been written.
	parked := make([]int64, 0, len(payloads))
	for _, p := range payloads {
		id, err := im.store.WritePendingImport(set.ID, string(source), p.data)
		if err != nil {
			im.fail()
			return nil, fmt.Errorf("parking %s: %w", p.name, err)
		}
		parked = append(parked, id)
	}

	report, err := im.ingest(ctx, set.ID, source, payloads)
	if err != nil {
		im.fail()
		im.log.Error().Err(err).Str("set", set.ID).Msg("import failed")
		return report, err
	}

	for _, id := range parked {
		if err := im.store.CommitPendingImport(id); err != nil {
			im.fail()
			return report, fmt.Errorf("committing import %d: %w", id, err)
		}
	}

	report.Duration = time.Since(start)
	atomic.AddInt64(&im.stats.Imports, 1)
	im.metrics.ObserveImportDuration(report.Duration)

	im.log.Info().
		Str("set", set.ID).
		Str("source", string(report.Source)).
		Int("payloads", report.Payloads).
		Int("parsed", report.Parsed).
		Int("invalid", report.Invalid).
		Int("added", report.Added).
		Int("batches", report.Batches).
		Dur("duration", report.Duration).
		Msg("import finished")
	return report, nil
}

// ingest fans payloads out to the parser pool and funnels the prefixes into
// the single writer.
func (im *Importer) ingest(ctx context.Context, setID string, source Source, payloads []payload) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan payload)
	found := make(chan prefix.Prefix, im.config.BatchSize*2)

	var (
		mu       sync.Mutex
		parseErr error
		detected Source
		parsed   int
		invalid  int
		wg       sync.WaitGroup
	)

	workers := im.config.Workers
	if workers > len(payloads) {
		workers = len(payloads)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := Parse(source, job.data)
				if err != nil {
					mu.Lock()
					if parseErr == nil {
						parseErr = fmt.Errorf("parsing %s: %w", job.name, err)
					}
					mu.Unlock()
					cancel()
					continue
				}

				mu.Lock()
				if detected == "" {
					detected = res.Source
				}
				parsed += len(res.Prefixes)
				invalid += res.Invalid
				mu.Unlock()

				if res.Invalid > 0 {
					im.log.Warn().Str("payload", job.name).Int("invalid", res.Invalid).Msg("skipped malformed entries")
				}
				for _, p := range res.Prefixes {
					select {
					case found <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range payloads {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(found)
	}()

	report := &Report{SetID: setID, Source: source, Payloads: len(payloads)}
	flushErr := im.flushLoop(ctx, setID, found, report)

	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if detected != "" {
		report.Source = detected
	}
	report.Parsed = parsed
	report.Invalid = invalid

	if parseErr != nil {
		return report, parseErr
	}
	return report, flushErr
}

// flushLoop batches prefixes from found into transactions. It returns when
// found is closed or ctx is cancelled.
func (im *Importer) flushLoop(ctx context.Context, setID string, found <-chan prefix.Prefix, report *Report) error {
	ticker := time.NewTicker(im.config.FlushInterval)
	defer ticker.Stop()

	buf := make([]prefix.Prefix, 0, im.config.BatchSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		added, err := im.store.InsertPrefixes(setID, buf)
		if err != nil {
			return fmt.Errorf("flushing batch of %d: %w", len(buf), err)
		}

		v4 := 0
		for _, p := range buf {
			if p.Is4() {
				v4++
			}
		}
		im.metrics.AddPrefixes(4, v4)
		im.metrics.AddPrefixes(6, len(buf)-v4)
		im.metrics.IncBatch()
		atomic.AddInt64(&im.stats.Batches, 1)
		atomic.AddInt64(&im.stats.Prefixes, int64(added))

		report.Added += added
		report.Batches++
		buf = buf[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case p, ok := <-found:
			if !ok {
				return flush()
			}
			buf = append(buf, p)
			if len(buf) >= im.config.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// ReplayPending re-imports payloads parked by an interrupted run and
// returns how many were recovered. Corrupt payloads are skipped and left
// pending.
func (im *Importer) ReplayPending(ctx context.Context) (int, error) {
	pending, err := im.store.GetPendingImports()
	if err != nil {
		return 0, fmt.Errorf("getting pending imports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	im.log.Info().Int("count", len(pending)).Msg("replaying pending imports")

	replayed := 0
	for _, pi := range pending {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		if _, err := im.store.GetSet(pi.SetID); errors.Is(err, database.ErrNotFound) {
			set := &database.PrefixSet{ID: pi.SetID, Name: pi.SetID, Source: pi.Source}
			if err := im.store.CreateSet(set); err != nil {
				im.log.Error().Err(err).Int64("import_id", pi.ImportID).Msg("recreating set for pending import")
				continue
			}
		} else if err != nil {
			im.log.Error().Err(err).Int64("import_id", pi.ImportID).Msg("looking up set for pending import")
			continue
		}

		name := fmt.Sprintf("pending import %d", pi.ImportID)
		if _, err := im.ingest(ctx, pi.SetID, Source(pi.Source), []payload{{name: name, data: pi.Payload}}); err != nil {
			im.fail()
			im.log.Warn().Err(err).Int64("import_id", pi.ImportID).Msg("skipping pending import")
			continue
		}

		if err := im.store.CommitPendingImport(pi.ImportID); err != nil {
			im.log.Error().Err(err).Int64("import_id", pi.ImportID).Msg("committing pending import")
			continue
		}
		replayed++
	}
	return replayed, nil
}

func (im *Importer) fail() {
	atomic.AddInt64(&im.stats.Errors, 1)
	im.metrics.IncImportError()
}
