package clientapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/migalabs/vprice/pkg/utils"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

var (
	chunkKeyTag string = "chunk="

	DefaultBatchSize      = 100
	DefaultMaxConcurrent  = 10
	DefaultCallsPerMinute = 10
)

// ChunkSource resolves the state of a group of validators with a single request.
type ChunkSource interface {
	Name() string
	FetchChunk(ctx context.Context, valIdxs []phase0.ValidatorIndex) ([]spec.ValidatorRecord, error)
}

type FetcherOpts struct {
	MaxConcurrent  int // requests in flight at the same time
	CallsPerMinute int // request ceiling of the remote service, 0 disables the limiter
	Burst          int // requests released at once, defaults to 1 and never above CallsPerMinute
}

// BatchFetcher splits validator indexes in chunks and requests all of them
// concurrently, bounded by a routine book and a token bucket.
type BatchFetcher struct {
	source  ChunkSource
	book    *utils.RoutineBook
	limiter *rate.Limiter
}

func NewBatchFetcher(source ChunkSource, opts FetcherOpts) *BatchFetcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.CallsPerMinute > 0 {
		if opts.Burst > opts.CallsPerMinute {
			opts.Burst = opts.CallsPerMinute
		}
		// any 60s window holds at most burst + refill - 1 calls, so the
		// refill only covers what the burst leaves of the ceiling
		limit = rate.Limit(opts.CallsPerMinute-opts.Burst+1) / 60
	}
	return &BatchFetcher{
		source:  source,
		book:    utils.NewRoutineBook(opts.MaxConcurrent),
		limiter: rate.NewLimiter(limit, opts.Burst),
	}
}

type FetchResult struct {
	Records  []spec.ValidatorRecord
	Failures []*spec.FetchError
	Chunks   int
}

// FailedIndexes returns the validators of every failed chunk.
func (r *FetchResult) FailedIndexes() []phase0.ValidatorIndex {
	idxs := make([]phase0.ValidatorIndex, 0)
	for _, failure := range r.Failures {
		idxs = append(idxs, failure.Indices...)
	}
	return idxs
}

type chunkResult struct {
	records []spec.ValidatorRecord
	err     *spec.FetchError
}

// Fetch requests every chunk of valIdxs. A failing chunk is recorded in
// FetchResult.Failures and contributes no records; it never aborts the others.
// Records are merged in chunk order, callers must not rely on positions.
func (f *BatchFetcher) Fetch(ctx context.Context, valIdxs []phase0.ValidatorIndex, batchSize int) (*FetchResult, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d", batchSize)
	}
	chunks := utils.ChunkIndexes(valIdxs, batchSize)
	log.Infof("requesting %d validators in %d chunks of up to %d from %s, up to %d in flight", len(valIdxs), len(chunks), batchSize, f.source.Name(), f.book.Size())

	// every routine only writes its own slot
	slots := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk []phase0.ValidatorIndex) {
			defer wg.Done()
			slots[i] = f.fetchChunk(ctx, i, chunk)
		}(i, chunk)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "validator fetch interrupted")
	}

	result := &FetchResult{
		Records:  make([]spec.ValidatorRecord, 0, len(valIdxs)),
		Failures: make([]*spec.FetchError, 0),
		Chunks:   len(chunks),
	}
	seen := make(map[phase0.ValidatorIndex]struct{}, len(valIdxs))
	for _, slot := range slots {
		if slot.err != nil {
			result.Failures = append(result.Failures, slot.err)
			continue
		}
		for _, record := range slot.records {
			if _, ok := seen[record.Index]; ok {
				log.Warnf("validator %d received twice, keeping the first record", record.Index)
				continue
			}
			seen[record.Index] = struct{}{}
			result.Records = append(result.Records, record)
		}
	}

	if len(result.Failures) > 0 {
		log.Warnf("%d/%d chunks failed, %d validators left out", len(result.Failures), len(chunks), len(result.FailedIndexes()))
	}
	if missing := len(valIdxs) - len(result.Records) - len(result.FailedIndexes()); missing > 0 {
		log.Warnf("%d requested validators were not returned by %s", missing, f.source.Name())
	}
	return result, nil
}

func (f *BatchFetcher) fetchChunk(ctx context.Context, chunkIdx int, chunk []phase0.ValidatorIndex) chunkResult {
	routineKey := fmt.Sprintf("%s%d", chunkKeyTag, chunkIdx)
	fail := func(err error) chunkResult {
		fetchErr := &spec.FetchError{Chunk: chunkIdx, Indices: chunk, Err: err}
		log.Error(fetchErr)
		return chunkResult{err: fetchErr}
	}

	if err := f.book.Acquire(ctx, routineKey); err != nil {
		return fail(errors.Wrap(err, "waiting for a free routine"))
	}
	defer f.book.FreePage(routineKey)

	if err := f.limiter.Wait(ctx); err != nil {
		return fail(errors.Wrap(err, "waiting for the rate limiter"))
	}

	log.Debugf("requesting %s with %d validators", routineKey, len(chunk))
	start := time.Now()
	records, err := f.source.FetchChunk(ctx, chunk)
	elapsed := time.Since(start)
	recordChunk(f.source.Name(), err, elapsed, len(records))
	if err != nil {
		return fail(err)
	}
	log.Debugf("%s: %d records in %f seconds", routineKey, len(records), elapsed.Seconds())
	return chunkResult{records: records}
}
