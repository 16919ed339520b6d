package clientapi

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/migalabs/vprice/pkg/spec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	calls    [][]phase0.ValidatorIndex
	issuedAt []time.Time
	failing  map[phase0.ValidatorIndex]bool
	delay    time.Duration
	inFlight int64
	maxInFl  int64
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) FetchChunk(ctx context.Context, valIdxs []phase0.ValidatorIndex) ([]spec.ValidatorRecord, error) {
	now := atomic.AddInt64(&s.inFlight, 1)
	defer atomic.AddInt64(&s.inFlight, -1)
	for {
		prev := atomic.LoadInt64(&s.maxInFl)
		if now <= prev || atomic.CompareAndSwapInt64(&s.maxInFl, prev, now) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, append([]phase0.ValidatorIndex{}, valIdxs...))
	s.issuedAt = append(s.issuedAt, time.Now())
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	records := make([]spec.ValidatorRecord, 0, len(valIdxs))
	for _, idx := range valIdxs {
		if s.failing[idx] {
			return nil, errors.Wrap(ErrMalformedResponse, "unexpected token '<'")
		}
		records = append(records, spec.ValidatorRecord{
			Index:            idx,
			Balance:          32_000_000_000,
			EffectiveBalance: 32_000_000_000,
			Status:           spec.ACTIVE_ONLINE_STATUS,
		})
	}
	return records, nil
}

func indexRange(from, n int) []phase0.ValidatorIndex {
	idxs := make([]phase0.ValidatorIndex, n)
	for i := range idxs {
		idxs[i] = phase0.ValidatorIndex(from + i)
	}
	return idxs
}

func TestBatchFetcherAllChunks(t *testing.T) {
	source := &fakeSource{}
	fetcher := NewBatchFetcher(source, FetcherOpts{MaxConcurrent: 4})

	input := indexRange(1000, 1050)
	result, err := fetcher.Fetch(context.Background(), input, 100)
	require.NoError(t, err)

	require.Equal(t, 11, result.Chunks)
	require.Len(t, source.calls, 11)
	require.Empty(t, result.Failures)
	require.Len(t, result.Records, len(input))

	// every requested validator exactly once
	got := make([]phase0.ValidatorIndex, 0, len(result.Records))
	for _, record := range result.Records {
		got = append(got, record.Index)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, input, got)

	for _, call := range source.calls {
		require.LessOrEqual(t, len(call), 100)
	}
}

func TestBatchFetcherChunkFailureIsIsolated(t *testing.T) {
	source := &fakeSource{failing: map[phase0.ValidatorIndex]bool{150: true}}
	fetcher := NewBatchFetcher(source, FetcherOpts{MaxConcurrent: 2})

	result, err := fetcher.Fetch(context.Background(), indexRange(100, 250), 100)
	require.NoError(t, err)

	require.Equal(t, 3, result.Chunks)
	require.Len(t, result.Failures, 1)
	require.Len(t, result.Records, 150)

	failure := result.Failures[0]
	require.Equal(t, 0, failure.Chunk)
	require.ErrorIs(t, failure, ErrMalformedResponse)
	require.Equal(t, indexRange(100, 100), result.FailedIndexes())
	for _, record := range result.Records {
		require.GreaterOrEqual(t, int(record.Index), 200)
	}
}

func TestBatchFetcherBoundsConcurrency(t *testing.T) {
	source := &fakeSource{delay: 10 * time.Millisecond}
	fetcher := NewBatchFetcher(source, FetcherOpts{MaxConcurrent: 3})

	result, err := fetcher.Fetch(context.Background(), indexRange(0, 200), 10)
	require.NoError(t, err)
	require.Equal(t, 20, result.Chunks)
	require.LessOrEqual(t, source.maxInFl, int64(3))
}

func TestBatchFetcherRateLimit(t *testing.T) {
	source := &fakeSource{}
	// 600 calls per minute = one call every 100ms after the first
	fetcher := NewBatchFetcher(source, FetcherOpts{MaxConcurrent: 4, CallsPerMinute: 600, Burst: 1})

	start := time.Now()
	result, err := fetcher.Fetch(context.Background(), indexRange(0, 30), 10)
	require.NoError(t, err)
	require.Len(t, result.Records, 30)
	require.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestBatchFetcherCallCeilingFirstWindow(t *testing.T) {
	source := &fakeSource{}
	// 600 calls per minute is a ceiling of 10 calls per second
	fetcher := NewBatchFetcher(source, FetcherOpts{MaxConcurrent: 10, CallsPerMinute: 600})

	start := time.Now()
	result, err := fetcher.Fetch(context.Background(), indexRange(0, 15), 1)
	require.NoError(t, err)
	require.Len(t, result.Records, 15)

	inWindow := 0
	for _, at := range source.issuedAt {
		if at.Sub(start) < time.Second {
			inWindow++
		}
	}
	require.LessOrEqual(t, inWindow, 10)
	require.Greater(t, inWindow, 0)
}

func TestBatchFetcherBurstStaysWithinCeiling(t *testing.T) {
	tests := []struct {
		name           string
		opts           FetcherOpts
		burst          int
		callsPerMinute float64
	}{
		{"default burst", FetcherOpts{CallsPerMinute: 10}, 1, 10},
		{"burst takes from the refill", FetcherOpts{CallsPerMinute: 600, Burst: 5}, 5, 596},
		{"burst clamped to the ceiling", FetcherOpts{CallsPerMinute: 20, Burst: 50}, 20, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fetcher := NewBatchFetcher(&fakeSource{}, test.opts)
			burst := fetcher.limiter.Burst()
			refill := float64(fetcher.limiter.Limit()) * 60
			require.Equal(t, test.burst, burst)
			require.InDelta(t, test.callsPerMinute, refill, 1e-9)
			// calls in the first minute: the burst plus the refill after it
			require.LessOrEqual(t, float64(burst)+refill-1, float64(test.opts.CallsPerMinute)+1e-6)
		})
	}
}

func TestBatchFetcherInvalidBatchSize(t *testing.T) {
	fetcher := NewBatchFetcher(&fakeSource{}, FetcherOpts{})
	_, err := fetcher.Fetch(context.Background(), indexRange(0, 10), 0)
	require.Error(t, err)
}

func TestBatchFetcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewBatchFetcher(&fakeSource{}, FetcherOpts{MaxConcurrent: 1})
	_, err := fetcher.Fetch(ctx, indexRange(0, 10), 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBatchFetcherUnparsableChunkOverHTTP(t *testing.T) {
	srv := newBeaconchaServer(t, map[uint64]bool{205: true})
	defer srv.Close()

	fetcher := NewBatchFetcher(NewBeaconchaClient(srv.URL+"/api/v1", 0), FetcherOpts{MaxConcurrent: 2})
	result, err := fetcher.Fetch(context.Background(), indexRange(0, 250), 100)
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	require.Equal(t, 2, result.Failures[0].Chunk)
	require.Len(t, result.Records, 200)
}
