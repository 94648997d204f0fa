package access

import (
	"context"
	"sync"
)

// RecordSnapshot is the tri-state view of the effective user's record.
// While a refetch is in flight the snapshot reports Loading; a stale record
// for a different id is never observable through it.
type RecordSnapshot struct {
	UserID  string
	Record  *UserRecord
	Err     error
	Loading bool
}

// Ready reports whether the snapshot holds a usable record.
func (s RecordSnapshot) Ready() bool {
	return !s.Loading && s.Err == nil && s.Record != nil
}

// Failed reports whether the last fetch for this id failed. Consumers hold a
// retry state on failure instead of assuming any role or status.
func (s RecordSnapshot) Failed() bool {
	return !s.Loading && s.Err != nil
}

// RecordFetcher loads the effective user's record through the external
// contract. Fetches race with identity changes; a result is applied only if
// the identity it was fetched for is still the current one (generation
// comparison stands in for cancellation, which the contract does not offer).
type RecordFetcher struct {
	mu         sync.Mutex
	source     RecordSource
	logger     Logger
	generation uint64
	snapshot   RecordSnapshot
}

// RecordFetcherOption customizes RecordFetcher construction.
type RecordFetcherOption func(*RecordFetcher)

// WithFetcherLogger overrides the logger.
func WithFetcherLogger(logger Logger) RecordFetcherOption {
	return func(f *RecordFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewRecordFetcher returns a fetcher reading records from source.
func NewRecordFetcher(source RecordSource, opts ...RecordFetcherOption) *RecordFetcher {
	f := &RecordFetcher{
		source: source,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	return f
}

// Refetch loads the record for id, invalidating any in-flight fetch for a
// previous identity. It returns the snapshot that ended up current, which may
// belong to a newer identity if one superseded this call mid-flight.
func (f *RecordFetcher) Refetch(ctx context.Context, id string) RecordSnapshot {
	f.mu.Lock()
	f.generation++
	gen := f.generation
	f.snapshot = RecordSnapshot{UserID: id, Loading: true}
	f.mu.Unlock()

	record, err := f.source.FetchUserRecord(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.generation != gen {
		// A newer identity was resolved while this fetch was in flight;
		// its result wins.
		f.logger.Debug("discarding stale record fetch", "id", id)
		return f.snapshot
	}

	if err != nil {
		f.logger.Error("record fetch failed", "id", id, "error", err)
		f.snapshot = RecordSnapshot{
			UserID: id,
			Err: ErrRecordFetchFailed.WithMetadata(map[string]any{
				"id":    id,
				"cause": err.Error(),
			}),
		}
		return f.snapshot
	}

	// A source answering with neither record nor error is a failed fetch;
	// consumers must never see a ready snapshot without a record.
	if record == nil {
		f.logger.Error("record fetch returned no record", "id", id)
		f.snapshot = RecordSnapshot{
			UserID: id,
			Err: ErrRecordFetchFailed.WithMetadata(map[string]any{
				"id":    id,
				"cause": "source returned no record",
			}),
		}
		return f.snapshot
	}

	record.EnsureStatus()
	f.snapshot = RecordSnapshot{UserID: id, Record: record}
	return f.snapshot
}

// Snapshot returns the current snapshot without fetching.
func (f *RecordFetcher) Snapshot() RecordSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

// Invalidate clears the snapshot, forcing the next Refetch to hit the source
// and any in-flight result to be discarded.
func (f *RecordFetcher) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.snapshot = RecordSnapshot{}
}
