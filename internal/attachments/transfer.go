package attachments

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/forgeport/forgeport/internal/debug"
)

// DefaultTransferConcurrency bounds parallel attachment downloads.
const DefaultTransferConcurrency = 4

// Fetcher downloads the bytes of one attachment from the source.
type Fetcher func(ctx context.Context, origin string) ([]byte, error)

// Storer writes the bytes of one attachment to its destination.
type Storer func(ctx context.Context, meta Metadata, data []byte) error

// TransferStats summarizes a transfer phase.
type TransferStats struct {
	Transferred int
	Failed      int
	Bytes       int64
}

// Transfer moves every drained attachment from source to destination with
// bounded parallelism. Individual failures are logged and counted, not
// fatal: a missing attachment must not abort the migration of everything
// else. The returned error is only a context cancellation.
func Transfer(ctx context.Context, items []Metadata, fetch Fetcher, store Storer, concurrency int) (TransferStats, error) {
	if concurrency <= 0 {
		concurrency = DefaultTransferConcurrency
	}

	var transferred, failed, bytes int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, meta := range items {
		meta := meta
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := fetch(ctx, meta.Origin)
			if err != nil {
				debug.Warnf("attachment %s: download failed: %v\n", meta.Origin, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}
			if err := store(ctx, meta, data); err != nil {
				debug.Warnf("attachment %s: store failed: %v\n", meta.Origin, err)
				atomic.AddInt64(&failed, 1)
				return nil
			}

			atomic.AddInt64(&transferred, 1)
			atomic.AddInt64(&bytes, int64(len(data)))
			return nil
		})
	}

	err := g.Wait()
	return TransferStats{
		Transferred: int(transferred),
		Failed:      int(failed),
		Bytes:       bytes,
	}, err
}
