// =============================================================================
// CTe/NFe Key Linker - Aggregator
// =============================================================================
//
// This module runs the extractor over every input file in parallel and
// combines the per-document results into one LinkMap.
//
// FOLD-THEN-REDUCE:
//   1. A producer feeds file paths into a channel
//   2. N workers pull paths; each worker owns one partial LinkMap and folds
//      every non-degenerate DocumentResult into it (no shared state, no locks)
//   3. After all workers finish, the partials are combined pairwise
//      (tree reduction) with types.Combine
//
//   Combine is a union of unions, so the result is identical for any file
//   order, any partitioning and any worker count.
//
// FAILURE SEMANTICS:
//   The first read or validation error cancels the group: the producer stops,
//   workers stop picking up files, and the error is returned. There is no
//   partial result.
//
// =============================================================================

package aggregator

import (
	"context"
	"runtime"

	"github.com/ginjaninja78/cte-nfe-linker/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DocumentExtractor produces the result for one document.
type DocumentExtractor interface {
	Extract(path string) (types.DocumentResult, error)
}

// Options configures an Aggregator.
type Options struct {
	// Workers is the number of concurrent extractions.
	// Values <= 0 use runtime.GOMAXPROCS(0).
	Workers int

	// Logger receives debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Aggregator combines per-document results.
type Aggregator struct {
	extractor DocumentExtractor
	workers   int
	logger    *zap.Logger
}

// New creates an Aggregator.
func New(extractor DocumentExtractor, opts Options) *Aggregator {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		extractor: extractor,
		workers:   workers,
		logger:    logger,
	}
}

// Aggregate extracts every path and returns the combined map.
//
// PARAMETERS:
//   - ctx: Cancels the run between files.
//   - paths: The documents to process, in any order.
//
// RETURNS:
//   - The aggregated LinkMap (possibly empty).
//   - The first error observed, if any.
func (a *Aggregator) Aggregate(ctx context.Context, paths []string) (types.LinkMap, error) {
	if len(paths) == 0 {
		return types.NewLinkMap(), nil
	}

	workers := min(a.workers, len(paths))
	partials := make([]types.LinkMap, workers)
	jobs := make(chan string)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, path := range paths {
			if err := gctx.Err(); err != nil {
				return err
			}
			select {
			case jobs <- path:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := range workers {
		partial := types.NewLinkMap()
		partials[i] = partial

		g.Go(func() error {
			for path := range jobs {
				if gctx.Err() != nil {
					continue
				}
				result, err := a.extractor.Extract(path)
				if err != nil {
					return err
				}
				if result.IsDegenerate() {
					a.logger.Debug("document skipped: no linked keys", zap.String("path", path))
					continue
				}
				partial.Add(result)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	final := Reduce(partials...)
	a.logger.Debug("aggregation complete",
		zap.Int("files", len(paths)),
		zap.Int("workers", workers),
		zap.Int("cte_keys", len(final)),
	)
	return final, nil
}

// Reduce combines maps pairwise until one remains. The inputs are consumed:
// the returned map may be one of them.
func Reduce(maps ...types.LinkMap) types.LinkMap {
	if len(maps) == 0 {
		return types.NewLinkMap()
	}
	for len(maps) > 1 {
		next := make([]types.LinkMap, 0, (len(maps)+1)/2)
		for i := 0; i < len(maps); i += 2 {
			if i+1 == len(maps) {
				next = append(next, maps[i])
				break
			}
			next = append(next, types.Combine(maps[i], maps[i+1]))
		}
		maps = next
	}
	if maps[0] == nil {
		return types.NewLinkMap()
	}
	return maps[0]
}
