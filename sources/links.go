package sources

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/samber/mo"

	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/types"
)

const DefaultPinnedQuality = "360p"

type LinkOptions struct {
	// concurrent variant fetches, defaults to 8
	Workers int
	Logger  *log.Logger
}

// ResolveLinks pins every episode to one quality. Each episode is fetched
// independently; a failed or quality-less episode maps to None and never
// affects the others. Every episode id is present in the result.
func ResolveLinks(
	ctx context.Context,
	f VariantFetcher,
	episodes []types.Episode,
	quality string,
	opts LinkOptions,
) map[string]mo.Option[types.VideoVariant] {
	l := logger.OrDefault(opts.Logger)
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	workers = min(workers, max(len(episodes), 1))

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		links = make(map[string]mo.Option[types.VideoVariant], len(episodes))
		sem   = make(chan struct{}, workers)
	)

	for _, ep := range episodes {
		mu.Lock()
		links[ep.Id] = mo.None[types.VideoVariant]()
		mu.Unlock()

		wg.Add(1)
		go func(ep types.Episode) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			raw, err := f.Sources(ctx, ep.Id)
			if err != nil {
				l.Warn("no link for episode", "episode", ep.Id, "err", err)
				return
			}
			link := SelectByQuality(SelectVariants(raw), quality)
			if link.IsAbsent() {
				l.Debug("quality not offered", "episode", ep.Id, "quality", quality)
				return
			}
			mu.Lock()
			links[ep.Id] = link
			mu.Unlock()
		}(ep)
	}

	wg.Wait()
	return links
}
