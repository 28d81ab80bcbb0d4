package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ani/ani-gogo/types"
)

type Fetcher interface {
	Search(ctx context.Context, q string, page int) (*types.SearchPage, error)
	TopAiring(ctx context.Context, page int) (*types.SearchPage, error)
	Info(ctx context.Context, animeId string) (*types.AnimeInfo, error)
	// Sources returns the raw, unfiltered variants of an episode.
	Sources(ctx context.Context, episodeId string) ([]types.VideoVariant, error)
}

// Options are handed to every registered constructor; zero values mean
// "use the provider default".
type Options struct {
	BaseUrl    string
	Referer    string
	Timeout    time.Duration
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

type Constructor func(Options) Fetcher

var fetchers = make(map[int]Constructor)

const (
	GogoAnimeFetcher = iota
)

// RegisterFetcher is called from the provider packages' init.
func RegisterFetcher(name int, c Constructor) error {
	if _, ok := fetchers[name]; ok {
		return errors.New("fetcher already registered")
	}

	fetchers[name] = c
	return nil
}

func GetFetcher(name int, opts Options) (Fetcher, error) {
	if c, ok := fetchers[name]; ok {
		return c(opts), nil
	}
	return nil, errors.New("fetcher name is unknown")
}

func GetDefaultFetcher(opts Options) (Fetcher, error) {
	return GetFetcher(GogoAnimeFetcher, opts)
}
