package gogoanime

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/types"
)

const (
	DefaultBaseUrl = "https://harshanime.vercel.app"
	// the proxy's video hosts reject hot-linked requests without it
	DefaultReferer = "https://s3taku.com"

	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 5 * time.Minute
	maxCachedItems  = 100
)

type GogoAnime struct {
	baseUrl string
	referer string
	client  *http.Client
	C       *cache.Cache
	ttl     time.Duration
	log     *log.Logger
}

func init() {
	fetcher.RegisterFetcher(fetcher.GogoAnimeFetcher, func(o fetcher.Options) fetcher.Fetcher {
		return New(o)
	})
}

func New(o fetcher.Options) *GogoAnime {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.Referer == "" {
		o.Referer = DefaultReferer
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = defaultCacheTTL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = NewHTTPClient(o.Timeout)
	}
	return &GogoAnime{
		baseUrl: strings.TrimRight(o.BaseUrl, "/"),
		referer: o.Referer,
		client:  o.HTTPClient,
		C:       cache.New(o.CacheTTL, 2*o.CacheTTL),
		ttl:     o.CacheTTL,
		log:     logger.OrDefault(o.Logger).With("fetcher", "gogoanime"),
	}
}

// NewHTTPClient is a pooled client for the proxy and the video hosts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

func (g *GogoAnime) Referer() string {
	return g.referer
}

func (g *GogoAnime) Search(ctx context.Context, q string, page int) (*types.SearchPage, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, errors.WithMessage(fetcher.ErrEmptyResult, "empty search query")
	}
	page = max(page, 1)
	cacheKey := fmt.Sprintf("search:%s:%d", q, page)
	if v, found := g.C.Get(cacheKey); found {
		return v.(*types.SearchPage), nil
	}

	var res searchResponse
	path := "/anime/gogoanime/" + url.PathEscape(q)
	if err := g.getJSON(ctx, path, pageQuery(page), nil, &res); err != nil {
		return nil, err
	}
	if res.Results == nil {
		return nil, errors.WithMessagef(fetcher.ErrSchemaMismatch, "search %q: missing results", q)
	}
	p := toPage(res, page)
	g.set(cacheKey, p, time.Hour)
	return p, nil
}

func (g *GogoAnime) TopAiring(ctx context.Context, page int) (*types.SearchPage, error) {
	page = max(page, 1)
	cacheKey := fmt.Sprintf("top-airing:%d", page)
	if v, found := g.C.Get(cacheKey); found {
		return v.(*types.SearchPage), nil
	}

	var res searchResponse
	if err := g.getJSON(ctx, "/anime/gogoanime/top-airing", pageQuery(page), nil, &res); err != nil {
		return nil, err
	}
	if res.Results == nil {
		return nil, errors.WithMessage(fetcher.ErrSchemaMismatch, "top-airing: missing results")
	}
	p := toPage(res, page)
	g.set(cacheKey, p, cache.DefaultExpiration)
	return p, nil
}

func (g *GogoAnime) Info(ctx context.Context, animeId string) (*types.AnimeInfo, error) {
	id := types.CleanId(animeId)
	if id == "" {
		return nil, errors.WithMessagef(fetcher.ErrEmptyResult, "invalid anime id %q", animeId)
	}
	cacheKey := "info:" + id
	if v, found := g.C.Get(cacheKey); found {
		return v.(*types.AnimeInfo), nil
	}

	var res infoResponse
	if err := g.getJSON(ctx, "/anime/gogoanime/info/"+url.PathEscape(id), nil, nil, &res); err != nil {
		return nil, err
	}
	if res.Episodes == nil || res.Id == "" {
		return nil, errors.WithMessagef(fetcher.ErrSchemaMismatch, "info %s: missing id or episodes", id)
	}
	info := &types.AnimeInfo{
		Anime:         res.Anime,
		Description:   res.Description,
		Type:          res.Type,
		Status:        res.Status,
		OtherName:     res.OtherName,
		TotalEpisodes: res.TotalEpisodes,
		Episodes:      *res.Episodes,
	}
	g.set(cacheKey, info, cache.DefaultExpiration)
	return info, nil
}

// Sources never filters sentinel qualities; that is the selector's job.
// Entries without an url are dropped as malformed.
func (g *GogoAnime) Sources(ctx context.Context, episodeId string) ([]types.VideoVariant, error) {
	id := types.CleanId(episodeId)
	if id == "" {
		return nil, errors.WithMessagef(fetcher.ErrEmptyResult, "invalid episode id %q", episodeId)
	}
	cacheKey := "sources:" + id
	if v, found := g.C.Get(cacheKey); found {
		return v.([]types.VideoVariant), nil
	}

	var res watchResponse
	headers := http.Header{"Referer": []string{g.referer}}
	if err := g.getJSON(ctx, "/anime/gogoanime/watch/"+url.PathEscape(id), nil, headers, &res); err != nil {
		return nil, err
	}
	if res.Sources == nil {
		return nil, errors.WithMessagef(fetcher.ErrSchemaMismatch, "watch %s: missing sources", id)
	}

	variants := make([]types.VideoVariant, 0, len(*res.Sources))
	for _, s := range *res.Sources {
		if s.Url == "" {
			g.log.Debug("dropping source without url", "episode", id, "quality", s.Quality)
			continue
		}
		variants = append(variants, types.NewVideoVariant(s.Url, s.Quality, s.IsM3U8))
	}
	if len(variants) == 0 {
		return variants, errors.WithMessagef(fetcher.ErrEmptyResult, "watch %s: no sources", id)
	}
	g.set(cacheKey, variants, cache.DefaultExpiration)
	return variants, nil
}

func (g *GogoAnime) getJSON(ctx context.Context, path string, query url.Values, headers http.Header, out interface{}) error {
	u := g.baseUrl + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}

	g.log.Debug("GET", "url", u)
	res, err := g.client.Do(req)
	if err != nil {
		return errors.WithMessagef(fetcher.ErrNetwork, "GET %s: %v", u, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return errors.WithMessagef(fetcher.ErrNetwork, "GET %s: status %d", u, res.StatusCode)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.WithMessagef(fetcher.ErrNetwork, "GET %s: reading body: %v", u, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.WithMessagef(fetcher.ErrSchemaMismatch, "GET %s: %v", u, err)
	}
	return nil
}

func (g *GogoAnime) set(key string, v interface{}, d time.Duration) {
	if g.C.ItemCount() > maxCachedItems {
		g.C.Flush()
	}
	g.C.Set(key, v, d)
}

func pageQuery(page int) url.Values {
	return url.Values{"page": []string{strconv.Itoa(page)}}
}

func toPage(res searchResponse, requested int) *types.SearchPage {
	current := res.CurrentPage
	if current == 0 {
		current = requested
	}
	return &types.SearchPage{
		CurrentPage:  current,
		HasNextPage:  res.HasNextPage,
		TotalResults: res.TotalResults,
		Results:      *res.Results,
	}
}
