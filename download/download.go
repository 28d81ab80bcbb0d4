package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/player"
	"github.com/ani/ani-gogo/sources"
	"github.com/ani/ani-gogo/types"
)

// Progress is reported after every chunk written. Total is -1 when the
// size is unknown; Segments is zero for direct files.
type Progress struct {
	Episode  int
	Received int64
	Total    int64
	Segment  int
	Segments int
}

type Options struct {
	Dir      string
	Quality  string
	Client   *http.Client
	Headers  map[string]string
	Logger   *log.Logger
	Progress func(Progress)
}

type Downloader struct {
	fetcher sources.VariantFetcher
	opts    Options
	client  *http.Client
	log     *log.Logger
}

func New(f sources.VariantFetcher, o Options) *Downloader {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	return &Downloader{fetcher: f, opts: o, client: client, log: logger.OrDefault(o.Logger)}
}

// pickVariant prefers the configured quality and falls back to the
// default variant.
func (d *Downloader) pickVariant(ctx context.Context, episodeId string) (types.VideoVariant, error) {
	raw, err := d.fetcher.Sources(ctx, episodeId)
	if err != nil {
		return types.VideoVariant{}, err
	}
	filtered := sources.SelectVariants(raw)
	def, ok := sources.PickDefault(filtered).Get()
	if !ok {
		return types.VideoVariant{}, errors.WithMessagef(fetcher.ErrEmptyResult, "episode %s has no downloadable variant", episodeId)
	}
	return sources.SelectByQuality(filtered, d.opts.Quality).OrElse(def), nil
}

func (d *Downloader) episodePath(title string, ep types.Episode, v types.VideoVariant) string {
	ext := ".mp4"
	if v.IsManifestStream {
		ext = ".ts"
	}
	return filepath.Join(d.opts.Dir, fmt.Sprintf("%s-episode-%v%s", types.Slug(title), ep.Number, ext))
}

// DownloadEpisode saves one episode and returns the written path.
func (d *Downloader) DownloadEpisode(ctx context.Context, title string, ep types.Episode) (string, error) {
	v, err := d.pickVariant(ctx, ep.Id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.opts.Dir, 0o755); err != nil {
		return "", errors.WithMessagef(err, "creating %s", d.opts.Dir)
	}
	path := d.episodePath(title, ep, v)
	d.log.Info("downloading episode", "episode", ep.Number, "quality", v.Quality, "path", path)

	out, err := os.Create(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer out.Close()

	if v.IsManifestStream {
		err = d.downloadManifest(ctx, ep.Number, v.Url, out)
	} else {
		err = d.downloadFile(ctx, ep.Number, v.Url, out)
	}
	if err != nil {
		out.Close()
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// DownloadEpisodes saves every episode in order, stopping at the first
// failure.
func (d *Downloader) DownloadEpisodes(ctx context.Context, title string, episodes []types.Episode) ([]string, error) {
	var paths []string
	for _, ep := range episodes {
		path, err := d.DownloadEpisode(ctx, title, ep)
		if err != nil {
			return paths, errors.WithMessagef(err, "episode %v", ep.Number)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// EpisodeRange picks episodes numbered from..to inclusive.
func EpisodeRange(episodes []types.Episode, from, to int) ([]types.Episode, error) {
	if from > to {
		return nil, errors.Errorf("start episode (%d) cannot be greater than end episode (%d)", from, to)
	}
	picked := lo.Filter(episodes, func(ep types.Episode, _ int) bool {
		return ep.Number >= from && ep.Number <= to
	})
	if len(picked) == 0 {
		return nil, errors.New("episode out of range")
	}
	return picked, nil
}

func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for k, v := range d.opts.Headers {
		req.Header.Set(k, v)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return nil, errors.WithMessagef(fetcher.ErrNetwork, "%s: %v", url, err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, errors.WithMessagef(fetcher.ErrNetwork, "%s: status %d", url, res.StatusCode)
	}
	return res, nil
}

func (d *Downloader) downloadFile(ctx context.Context, episode int, url string, out io.Writer) error {
	res, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	w := &progressWriter{report: d.opts.Progress, p: Progress{Episode: episode, Total: res.ContentLength}}
	_, err = io.Copy(io.MultiWriter(out, w), res.Body)
	return errors.WithStack(err)
}

// downloadManifest follows a master playlist to its highest bandwidth
// variant and appends every media segment to out.
func (d *Downloader) downloadManifest(ctx context.Context, episode int, url string, out io.Writer) error {
	m, err := d.manifest(ctx, url)
	if err != nil {
		return err
	}
	if m.Master {
		best := lo.MaxBy(m.Variants, func(a, b player.ManifestVariant) bool { return a.Bandwidth > b.Bandwidth })
		d.log.Debug("following variant", "uri", best.Uri, "bandwidth", best.Bandwidth, "resolution", best.Resolution)
		if m, err = d.manifest(ctx, best.Uri); err != nil {
			return err
		}
		if m.Master {
			return errors.Errorf("%s: nested master playlist", best.Uri)
		}
	}

	w := &progressWriter{report: d.opts.Progress, p: Progress{Episode: episode, Total: -1, Segments: m.Segments}}
	for i, uri := range m.SegmentUris {
		w.p.Segment = i + 1
		if err := d.copySegment(ctx, uri, io.MultiWriter(out, w)); err != nil {
			return errors.WithMessagef(err, "segment %d/%d", i+1, m.Segments)
		}
	}
	return nil
}

func (d *Downloader) manifest(ctx context.Context, url string) (player.Manifest, error) {
	res, err := d.get(ctx, url)
	if err != nil {
		return player.Manifest{}, err
	}
	defer res.Body.Close()
	return player.ParseManifest(url, res.Body)
}

func (d *Downloader) copySegment(ctx context.Context, uri string, out io.Writer) error {
	res, err := d.get(ctx, uri)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, err = io.Copy(out, res.Body)
	return errors.WithStack(err)
}

type progressWriter struct {
	report func(Progress)
	p      Progress
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.p.Received += int64(len(b))
	if w.report != nil {
		w.report(w.p)
	}
	return len(b), nil
}
