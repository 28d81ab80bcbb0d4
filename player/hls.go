package player

import (
	"context"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/logger"
)

type DecoderOptions struct {
	Client  *http.Client
	Headers map[string]string
	Logger  *log.Logger
}

// ManifestDecoder fetches and parses an HLS playlist once both a source
// and a surface are known. It never touches the surface itself: the
// owner of the surface decides what plays when the parse is reported.
type ManifestDecoder struct {
	client  *http.Client
	headers map[string]string
	log     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	src       string
	media     Surface
	started   bool
	destroyed bool
	onParsed  []func(Manifest)
	onError   []func(error)
}

func NewManifestDecoder(o DecoderOptions) *ManifestDecoder {
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ManifestDecoder{
		client:  client,
		headers: o.Headers,
		log:     logger.OrDefault(o.Logger),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *ManifestDecoder) LoadSource(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.src = url
	d.startLocked()
}

func (d *ManifestDecoder) AttachMedia(s Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media = s
	d.startLocked()
}

func (d *ManifestDecoder) OnManifestParsed(fn func(Manifest)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onParsed = append(d.onParsed, fn)
}

func (d *ManifestDecoder) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = append(d.onError, fn)
}

// Destroy cancels the playlist request and drops every handler. Safe to
// call more than once.
func (d *ManifestDecoder) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.cancel()
	d.onParsed = nil
	d.onError = nil
}

func (d *ManifestDecoder) startLocked() {
	if d.started || d.destroyed || d.src == "" || d.media == nil {
		return
	}
	d.started = true
	go d.run(d.src)
}

func (d *ManifestDecoder) run(src string) {
	m, err := d.fetch(d.ctx, src)

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	parsed := append([]func(Manifest){}, d.onParsed...)
	failed := append([]func(error){}, d.onError...)
	d.mu.Unlock()

	if err != nil {
		d.log.Error("manifest failed", "url", src, "err", err)
		for _, fn := range failed {
			fn(err)
		}
		return
	}
	d.log.Debug("manifest parsed", "url", src, "master", m.Master, "variants", len(m.Variants), "segments", m.Segments)
	for _, fn := range parsed {
		fn(m)
	}
}

func (d *ManifestDecoder) fetch(ctx context.Context, src string) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return Manifest{}, errors.WithStack(err)
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return Manifest{}, errors.WithMessagef(err, "fetching manifest %s", src)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Manifest{}, errors.Errorf("fetching manifest %s: status %d", src, res.StatusCode)
	}
	return ParseManifest(src, res.Body)
}
