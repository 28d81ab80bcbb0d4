package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/resource"
	"github.com/ani/ani-gogo/types"
)

type fakeSurface struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSurface) SetSource(url string) error {
	f.record("src:" + url)
	return nil
}

func (f *fakeSurface) Play() error {
	f.record("play")
	return nil
}

func (f *fakeSurface) Stop() error {
	f.record("stop")
	return nil
}

func (f *fakeSurface) record(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSurface) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

type fakeDecoder struct {
	mu        sync.Mutex
	src       string
	media     Surface
	parsed   []func(Manifest)
	failed   []func(error)
	destroys int
}

func (d *fakeDecoder) LoadSource(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.src = url
}

func (d *fakeDecoder) AttachMedia(s Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.media = s
}

func (d *fakeDecoder) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, fn)
}

func (d *fakeDecoder) OnManifestParsed(fn func(Manifest)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parsed = append(d.parsed, fn)
}

func (d *fakeDecoder) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroys++
}

// fireParsed runs the parse handlers. A destroyed decoder fires nothing.
func (d *fakeDecoder) fireParsed() {
	d.mu.Lock()
	if d.destroys > 0 {
		d.mu.Unlock()
		return
	}
	handlers := append([]func(Manifest){}, d.parsed...)
	src := d.src
	d.mu.Unlock()

	for _, fn := range handlers {
		fn(Manifest{Url: src, Segments: 3})
	}
}

func (d *fakeDecoder) fireError(err error) {
	d.mu.Lock()
	handlers := append([]func(error){}, d.failed...)
	d.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (d *fakeDecoder) isDestroyed() bool {
	return d.destroyCount() > 0
}

func (d *fakeDecoder) destroyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroys
}

type decoderFactory struct {
	mu       sync.Mutex
	decoders []*fakeDecoder
}

func (f *decoderFactory) New() Decoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDecoder{}
	f.decoders = append(f.decoders, d)
	return d
}

func (f *decoderFactory) all() []*fakeDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeDecoder{}, f.decoders...)
}

func (f *decoderFactory) live() int {
	n := 0
	for _, d := range f.all() {
		if !d.isDestroyed() {
			n++
		}
	}
	return n
}

// gatedFetcher serves canned variants; an episode with a gate blocks until
// the gate is closed.
type gatedFetcher struct {
	mu      sync.Mutex
	sources map[string][]types.VideoVariant
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		sources: map[string][]types.VideoVariant{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 16),
	}
}

func (f *gatedFetcher) gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := make(chan struct{})
	f.gates[id] = c
	return c
}

func (f *gatedFetcher) Sources(ctx context.Context, id string) ([]types.VideoVariant, error) {
	f.mu.Lock()
	gate := f.gates[id]
	src, err := f.sources[id], f.errs[id]
	f.mu.Unlock()

	f.started <- id
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

type harness struct {
	fetcher  *gatedFetcher
	surface  *fakeSurface
	factory  *decoderFactory
	session  *Session
	statesMu sync.Mutex
	states   []State
}

func newHarness() *harness {
	h := &harness{fetcher: newGatedFetcher(), surface: &fakeSurface{}, factory: &decoderFactory{}}
	h.session = NewSession(h.fetcher, h.surface, Options{
		NewDecoder: h.factory.New,
		OnStateChange: func(s State) {
			h.statesMu.Lock()
			h.states = append(h.states, s)
			h.statesMu.Unlock()
		},
		Logger: logger.Discard(),
	})
	return h
}

func (h *harness) transitions() []State {
	h.statesMu.Lock()
	defer h.statesMu.Unlock()
	return append([]State{}, h.states...)
}

func hls(url, q string) types.VideoVariant {
	return types.VideoVariant{Url: url, Quality: q, IsManifestStream: true}
}

func mp4(url, q string) types.VideoVariant {
	return types.VideoVariant{Url: url, Quality: q}
}

func TestSelectEpisodeManifestGatesPlay(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{
		hls("https://cdn/ep-1/default.m3u8", "default"),
		hls("https://cdn/ep-1/360.m3u8", "360p"),
		hls("https://cdn/ep-1/720.m3u8", "720p"),
	}

	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))

	assert.Equal(t, Ready, h.session.State())
	assert.Equal(t, "https://cdn/ep-1/360.m3u8", h.session.Current().MustGet().Url)
	assert.Equal(t, []string{"360p", "720p"}, qualitiesOf(h.session.Variants()))
	require.Len(t, h.factory.all(), 1)
	// no play until the manifest is parsed
	assert.Empty(t, h.surface.Calls())

	d := h.factory.all()[0]
	assert.Equal(t, "https://cdn/ep-1/360.m3u8", d.src)
	assert.Same(t, h.surface, d.media)

	d.fireParsed()
	assert.Equal(t, []string{"src:https://cdn/ep-1/360.m3u8", "play"}, h.surface.Calls())
	assert.Equal(t, Playing, h.session.State())
	assert.Equal(t, []State{Loading, Ready, Playing}, h.transitions())
}

func TestSelectEpisodeDirectSource(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{mp4("https://cdn/ep-1.mp4", "480p")}

	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))

	assert.Empty(t, h.factory.all())
	assert.Equal(t, []string{"src:https://cdn/ep-1.mp4", "play"}, h.surface.Calls())
	assert.Equal(t, Playing, h.session.State())
}

func TestManifestWithoutDecoderFallsBackToSurface(t *testing.T) {
	f := newGatedFetcher()
	f.sources["ep-1"] = []types.VideoVariant{hls("https://cdn/ep-1.m3u8", "360p")}
	surface := &fakeSurface{}
	s := NewSession(f, surface, Options{Logger: logger.Discard()})

	require.NoError(t, s.SelectEpisode(context.Background(), "ep-1"))
	assert.Equal(t, []string{"src:https://cdn/ep-1.m3u8", "play"}, surface.Calls())
	assert.Equal(t, Playing, s.State())
}

func TestEmptyVariantsNeverBuildDecoder(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{
		hls("https://cdn/a.m3u8", "default"),
		hls("https://cdn/b.m3u8", "backup"),
	}

	err := h.session.SelectEpisode(context.Background(), "ep-1")
	assert.ErrorIs(t, err, fetcher.ErrEmptyResult)
	assert.True(t, fetcher.IsNoLink(h.session.NoLink("ep-1")))
	assert.Empty(t, h.factory.all())
	assert.Empty(t, h.surface.Calls())
	assert.Equal(t, Idle, h.session.State())
	assert.True(t, h.session.Current().IsAbsent())
}

func TestFailedFetchLeavesPlaybackUntouched(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{hls("https://cdn/ep-1.m3u8", "360p")}
	h.fetcher.errs["ep-2"] = fetcher.ErrNetwork

	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	h.factory.all()[0].fireParsed()
	require.Equal(t, Playing, h.session.State())

	err := h.session.SelectEpisode(context.Background(), "ep-2")
	assert.ErrorIs(t, err, fetcher.ErrNetwork)
	assert.ErrorIs(t, h.session.NoLink("ep-2"), fetcher.ErrNetwork)

	assert.Equal(t, Playing, h.session.State())
	assert.Equal(t, "ep-1", h.session.EpisodeId())
	assert.Equal(t, "https://cdn/ep-1.m3u8", h.session.Current().MustGet().Url)
	require.Len(t, h.factory.all(), 1)
	assert.False(t, h.factory.all()[0].isDestroyed())
	assert.NoError(t, h.session.NoLink("ep-1"))
}

func TestStaleSelectionIsDiscarded(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-a"] = []types.VideoVariant{hls("https://cdn/a.m3u8", "360p")}
	h.fetcher.sources["ep-b"] = []types.VideoVariant{hls("https://cdn/b.m3u8", "360p")}
	gateA := h.fetcher.gate("ep-a")

	errA := make(chan error, 1)
	go func() { errA <- h.session.SelectEpisode(context.Background(), "ep-a") }()
	require.Equal(t, "ep-a", <-h.fetcher.started)

	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-b"))
	<-h.fetcher.started

	close(gateA)
	assert.ErrorIs(t, <-errA, resource.ErrStale)

	assert.Equal(t, "ep-b", h.session.EpisodeId())
	assert.Equal(t, "https://cdn/b.m3u8", h.session.Current().MustGet().Url)
	require.Len(t, h.factory.all(), 1)
	assert.Equal(t, "https://cdn/b.m3u8", h.factory.all()[0].src)
}

func TestSelectQualityReplacesDecoder(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{
		hls("https://cdn/360.m3u8", "360p"),
		hls("https://cdn/720.m3u8", "720p"),
	}
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	first := h.factory.all()[0]
	first.fireParsed()

	require.NoError(t, h.session.SelectQuality("720p"))
	require.Len(t, h.factory.all(), 2)
	assert.True(t, first.isDestroyed())
	assert.Equal(t, 1, h.factory.live())
	assert.Equal(t, "720p", h.session.Current().MustGet().Quality)
	assert.Equal(t, Ready, h.session.State())

	// the destroyed decoder can no longer start playback
	first.fireParsed()
	assert.Equal(t, Ready, h.session.State())

	h.factory.all()[1].fireParsed()
	assert.Equal(t, Playing, h.session.State())
	assert.Equal(t, []State{Loading, Ready, Playing, Switching, Loading, Ready, Playing}, h.transitions())

	// same quality again is a no-op
	require.NoError(t, h.session.SelectQuality("720p"))
	assert.Len(t, h.factory.all(), 2)
	assert.Equal(t, Playing, h.session.State())
}

func TestSelectQualityErrors(t *testing.T) {
	h := newHarness()
	assert.ErrorIs(t, h.session.SelectQuality("360p"), ErrNoSelection)

	h.fetcher.sources["ep-1"] = []types.VideoVariant{mp4("https://cdn/360.mp4", "360p")}
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	assert.ErrorIs(t, h.session.SelectQuality("1080p"), ErrQualityUnavailable)
	assert.Equal(t, "360p", h.session.Current().MustGet().Quality)
}

func TestSelectQualityAbandonsPendingEpisode(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{
		mp4("https://cdn/1-360.mp4", "360p"),
		mp4("https://cdn/1-720.mp4", "720p"),
	}
	h.fetcher.sources["ep-2"] = []types.VideoVariant{mp4("https://cdn/2-360.mp4", "360p")}
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	<-h.fetcher.started

	gate := h.fetcher.gate("ep-2")
	errB := make(chan error, 1)
	go func() { errB <- h.session.SelectEpisode(context.Background(), "ep-2") }()
	<-h.fetcher.started

	require.NoError(t, h.session.SelectQuality("720p"))
	close(gate)
	assert.ErrorIs(t, <-errB, resource.ErrStale)

	assert.Equal(t, "ep-1", h.session.EpisodeId())
	assert.Equal(t, "https://cdn/1-720.mp4", h.session.Current().MustGet().Url)
	assert.Equal(t, Playing, h.session.State())
}

func TestDecoderErrorKeepsSelection(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{hls("https://cdn/360.m3u8", "360p")}
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))

	h.factory.all()[0].fireError(ErrEmptyManifest)
	assert.Equal(t, Ready, h.session.State())
	assert.True(t, h.session.Current().IsPresent())
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{hls("https://cdn/360.m3u8", "360p")}
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	d := h.factory.all()[0]

	require.NoError(t, h.session.Close())
	assert.True(t, d.isDestroyed())
	assert.Equal(t, 0, h.factory.live())
	assert.Equal(t, Idle, h.session.State())
	assert.Equal(t, []string{"stop"}, h.surface.Calls())

	assert.ErrorIs(t, h.session.SelectEpisode(context.Background(), "ep-1"), ErrClosed)
	assert.ErrorIs(t, h.session.SelectQuality("360p"), ErrClosed)
	assert.NoError(t, h.session.Close())
}

func TestCloseDropsPendingSelection(t *testing.T) {
	h := newHarness()
	h.fetcher.sources["ep-1"] = []types.VideoVariant{hls("https://cdn/360.m3u8", "360p")}
	gate := h.fetcher.gate("ep-1")

	done := make(chan error, 1)
	go func() { done <- h.session.SelectEpisode(context.Background(), "ep-1") }()
	<-h.fetcher.started

	require.NoError(t, h.session.Close())
	close(gate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, resource.ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("selection did not return")
	}
	assert.Empty(t, h.factory.all())
}

func TestAtMostOneLiveDecoder(t *testing.T) {
	h := newHarness()
	for _, id := range []string{"ep-1", "ep-2", "ep-3"} {
		h.fetcher.sources[id] = []types.VideoVariant{
			hls("https://cdn/"+id+"/360.m3u8", "360p"),
			hls("https://cdn/"+id+"/720.m3u8", "720p"),
		}
	}

	for _, id := range []string{"ep-1", "ep-2", "ep-3"} {
		require.NoError(t, h.session.SelectEpisode(context.Background(), id))
		assert.Equal(t, 1, h.factory.live())
		require.NoError(t, h.session.SelectQuality("720p"))
		assert.Equal(t, 1, h.factory.live())
	}
	assert.Len(t, h.factory.all(), 6)
}

func TestEveryDecoderDestroyedExactlyOnce(t *testing.T) {
	h := newHarness()
	ids := []string{"ep-1", "ep-2", "ep-3", "ep-4"}
	for _, id := range ids {
		h.fetcher.sources[id] = []types.VideoVariant{
			hls("https://cdn/"+id+"/360.m3u8", "360p"),
			hls("https://cdn/"+id+"/720.m3u8", "720p"),
		}
	}

	// ep-4 is superseded by everything below
	gate := h.fetcher.gate("ep-4")
	stale := make(chan error, 1)
	go func() { stale <- h.session.SelectEpisode(context.Background(), "ep-4") }()
	require.Equal(t, "ep-4", <-h.fetcher.started)

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for i, id := range ids[:3] {
			quality := []string{"360p", "720p"}[(round+i)%2]
			wg.Add(2)
			go func(id string) {
				defer wg.Done()
				h.session.SelectEpisode(context.Background(), id)
			}(id)
			go func(q string) {
				defer wg.Done()
				h.session.SelectQuality(q)
			}(quality)
		}
	}
	wg.Wait()
	close(gate)
	assert.ErrorIs(t, <-stale, resource.ErrStale)

	// sequential switches on top, with a parsed manifest in between
	require.NoError(t, h.session.SelectEpisode(context.Background(), "ep-1"))
	for _, d := range h.factory.all() {
		d.fireParsed()
	}
	require.NoError(t, h.session.SelectQuality("720p"))
	require.NoError(t, h.session.SelectQuality("720p"))
	assert.Equal(t, 1, h.factory.live())

	require.NoError(t, h.session.Close())
	require.NoError(t, h.session.Close())

	built := h.factory.all()
	require.NotEmpty(t, built)
	destroyed := 0
	for i, d := range built {
		assert.Equal(t, 1, d.destroyCount(), "decoder %d", i)
		destroyed += d.destroyCount()
	}
	assert.Equal(t, len(built), destroyed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "switching", Switching.String())
	assert.Equal(t, "unknown", State(9).String())
}

func qualitiesOf(vs []types.VideoVariant) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Quality)
	}
	return out
}
