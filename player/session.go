package player

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/samber/mo"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/resource"
	"github.com/ani/ani-gogo/sources"
	"github.com/ani/ani-gogo/types"
)

type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Switching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Switching:
		return "switching"
	default:
		return "unknown"
	}
}

var (
	ErrClosed             = errors.New("player session closed")
	ErrNoSelection        = errors.New("no episode selected")
	ErrQualityUnavailable = errors.New("quality not available")
)

type Options struct {
	// builds a decoder for manifest streams. Without one, manifest
	// streams are handed to the surface directly.
	NewDecoder DecoderFactory
	// called with the session lock held; must not call back into the
	// session
	OnStateChange func(State)
	Logger        *log.Logger
}

// Session owns the playback of one episode at a time on a single
// surface. At most one decoder exists at any moment and it always
// belongs to the current variant.
type Session struct {
	fetcher  sources.VariantFetcher
	surface  Surface
	opts     Options
	log      *log.Logger
	variants *resource.Resource[[]types.VideoVariant]

	mu        sync.Mutex
	state     State
	episodeId string
	choices   []types.VideoVariant
	current   mo.Option[types.VideoVariant]
	decoder   Decoder
	playing   bool
	noLink    map[string]error
	closed    bool
}

func NewSession(f sources.VariantFetcher, surface Surface, opts Options) *Session {
	return &Session{
		fetcher:  f,
		surface:  surface,
		opts:     opts,
		log:      logger.OrDefault(opts.Logger),
		variants: resource.New[[]types.VideoVariant](),
		current:  mo.None[types.VideoVariant](),
		noLink:   map[string]error{},
	}
}

// SelectEpisode fetches the variants of episodeId and starts its default
// variant. Results of a selection superseded by a newer SelectEpisode or
// SelectQuality are discarded and resource.ErrStale is returned. A failed
// fetch records the episode as having no link and leaves the current
// playback untouched.
func (s *Session) SelectEpisode(ctx context.Context, episodeId string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == Ready || s.state == Playing {
		s.setState(Switching)
	}
	s.setState(Loading)
	s.mu.Unlock()

	_, err := s.variants.Load(ctx, episodeId, func(ctx context.Context) ([]types.VideoVariant, error) {
		raw, err := s.fetcher.Sources(ctx, episodeId)
		if err != nil {
			return nil, err
		}
		filtered := sources.SelectVariants(raw)
		if len(filtered) == 0 {
			return nil, errors.WithMessagef(fetcher.ErrEmptyResult, "episode %s has no selectable variant", episodeId)
		}
		return filtered, nil
	}, func(st resource.State[[]types.VideoVariant]) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if st.Err != nil {
			s.noLink[episodeId] = st.Err
			s.log.Warn("no link", "episode", episodeId, "err", st.Err)
			s.setState(s.restingState())
			return
		}
		delete(s.noLink, episodeId)
		s.switchTo(episodeId, st.Data, sources.PickDefault(st.Data).MustGet())
	})
	return err
}

// SelectQuality switches the current episode to the first variant of the
// given quality. Any episode fetch still in flight is abandoned.
func (s *Session) SelectQuality(quality string) error {
	s.mu.Lock()
	if err := s.checkQualityLocked(quality); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.variants.Invalidate()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkQualityLocked(quality); err != nil {
		return err
	}
	v := sources.SelectByQuality(s.choices, quality).MustGet()
	if cur, ok := s.current.Get(); ok && cur == v {
		s.setState(s.restingState())
		return nil
	}
	s.switchTo(s.episodeId, s.choices, v)
	return nil
}

func (s *Session) checkQualityLocked(quality string) error {
	if s.closed {
		return ErrClosed
	}
	if s.current.IsAbsent() {
		return ErrNoSelection
	}
	if sources.SelectByQuality(s.choices, quality).IsAbsent() {
		return errors.WithMessagef(ErrQualityUnavailable, "%s for episode %s", quality, s.episodeId)
	}
	return nil
}

// Close tears down the decoder and stops the surface. The session cannot
// be used afterwards.
func (s *Session) Close() error {
	s.variants.Invalidate()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardown()
	s.current = mo.None[types.VideoVariant]()
	s.setState(Idle)
	return s.surface.Stop()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Current() mo.Option[types.VideoVariant] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Variants() []types.VideoVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.VideoVariant{}, s.choices...)
}

func (s *Session) EpisodeId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodeId
}

// NoLink returns why episodeId could not be played, or nil.
func (s *Session) NoLink(episodeId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noLink[episodeId]
}

// switchTo replaces whatever plays now with v. Called with s.mu held.
func (s *Session) switchTo(episodeId string, choices []types.VideoVariant, v types.VideoVariant) {
	if s.state != Loading && (s.decoder != nil || s.playing) {
		s.setState(Switching)
	}
	s.teardown()
	s.setState(Loading)

	s.episodeId = episodeId
	s.choices = choices
	s.current = mo.Some(v)
	s.setState(Ready)
	s.log.Info("variant selected", "episode", episodeId, "quality", v.Quality, "manifest", v.IsManifestStream)

	if v.IsManifestStream && s.opts.NewDecoder != nil {
		d := s.opts.NewDecoder()
		s.decoder = d
		d.OnManifestParsed(func(m Manifest) { s.manifestParsed(d, m) })
		d.OnError(func(err error) { s.decoderFailed(d, err) })
		d.LoadSource(v.Url)
		d.AttachMedia(s.surface)
		return
	}

	if err := s.surface.SetSource(v.Url); err != nil {
		s.log.Error("setting source", "url", v.Url, "err", err)
		return
	}
	s.play()
}

func (s *Session) play() {
	if err := s.surface.Play(); err != nil {
		s.log.Error("starting playback", "err", err)
		return
	}
	s.playing = true
	s.setState(Playing)
}

func (s *Session) manifestParsed(d Decoder, m Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.decoder != d {
		return
	}
	s.log.Debug("manifest ready", "url", m.Url, "variants", len(m.Variants), "segments", m.Segments)
	// the surface is only written here, under s.mu, for the live decoder
	src := s.current.MustGet().Url
	if err := s.surface.SetSource(src); err != nil {
		s.log.Error("setting source", "url", src, "err", err)
		return
	}
	s.play()
}

func (s *Session) decoderFailed(d Decoder, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.decoder != d {
		return
	}
	s.log.Error("decoder failed", "episode", s.episodeId, "err", err)
}

// restingState is where a failed fetch leaves the session.
func (s *Session) restingState() State {
	switch {
	case s.playing:
		return Playing
	case s.current.IsPresent():
		return Ready
	default:
		return Idle
	}
}

func (s *Session) teardown() {
	if s.decoder != nil {
		s.decoder.Destroy()
		s.decoder = nil
	}
	s.playing = false
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}
