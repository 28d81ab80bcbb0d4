package gui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/fetcher"
	"github.com/ani/ani-gogo/logger"
	"github.com/ani/ani-gogo/player"
	"github.com/ani/ani-gogo/resource"
	"github.com/ani/ani-gogo/types"
)

const noLinkMessage = "no link available"

const (
	stageSearch = iota
	stageResults
	stageEpisodes
	stagePlayer
)

type Deps struct {
	Fetcher fetcher.Fetcher
	Session *player.Session
	// States receives the session transitions, see StateListener.
	States <-chan player.State
	// AutoSelect starts the first episode as soon as the details arrive.
	AutoSelect bool
	// SetTitle, if set, is told the title of every episode started.
	SetTitle func(string)
	Logger   *log.Logger
	Context  context.Context
}

type AniModel struct {
	textInput                textinput.Model
	choicesModelAnimeList    ChoicesModel
	choicesModelAnimeEpisode ChoicesModel
	choicesModelQuality      ChoicesModel
	err                      error
	// stage 0 is search anime ,
	// stage 1 is selecting the anime from the list
	// stage 2 is selecting an episode
	// stage 3 is selecting the quality of the playing episode
	stage int
	info  string

	fetcher    fetcher.Fetcher
	session    *player.Session
	states     <-chan player.State
	autoSelect bool
	setTitle   func(string)
	log        *log.Logger
	ctx        context.Context

	listing *resource.Resource[*types.SearchPage]
	detail  *resource.Resource[*types.AnimeInfo]

	query     string
	page      *types.SearchPage
	anime     *types.AnimeInfo
	episode   types.Episode
	playState player.State
}

// StateListener adapts a channel to player.Options.OnStateChange. It
// never blocks: the session calls it with its lock held.
func StateListener(ch chan<- player.State) func(player.State) {
	return func(s player.State) {
		select {
		case ch <- s:
		default:
		}
	}
}

func InitialModel(d Deps) tea.Model {
	ti := textinput.New()
	ti.Placeholder = "Death note"
	ti.Focus()
	ti.Width = 50

	ctx := d.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var noLink func(string) bool
	if d.Session != nil {
		noLink = func(id string) bool { return d.Session.NoLink(id) != nil }
	}

	return AniModel{
		textInput:                ti,
		choicesModelAnimeList:    initialChoicesModelForAnimeTitles(),
		choicesModelAnimeEpisode: initialChoicesModelForAnimeEpisode(noLink),
		choicesModelQuality:      initialChoicesModelForQualities(),
		stage:                    stageSearch,
		fetcher:                  d.Fetcher,
		session:                  d.Session,
		states:                   d.States,
		autoSelect:               d.AutoSelect,
		setTitle:                 d.SetTitle,
		log:                      logger.OrDefault(d.Logger),
		ctx:                      ctx,
		listing:                  resource.New[*types.SearchPage](),
		detail:                   resource.New[*types.AnimeInfo](),
	}
}

func (m AniModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.choicesModelAnimeList.Init(),
		m.choicesModelAnimeEpisode.Init(),
		m.choicesModelQuality.Init(),
		waitForState(m.states),
	)
}

func (m AniModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlB:
			if m.stage > stageSearch {
				m.stage--
			}
			return m, nil

		case tea.KeyCtrlN:
			if m.stage == stageResults && m.page != nil && m.page.CanNext() {
				return m.openPage(m.query, m.page.CurrentPage+1)
			}
			return m, nil

		case tea.KeyCtrlP:
			if m.stage == stageResults && m.page != nil && m.page.CanPrev() {
				return m.openPage(m.query, m.page.CurrentPage-1)
			}
			return m, nil

		case tea.KeyEnter:
			return m.enter()
		}

	case tea.WindowSizeMsg:
		m.choicesModelAnimeList, _ = m.choicesModelAnimeList.Update(msg)
		m.choicesModelAnimeEpisode, _ = m.choicesModelAnimeEpisode.Update(msg)
		m.choicesModelQuality, _ = m.choicesModelQuality.Update(msg)
		return m, nil

	case spinner.TickMsg:
		// send the tick message to every choice list, each one only
		// accepts its own ticks
		var c1, c2, c3 tea.Cmd
		m.choicesModelAnimeList, c1 = m.choicesModelAnimeList.Update(msg)
		m.choicesModelAnimeEpisode, c2 = m.choicesModelAnimeEpisode.Update(msg)
		m.choicesModelQuality, c3 = m.choicesModelQuality.Update(msg)
		return m, tea.Batch(c1, c2, c3)

	case PageLoadedEvent:
		if msg.query != m.query {
			return m, nil
		}
		m.page = msg.page
		m.info = pageInfo(msg.page)
		m.choicesModelAnimeList = m.choicesModelAnimeList.show(toChoices(msg.page.Results))
		return m, nil

	case InfoLoadedEvent:
		m.anime = msg.info
		m.info = fmt.Sprintf("%s - %d episodes", msg.info.Title, len(msg.info.Episodes))
		m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.show(toChoices(msg.info.Episodes))
		if m.autoSelect && m.stage == stageEpisodes && len(msg.info.Episodes) > 0 {
			m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.selectIndex(0)
			return m.playEpisode(msg.info.Episodes[0])
		}
		return m, nil

	case FetchFailedEvent:
		m.err = msg.err
		m.info = ""
		// stop the spinner of the list that was waiting
		switch msg.stage {
		case stageResults:
			m.choicesModelAnimeList = m.choicesModelAnimeList.show(nil)
		case stageEpisodes:
			m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.show(nil)
		}
		return m, nil

	case EpisodeSelectedEvent:
		if msg.episode.Id != m.episode.Id {
			return m, nil
		}
		if msg.err != nil {
			if errors.Is(msg.err, player.ErrClosed) {
				m.err = msg.err
				return m, nil
			}
			m.info = fmt.Sprintf("episode #%v: %s", msg.episode.Number, noLinkMessage)
			m.choicesModelQuality = m.choicesModelQuality.show(nil)
			m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.refresh()
			m.stage = stageEpisodes
			return m, nil
		}
		m.info = ""
		m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.refresh()
		return m.showQualities(), nil

	case QualitySelectedEvent:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		return m.showQualities(), nil

	case PlaybackStateEvent:
		m.playState = msg.state
		return m, waitForState(m.states)

	case error:
		m.err = msg
		return m, nil
	}

	// only the component of the current stage receives the rest
	switch m.stage {
	case stageSearch:
		m.textInput, cmd = m.textInput.Update(msg)
	case stageResults:
		m.choicesModelAnimeList, cmd = m.choicesModelAnimeList.Update(msg)
	case stageEpisodes:
		m.choicesModelAnimeEpisode, cmd = m.choicesModelAnimeEpisode.Update(msg)
	case stagePlayer:
		m.choicesModelQuality, cmd = m.choicesModelQuality.Update(msg)
	}

	return m, cmd
}

func (m AniModel) enter() (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageSearch:
		// an empty search lists the top airing anime
		m.query = strings.TrimSpace(m.textInput.Value())
		return m.openPage(m.query, 1)

	case stageResults:
		selected, ok := m.choicesModelAnimeList.getSelectedChoice()
		if !ok {
			return m, nil
		}
		anime := selected.(types.Anime)
		m.stage = stageEpisodes
		m.err = nil
		m.anime = nil
		m.info = "fetching data..."
		m.choicesModelAnimeEpisode = m.choicesModelAnimeEpisode.startLoading(anime.Title + " episodes")
		return m, m.loadInfo(anime.Id)

	case stageEpisodes:
		selected, ok := m.choicesModelAnimeEpisode.getSelectedChoice()
		if !ok {
			return m, nil
		}
		return m.playEpisode(selected.(types.Episode))

	case stagePlayer:
		selected, ok := m.choicesModelQuality.getSelectedChoice()
		if !ok {
			return m, nil
		}
		return m, m.selectQuality(selected.(types.VideoVariant).Quality)
	}
	return m, nil
}

func (m AniModel) openPage(query string, page int) (tea.Model, tea.Cmd) {
	m.stage = stageResults
	m.err = nil
	m.info = "fetching data..."
	m.choicesModelAnimeList = m.choicesModelAnimeList.startLoading(listingTitle(query))
	return m, m.loadPage(query, page)
}

func (m AniModel) playEpisode(ep types.Episode) (tea.Model, tea.Cmd) {
	m.stage = stagePlayer
	m.err = nil
	m.episode = ep
	m.info = fmt.Sprintf("loading episode #%v...", ep.Number)
	m.choicesModelQuality = m.choicesModelQuality.startLoading(fmt.Sprintf("episode #%v qualities", ep.Number))
	if m.setTitle != nil {
		m.setTitle(m.episodeTitle(ep))
	}
	return m, m.selectEpisode(ep)
}

func (m AniModel) showQualities() AniModel {
	variants := m.session.Variants()
	m.choicesModelQuality = m.choicesModelQuality.show(toChoices(variants))
	if cur, ok := m.session.Current().Get(); ok {
		for i, v := range variants {
			if v == cur {
				m.choicesModelQuality = m.choicesModelQuality.selectIndex(i)
				break
			}
		}
	}
	return m
}

func (m AniModel) episodeTitle(ep types.Episode) string {
	if m.anime == nil {
		return fmt.Sprintf("episode %v", ep.Number)
	}
	return fmt.Sprintf("%s - episode %v", m.anime.Title, ep.Number)
}

// commands

func (m AniModel) loadPage(query string, page int) tea.Cmd {
	return func() tea.Msg {
		st, err := m.listing.Load(m.ctx, fmt.Sprintf("%s#%d", query, page), func(ctx context.Context) (*types.SearchPage, error) {
			if query == "" {
				return m.fetcher.TopAiring(ctx, page)
			}
			return m.fetcher.Search(ctx, query, page)
		})
		if errors.Is(err, resource.ErrStale) {
			return nil
		}
		if err != nil {
			m.log.Error("listing", "query", query, "page", page, "err", err)
			return FetchFailedEvent{stage: stageResults, err: err}
		}
		return PageLoadedEvent{query: query, page: st.Data}
	}
}

func (m AniModel) loadInfo(animeId string) tea.Cmd {
	return func() tea.Msg {
		st, err := m.detail.Load(m.ctx, animeId, func(ctx context.Context) (*types.AnimeInfo, error) {
			return m.fetcher.Info(ctx, animeId)
		})
		if errors.Is(err, resource.ErrStale) {
			return nil
		}
		if err != nil {
			m.log.Error("anime info", "id", animeId, "err", err)
			return FetchFailedEvent{stage: stageEpisodes, err: err}
		}
		return InfoLoadedEvent{info: st.Data}
	}
}

func (m AniModel) selectEpisode(ep types.Episode) tea.Cmd {
	return func() tea.Msg {
		err := m.session.SelectEpisode(m.ctx, ep.Id)
		if errors.Is(err, resource.ErrStale) {
			return nil
		}
		return EpisodeSelectedEvent{episode: ep, err: err}
	}
}

func (m AniModel) selectQuality(quality string) tea.Cmd {
	return func() tea.Msg {
		return QualitySelectedEvent{quality: quality, err: m.session.SelectQuality(quality)}
	}
}

func waitForState(states <-chan player.State) tea.Cmd {
	if states == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-states
		if !ok {
			return nil
		}
		return PlaybackStateEvent{state: s}
	}
}

func listingTitle(query string) string {
	if query == "" {
		return "top airing"
	}
	return query
}

func pageInfo(p *types.SearchPage) string {
	info := fmt.Sprintf("page %d", p.CurrentPage)
	if total := p.TotalPages(); total > 0 {
		info += fmt.Sprintf("/%d", total)
	}
	return info
}

func renderANewLine(msg string, highlight bool) string {
	highlightText := lipgloss.NewStyle().TabWidth(-1).Foreground(lipgloss.Color("#2c70b0"))
	normalText := lipgloss.NewStyle().TabWidth(-1).Foreground(lipgloss.Color("#f5f3f2"))

	styledText := normalText.Render(msg)
	if highlight {
		styledText = highlightText.Render(msg)
	}

	// Align text if needed
	return lipgloss.NewStyle().Align(lipgloss.Left).Render(styledText)
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0474c"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m AniModel) helpLine() string {
	switch m.stage {
	case stageSearch:
		return "enter search (empty for top airing) • esc quit"
	case stageResults:
		return "enter select • ctrl+n/ctrl+p page • ctrl+b back • esc quit"
	default:
		return "enter select • ctrl+b back • esc quit"
	}
}

func (m AniModel) View() string {
	msg := ""

	msg += m.info
	msg += "\n"
	if m.err != nil {
		msg += errorStyle.Render(m.err.Error())
		msg += "\n"
	}

	switch m.stage {
	case stageSearch:
		msg += renderANewLine("Search anime ", true)
		msg += m.textInput.View()
	case stageResults:
		msg += m.choicesModelAnimeList.View()
	case stageEpisodes:
		msg += m.choicesModelAnimeEpisode.View()
	case stagePlayer:
		status := m.playState.String()
		if cur, ok := m.session.Current().Get(); ok {
			status += " " + cur.Quality
		}
		msg += renderANewLine(m.episodeTitle(m.episode)+" ["+status+"]", true)
		msg += "\n"
		msg += m.choicesModelQuality.View()
	}

	msg += "\n"
	msg += helpStyle.Render(m.helpLine())
	return msg
}
