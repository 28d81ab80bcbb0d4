package gui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ani/ani-gogo/types"
)

type ChoicesModel struct {
	choices      []any
	cursor       int
	spinner      spinner.Model
	loading      bool
	resultsShown bool

	searchKey        string
	choiceFormatFunc func(any) string

	textInput                textinput.Model
	viewport                 viewport.Model
	firstChoiceVisibleCursor int
}

const vpHight = 20

func getSpinnerForChoices() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Moon
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return s
}

func getFilterTextInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "Filter results"
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 20
	return ti
}

func newChoicesModel(width int, format func(any) string) ChoicesModel {
	return ChoicesModel{
		spinner:          getSpinnerForChoices(),
		textInput:        getFilterTextInput(),
		viewport:         viewport.New(width, vpHight),
		choiceFormatFunc: format,
	}
}

func initialChoicesModelForAnimeTitles() ChoicesModel {
	return newChoicesModel(120, func(i any) string {
		anime := i.(types.Anime)
		if anime.ReleaseDate != "" {
			return fmt.Sprintf("%s (%s)", anime.Title, anime.ReleaseDate)
		}
		return anime.Title
	})
}

// noLink marks episodes whose sources could not be resolved.
func initialChoicesModelForAnimeEpisode(noLink func(episodeId string) bool) ChoicesModel {
	return newChoicesModel(50, func(i any) string {
		episode := i.(types.Episode)
		if noLink != nil && noLink(episode.Id) {
			return fmt.Sprintf("episode #%v (%s)", episode.Number, noLinkMessage)
		}
		return fmt.Sprintf("episode #%v", episode.Number)
	})
}

func initialChoicesModelForQualities() ChoicesModel {
	return newChoicesModel(30, func(i any) string {
		v := i.(types.VideoVariant)
		if v.IsManifestStream {
			return v.Quality + " (hls)"
		}
		return v.Quality
	})
}

func toChoices[T any](items []T) []any {
	b := make([]any, len(items))
	for i := range items {
		b[i] = items[i]
	}
	return b
}

func (m ChoicesModel) getSelectedChoice() (any, bool) {
	filtered := m.getFilteredChoices(m.choices)
	if m.cursor < 0 || m.cursor >= len(filtered) {
		return nil, false
	}
	return filtered[m.cursor], true
}

func (m ChoicesModel) getFilteredChoices(choices []any) []any {
	var filteredChoices []any
	filterKey := strings.ToLower(m.textInput.Value())
	for _, r := range choices {
		formatted := m.choiceFormatFunc(r)
		if filterKey != "" && !strings.Contains(strings.ToLower(formatted), filterKey) {
			continue
		}
		filteredChoices = append(filteredChoices, r)
	}
	return filteredChoices
}

func (m ChoicesModel) getViewportContentFromChoices(choices []any) string {
	content := ""
	filtered := m.getFilteredChoices(choices)
	for i, r := range filtered {
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		content += fmt.Sprintf("%s %v- %s\n", cursor, i+1, m.choiceFormatFunc(r))
	}
	if len(filtered) == 0 {
		content += "No matched results!!\n"
	}
	return content
}

// startLoading clears the list and shows the spinner until show is called.
func (m ChoicesModel) startLoading(key string) ChoicesModel {
	m.searchKey = key
	m.loading = true
	m.resultsShown = false
	m.choices = []any{}
	m.cursor = 0
	m.firstChoiceVisibleCursor = 0
	m.textInput.SetValue("")
	m.viewport.SetYOffset(0)
	return m
}

func (m ChoicesModel) show(results []any) ChoicesModel {
	m.loading = false
	m.choices = results
	m.resultsShown = true
	m.viewport.SetContent(m.getViewportContentFromChoices(results))
	return m
}

func (m ChoicesModel) refresh() ChoicesModel {
	m.viewport.SetContent(m.getViewportContentFromChoices(m.choices))
	return m
}

// selectIndex moves the cursor onto the i-th unfiltered choice.
func (m ChoicesModel) selectIndex(i int) ChoicesModel {
	m.textInput.SetValue("")
	m.cursor = max(0, min(i, len(m.choices)-1))
	m.firstChoiceVisibleCursor = max(0, m.cursor-vpHight+1)
	m.viewport.SetContent(m.getViewportContentFromChoices(m.choices))
	m.viewport.SetYOffset(m.firstChoiceVisibleCursor)
	return m
}

func (m ChoicesModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ChoicesModel) Update(msg tea.Msg) (ChoicesModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if !m.resultsShown {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyDown:
			filtered := m.getFilteredChoices(m.choices)
			if m.cursor < len(filtered)-1 {
				m.cursor++
			}
			if m.cursor > m.firstChoiceVisibleCursor+vpHight-1 {
				m.firstChoiceVisibleCursor++
			}
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
			if m.cursor < m.firstChoiceVisibleCursor {
				m.firstChoiceVisibleCursor--
			}
		case tea.KeyEnter:
			return m, nil
		default:
			// move cursor to top when filtering
			m.cursor = 0
			m.firstChoiceVisibleCursor = 0
			m.textInput, cmd = m.textInput.Update(msg)
		}
		m.viewport.SetContent(m.getViewportContentFromChoices(m.choices))
		m.viewport.SetYOffset(m.firstChoiceVisibleCursor)
		return m, cmd
	}

	return m, nil
}

func (m ChoicesModel) View() string {
	msg := ""

	if m.loading {
		msg += m.spinner.View() + " " + m.searchKey + "\n"
	}

	if m.resultsShown {
		msg += m.textInput.View()
		msg += "\n"
		msg += "Showing " + strconv.Itoa(len(m.getFilteredChoices(m.choices))) + " results for " + m.searchKey + "\n\n"
		msg += m.viewport.View()
	}

	return msg
}
