// Package tui is an interactive terminal browser over the job index.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobrag/internal/model"
	"github.com/amishk599/jobrag/internal/retrieval"
)

// Searcher answers retrieval requests.
type Searcher interface {
	Query(ctx context.Context, req retrieval.Request) (retrieval.Response, error)
}

// Lines per result in the list view (title + subtitle + blank separator).
const resultItemHeight = 3

type viewState int

const (
	viewSearch viewState = iota
	viewList
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(16)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// searchDoneMsg is sent when an async query completes.
type searchDoneMsg struct {
	resp retrieval.Response
	err  error
}

// answerDoneMsg is sent when an async generated answer completes.
type answerDoneMsg struct {
	answer string
	err    error
}

type searchModel struct {
	searcher  Searcher
	nResults  int
	aiEnabled bool

	input    textinput.Model
	list     viewport.Model
	detail   viewport.Model
	view     viewState
	width    int
	height   int
	ready    bool
	loading  bool
	errMsg   string
	query    string
	results  []model.SearchResult
	cursor   int
	cached   bool
	answer   string
	thinking bool
}

func newSearchModel(searcher Searcher, nResults int, aiEnabled bool, initial string) searchModel {
	ti := textinput.New()
	ti.Placeholder = "search job listings, e.g. remote data analyst"
	ti.Prompt = "🔎 "
	ti.CharLimit = 256
	ti.SetValue(initial)
	ti.Focus()
	return searchModel{
		searcher:  searcher,
		nResults:  nResults,
		aiEnabled: aiEnabled,
		input:     ti,
	}
}

func (m searchModel) Init() tea.Cmd {
	if strings.TrimSpace(m.input.Value()) != "" {
		return tea.Batch(textinput.Blink, func() tea.Msg { return submitMsg{} })
	}
	return textinput.Blink
}

// submitMsg runs the query already typed into the input.
type submitMsg struct{}

func (m searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case submitMsg:
		return m.submit()

	case searchDoneMsg:
		m.loading = false
		m.cursor = 0
		m.answer = ""
		if msg.err != nil && !retrieval.IsNoResults(msg.err) {
			m.errMsg = fmt.Sprintf("search failed: %v", msg.err)
			m.results = nil
		} else {
			m.errMsg = ""
			m.results = msg.resp.Results
			m.cached = msg.resp.Cached
			if len(m.results) > 0 {
				m.view = viewList
				m.input.Blur()
			}
		}
		m.recalcContent()
		return m, nil

	case answerDoneMsg:
		m.thinking = false
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("answer failed: %v", msg.err)
		} else {
			m.errMsg = ""
			m.answer = msg.answer
		}
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case viewDetail:
			return m.updateDetailView(msg)
		case viewList:
			return m.updateListView(msg)
		default:
			return m.updateSearchView(msg)
		}
	}
	return m, nil
}

func (m searchModel) updateSearchView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "tab", "down":
		if len(m.results) > 0 {
			m.view = viewList
			m.input.Blur()
			m.recalcContent()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m searchModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/", "esc":
		m.view = viewSearch
		m.input.Focus()
		return m, textinput.Blink
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.results)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.results)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		if len(m.results) > 0 {
			m.view = viewDetail
			m.detail.SetContent(m.renderDetail())
			m.detail.SetYOffset(0)
		}
		return m, nil
	case "a":
		return m.askForAnswer()
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m searchModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if url := m.results[m.cursor].Metadata[string(model.FieldURL)]; url != "" {
			openURL(url)
		}
		return m, nil
	case "a":
		return m.askForAnswer()
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m searchModel) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.loading {
		return m, nil
	}
	m.query = q
	m.loading = true
	m.errMsg = ""
	searcher, n := m.searcher, m.nResults
	return m, func() tea.Msg {
		resp, err := searcher.Query(context.Background(), retrieval.Request{Query: q, NResults: n})
		return searchDoneMsg{resp: resp, err: err}
	}
}

func (m searchModel) askForAnswer() (tea.Model, tea.Cmd) {
	if !m.aiEnabled || m.thinking || m.query == "" || m.answer != "" {
		return m, nil
	}
	m.thinking = true
	m.recalcContent()
	searcher, q, n := m.searcher, m.query, m.nResults
	return m, func() tea.Msg {
		resp, err := searcher.Query(context.Background(), retrieval.Request{Query: q, NResults: n, UseAI: true})
		if err == nil && resp.AIResponse == "" {
			err = errors.New("no answer returned")
		}
		return answerDoneMsg{answer: resp.AIResponse, err: err}
	}
}

func (m *searchModel) recalcLayout() {
	// Input (1) + header (1) + border (2) + status bar (1).
	w := max(m.width-4, 20)
	h := max(m.height-5, 5)
	if !m.ready {
		m.list = viewport.New(w, h)
		m.detail = viewport.New(w, h)
		m.ready = true
	} else {
		m.list.Width, m.list.Height = w, h
		m.detail.Width, m.detail.Height = w, h
	}
	m.input.Width = max(m.width-6, 10)
	m.recalcContent()
}

func (m *searchModel) recalcContent() {
	m.list.SetContent(m.renderList())
	if m.view == viewDetail {
		m.detail.SetContent(m.renderDetail())
	}
}

func (m *searchModel) ensureCursorVisible() {
	top := m.cursor * resultItemHeight
	bottom := top + resultItemHeight - 1
	if top < m.list.YOffset {
		m.list.SetYOffset(top)
	} else if bottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m searchModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	input := m.input.View()

	if m.view == viewDetail {
		body := activeBorderStyle.Width(m.width - 2).Render(m.detail.View())
		status := " o open URL  esc back  ↑/↓ scroll  q quit"
		if m.aiEnabled {
			status = " o open URL  a ask AI  esc back  ↑/↓ scroll  q quit"
		}
		return input + "\n" + headerStyle.Render("Listing") + "\n" + body + "\n" + statusBarStyle.Width(m.width).Render(status)
	}

	border := inactiveBorderStyle
	if m.view == viewList {
		border = activeBorderStyle
	}
	header := fmt.Sprintf("Results (%d)", len(m.results))
	switch {
	case m.loading:
		header += "  searching..."
	case m.cached:
		header += "  cached"
	}
	body := border.Width(m.width - 2).Render(m.list.View())

	status := " enter search  tab results  esc quit"
	if m.view == viewList {
		status = " ↑/↓ cursor  enter detail  / new search  q quit"
		if m.aiEnabled {
			status = " ↑/↓ cursor  enter detail  a ask AI  / new search  q quit"
		}
	}
	return input + "\n" + headerStyle.Render(header) + "\n" + body + "\n" + statusBarStyle.Width(m.width).Render(status)
}

func (m searchModel) renderList() string {
	var b strings.Builder
	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("⚠ "+m.errMsg) + "\n\n")
	}
	if len(m.results) == 0 {
		if m.query != "" && !m.loading && m.errMsg == "" {
			b.WriteString("  (no matching listings)")
		}
		return b.String()
	}
	b.WriteString(m.renderAnswer())

	for i, r := range m.results {
		tSt, sSt, prefix := titleStyle, subtitleStyle, "  "
		if m.view != viewSearch && i == m.cursor {
			tSt, sSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}
		title := r.Metadata[string(model.FieldTitle)]
		if title == "" {
			title = firstLine(r.Document)
		}
		b.WriteString(prefix + tSt.Render(title) + "\n")
		b.WriteString(prefix + sSt.Render(subtitle(r)) + "\n")
		if i < len(m.results)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m searchModel) renderAnswer() string {
	switch {
	case m.thinking:
		return hintStyle.Render("  asking the model...") + "\n\n"
	case m.answer != "":
		w := max(m.width-8, 20)
		return dividerStyle.Render("── Answer "+strings.Repeat("─", max(w-10, 3))) + "\n" +
			wordWrap(m.answer, w) + "\n" +
			dividerStyle.Render(strings.Repeat("─", w)) + "\n\n"
	}
	return ""
}

func (m searchModel) renderDetail() string {
	if len(m.results) == 0 {
		return ""
	}
	r := m.results[m.cursor]
	var b strings.Builder
	for _, f := range model.CanonicalFields {
		v := r.Metadata[string(f)]
		if v == "" {
			continue
		}
		b.WriteString(labelStyle.Render(string(f)))
		b.WriteString(v)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(labelStyle.Render("Score"))
	b.WriteString(fmt.Sprintf("%.3f\n", r.Score))
	b.WriteString(labelStyle.Render("ID"))
	b.WriteString(r.ID + "\n\n")

	w := max(m.width-8, 20)
	b.WriteString(dividerStyle.Render("── Indexed text "+strings.Repeat("─", max(w-16, 3))) + "\n\n")
	b.WriteString(wordWrap(r.Document, w) + "\n")
	if m.answer != "" || m.thinking {
		b.WriteByte('\n')
		b.WriteString(m.renderAnswer())
	}
	return b.String()
}

func subtitle(r model.SearchResult) string {
	var parts []string
	for _, f := range []model.Field{model.FieldEmployer, model.FieldJobLocation, model.FieldLocationType} {
		if v := r.Metadata[string(f)]; v != "" {
			parts = append(parts, v)
		}
	}
	parts = append(parts, fmt.Sprintf("%.2f", r.Score))
	return strings.Join(parts, " · ")
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		return s[:i]
	}
	return s
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the search browser. initial, when non-empty, is searched
// immediately. aiEnabled turns on the "a" key for generated answers.
func Run(searcher Searcher, nResults int, aiEnabled bool, initial string) error {
	p := tea.NewProgram(newSearchModel(searcher, nResults, aiEnabled, initial), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
