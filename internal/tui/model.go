package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"eventsearch/internal/domain"
	"eventsearch/internal/retriever"
)

// SearchPort is the TUI-facing subset of the retrieval service.
type SearchPort interface {
	Search(ctx context.Context, query string, topK int) ([]retriever.Result, error)
	Stats() retriever.Stats
}

// Model is the Bubble Tea model for the interactive event search.
type Model struct {
	service   SearchPort
	input     textinput.Model
	viewport  viewport.Model
	results   []retriever.Result
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(service SearchPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe the event you are looking for and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, input: ti, viewport: vp, status: "Ready. Type to search."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + stats
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResults())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				res, err := m.service.Search(context.Background(), q, 10)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.results = nil
				} else if len(res) == 0 {
					m.status = fmt.Sprintf("No matches for %q", q)
					m.results = nil
				} else {
					m.status = fmt.Sprintf("Results for %q", q)
					m.results = res
					m.cursor = 0
					m.lastQuery = q
				}
				m.viewport.SetContent(m.renderResults())
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderResults())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderResults())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current results.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Event Search")
	stats := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.renderStats())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + stats + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderStats() string {
	st := m.service.Stats()
	parts := []string{fmt.Sprintf("%d events", st.Total)}
	for _, state := range []domain.State{domain.StateOngoing, domain.StateScheduled, domain.StateEnded} {
		if n := st.ByState[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, state))
		}
	}
	if st.Mode != "" {
		parts = append(parts, "mode "+st.Mode)
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderResults() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	var b strings.Builder
	for i, r := range m.results {
		line := fmt.Sprintf("%d. %s", i+1, titleOf(r))
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderDetail(m.results[m.cursor]))
	return b.String()
}

func (m Model) renderDetail(r retriever.Result) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("%s  score=%.3f", titleOf(r), r.Score))
	if r.Period != "" {
		lines = append(lines, "When:  "+r.Period+"  ("+string(r.State)+")")
	} else {
		lines = append(lines, "When:  unknown")
	}
	if r.Place != "" {
		lines = append(lines, "Where: "+r.Place)
	}
	if r.Host != "" {
		lines = append(lines, "Host:  "+r.Host)
	}
	if r.URL != "" && r.URL != "#" {
		lines = append(lines, "Link:  "+r.URL)
	}
	return strings.Join(lines, "\n")
}

func titleOf(r retriever.Result) string {
	if r.Title != "" {
		return r.Title
	}
	return fmt.Sprintf("(untitled event %d)", r.ID)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
