package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ecco-sh/ecco/internal/logsink"
	"github.com/ecco-sh/ecco/internal/tail"
)

const readBatch = 256

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// tailMsg carries one batch of reader progress into the update loop.
type tailMsg struct {
	lines  []string
	done   bool
	marker logsink.Marker
	err    error
}

type countdownMsg struct{}

type tuiModel struct {
	ctx     context.Context
	reader  *tail.Reader
	logPath string

	viewport viewport.Model
	content  string
	ready    bool

	status    string
	done      bool
	marker    logsink.Marker
	linger    time.Duration
	remaining int

	err error
}

func runTUI(ctx context.Context, opts Options, logger *slog.Logger) error {
	r, err := tail.OpenWait(ctx, opts.LogPath, opts.Grace, tail.Options{
		PollInterval: opts.Poll,
		SkipLines:    opts.Skip,
	})
	if err != nil {
		logger.Error("open log", "path", opts.LogPath, "err", err)
		return err
	}
	defer r.Close()

	m := tuiModel{
		ctx:      ctx,
		reader:   r,
		logPath:  opts.LogPath,
		viewport: viewport.New(0, 0),
		status:   "following",
		linger:   opts.Linger,
	}
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if fm, ok := final.(tuiModel); ok && fm.err != nil {
		logger.Error("tail log", "path", opts.LogPath, "err", fm.err)
		return fm.err
	}
	return nil
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.readCmd(), tea.EnterAltScreen)
}

// readCmd blocks for the next line, then drains whatever else is already
// available so a burst of output arrives as one update.
func (m tuiModel) readCmd() tea.Cmd {
	return func() tea.Msg {
		first, err := m.reader.Next(m.ctx)
		if err != nil {
			if errors.Is(err, tail.ErrDone) {
				marker, _ := m.reader.Marker()
				return tailMsg{done: true, marker: marker}
			}
			return tailMsg{err: err}
		}
		lines := []string{first}
		for len(lines) < readBatch {
			line, state, err := m.reader.TryNext()
			if err != nil {
				return tailMsg{lines: lines, err: err}
			}
			if state == tail.StateDone {
				marker, _ := m.reader.Marker()
				return tailMsg{lines: lines, done: true, marker: marker}
			}
			if state != tail.StateLine {
				break
			}
			lines = append(lines, line)
		}
		return tailMsg{lines: lines}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = t.Width
		m.viewport.Height = t.Height - 4
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.viewport.SetContent(m.content)
		m.ready = true
		return m, nil
	case tea.KeyMsg:
		switch t.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case tailMsg:
		for _, line := range t.lines {
			m.append(line + "\n")
		}
		if t.err != nil {
			m.err = t.err
			m.status = "error: " + t.err.Error()
			return m, tea.Quit
		}
		if t.done {
			m.done = true
			m.marker = t.marker
			m.append("\n" + completionBanner(t.marker) + "\n")
			if m.linger <= 0 {
				return m, tea.Quit
			}
			m.remaining = int(m.linger.Round(time.Second) / time.Second)
			if m.remaining < 1 {
				m.remaining = 1
			}
			m.status = fmt.Sprintf("closing in %d...", m.remaining)
			return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
		}
		return m, m.readCmd()
	case countdownMsg:
		m.remaining--
		if m.remaining <= 0 {
			return m, tea.Quit
		}
		m.status = fmt.Sprintf("closing in %d...", m.remaining)
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	header := titleStyle.Render("=== ECCO LOG VIEWER ===") + "\n" +
		pathStyle.Render("Log: "+m.logPath) + "\n"
	status := m.status
	if m.done {
		if m.marker.State == logsink.StateSucceeded {
			status = okStyle.Render(completionBanner(m.marker)) + "  " + noticeStyle.Render(m.status)
		} else {
			status = failStyle.Render(completionBanner(m.marker)) + "  " + noticeStyle.Render(m.status)
		}
	}
	return header + m.viewport.View() + "\n" + status
}

func (m *tuiModel) append(s string) {
	wasAtBottom := m.viewport.AtBottom()
	m.content += s
	m.viewport.SetContent(m.content)
	if wasAtBottom || !m.ready {
		m.viewport.GotoBottom()
	}
}
