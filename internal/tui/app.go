package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/loading"
	"github.com/mabhi256/heapref/internal/referrers"
	"github.com/mabhi256/heapref/utils"
)

const PageSize = 10 // rows moved by page up/down

// opDoneMsg reports the end of a loading operation
type opDoneMsg struct {
	op    *loading.Operation
	value any
	err   error
}

func waitFor(op *loading.Operation) tea.Cmd {
	return func() tea.Msg {
		v, err := op.Wait()
		return opDoneMsg{op: op, value: v, err: err}
	}
}

func New(worker *loading.Worker, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = utils.InfoStyle

	return &Model{
		worker:  worker,
		opts:    opts,
		logger:  logger,
		view:    LoadingView,
		back:    LoadingView,
		spinner: sp,
		help:    help.New(),
		keys:    DefaultKeyMap(),
		detail:  viewport.New(0, 0),
	}
}

// Run opens the browser and runs load as its first operation
func Run(title string, load func(context.Context) (*Session, error), opts Options) error {
	worker := loading.NewWorker(loading.WithLogger(opts.Logger))
	defer worker.Close()

	m := New(worker, opts)
	m.initial = func(ctx context.Context) (any, error) {
		s, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	m.initialTitle = title

	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	if m.initial == nil {
		return nil
	}
	return m.start(m.initialTitle, m.initial)
}

// start submits task and switches to the loading view
func (m *Model) start(title string, task loading.Task) tea.Cmd {
	op, err := m.worker.Submit(context.Background(), title, task)
	if err != nil {
		m.fail(err)
		return nil
	}

	if m.view != LoadingView && m.view != ErrorView {
		m.back = m.view
	}
	m.op = op
	m.opTitle = title
	m.view = LoadingView
	m.logger.Debug("operation submitted", "op", op.ID, "title", title)
	return tea.Batch(m.spinner.Tick, waitFor(op))
}

func (m *Model) fail(err error) {
	m.err = err
	m.detail.SetContent(loading.Detail(err))
	m.detail.GotoTop()
	m.view = ErrorView
}

func (m *Model) apply(s *Session) {
	if s.Inspector != nil {
		m.insp = s.Inspector
	}

	switch {
	case s.Top != nil:
		m.top = s.Top
		m.stats = s.Stats
		if !m.top.Expanded {
			referrers.Expand(m.top, nil)
		}
		m.rows = flatten(m.top)
		m.cursor, m.offset = 0, 0
		m.view = TreeView

	case s.Strings != nil:
		m.strs = s.Strings
		m.entries = s.Entries
		m.strTitle = s.StringsTitle
		m.strCursor, m.strOffset = 0, 0
		m.view = StringsView
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.detail.Width = msg.Width - 4
		m.detail.Height = max(msg.Height-8, 1)

	case spinner.TickMsg:
		if m.view != LoadingView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opDoneMsg:
		return m.finish(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.op != nil {
				m.op.Cancel()
			}
			return m, tea.Quit
		}

		switch m.view {
		case LoadingView:
			return m.handleLoadingKeys(msg)
		case ErrorView:
			return m.handleErrorKeys(msg)
		case TreeView:
			return m.handleTreeKeys(msg)
		case StringsView:
			return m.handleStringsKeys(msg)
		}
	}

	return m, nil
}

func (m *Model) finish(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.op != m.op {
		return m, nil
	}

	switch {
	case msg.op.Cancelled():
		m.logger.Debug("operation cancelled", "op", msg.op.ID)
		if m.back == LoadingView {
			return m, tea.Quit
		}
		m.view = m.back

	case msg.err != nil:
		m.fail(msg.err)

	default:
		if s, ok := msg.value.(*Session); ok && s != nil {
			m.apply(s)
		} else if m.back != LoadingView {
			m.view = m.back
		}
	}
	return m, nil
}

func (m *Model) handleLoadingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.op == nil {
		// nothing started yet, so there is no view to fall back to
		if key.Matches(msg, m.keys.Back, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.op.Cancel()
	case key.Matches(msg, m.keys.Quit):
		m.op.Cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleErrorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		if m.back == LoadingView {
			return m, tea.Quit
		}
		m.err = nil
		m.view = m.back
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	default:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleTreeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.rows) == 0 {
		return m, nil
	}
	current := m.rows[m.cursor]

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.cursor = min(m.cursor+1, len(m.rows)-1)
	case key.Matches(msg, m.keys.PageUp):
		m.cursor = max(m.cursor-PageSize, 0)
	case key.Matches(msg, m.keys.PageDown):
		m.cursor = min(m.cursor+PageSize, len(m.rows)-1)

	case key.Matches(msg, m.keys.Expand):
		m.expand(current)
	case key.Matches(msg, m.keys.Collapse):
		m.collapse(current)
	case key.Matches(msg, m.keys.Select):
		if current.node.Expanded && current.depth > 0 {
			m.collapse(current)
		} else {
			m.expand(current)
		}

	case key.Matches(msg, m.keys.Strings):
		if t, offset, ok := fieldOfRow(current); ok {
			title := "Strings held by " + t.String() + current.node.FieldChain
			return m, m.start("Scanning "+title, m.fieldStringsTask(t, offset, title))
		}
	case key.Matches(msg, m.keys.AllStrings):
		return m, m.start("Summarizing strings", m.allStringsTask())
	case key.Matches(msg, m.keys.Back):
		if m.strs != nil {
			m.view = StringsView
		}
	}

	m.offset = scrollTo(m.cursor, m.offset, m.bodyHeight())
	return m, nil
}

// fieldOfRow returns the referrer type and offset of a first-level field group,
// the field that holds the targets directly
func fieldOfRow(r row) (*referrers.Type, int, bool) {
	if r.depth != 1 || r.node.Kind != referrers.FieldReferenceGroup {
		return nil, 0, false
	}
	return r.node.NearestReferrer()
}

func (m *Model) expand(r row) {
	if !expandable(r.node) || r.node.Expanded {
		return
	}
	referrers.Expand(r.node, r.ancestors)
	m.rows = flatten(m.top)
}

func (m *Model) collapse(r row) {
	if r.node.Expanded && r.depth > 0 {
		r.node.Expanded = false
		r.node.Children = nil
		m.rows = flatten(m.top)
		return
	}
	if r.parent >= 0 {
		m.cursor = r.parent
	}
}

func (m *Model) handleStringsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.strCursor = max(m.strCursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.strCursor = min(m.strCursor+1, max(len(m.entries)-1, 0))
	case key.Matches(msg, m.keys.PageUp):
		m.strCursor = max(m.strCursor-PageSize, 0)
	case key.Matches(msg, m.keys.PageDown):
		m.strCursor = min(m.strCursor+PageSize, max(len(m.entries)-1, 0))
	case key.Matches(msg, m.keys.Select), key.Matches(msg, m.keys.Expand):
		if len(m.entries) > 0 {
			entry := m.entries[m.strCursor]
			return m, m.start("Finding referrers of "+StringLabel(entry.Value), m.referrersTask(entry))
		}
	case key.Matches(msg, m.keys.Back):
		if m.top != nil {
			m.view = TreeView
		}
	}

	m.strOffset = scrollTo(m.strCursor, m.strOffset, m.bodyHeight())
	return m, nil
}

// scrollTo returns the offset that keeps cursor inside a window of height rows
func scrollTo(cursor, offset, height int) int {
	if cursor < offset {
		return cursor
	}
	if cursor >= offset+height {
		return cursor - height + 1
	}
	return offset
}

func (m *Model) bodyHeight() int {
	// header, separator and help bar
	return max(m.height-3, 1)
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	switch m.view {
	case LoadingView:
		return m.renderLoading()
	case ErrorView:
		return m.renderError()
	case StringsView:
		return m.renderStrings()
	default:
		return m.renderTree()
	}
}

func (m *Model) renderLoading() string {
	elapsed := ""
	if m.op != nil {
		elapsed = utils.FormatElapsed(m.op.Elapsed())
	}
	box := utils.BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		m.spinner.View()+" "+m.opTitle,
		"",
		utils.MutedStyle.Render(elapsed+" · esc to cancel"),
	))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) renderError() string {
	msg := "unknown error"
	if m.err != nil {
		msg = m.err.Error()
	}
	hint := "esc back · q quit · ↑/↓ scroll"
	if m.back == LoadingView {
		hint = "esc/q quit · ↑/↓ scroll"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		utils.ErrorStyle.Width(m.width-2).Render(utils.TruncateString(msg, max(m.width-8, 4))),
		m.detail.View(),
		utils.MutedStyle.Render(hint),
	)
}

func (m *Model) header(title, status string) string {
	line := title
	if status != "" {
		line += " • " + status
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		utils.HeaderStyle.Width(m.width).Render(utils.TruncateString(line, max(m.width-2, 4))),
		utils.MutedStyle.Render(strings.Repeat("─", m.width)),
	)
}

func (m *Model) renderTree() string {
	status := fmt.Sprintf("%d roots · %d objects visited · %d nodes",
		m.stats.RootsScanned, m.stats.Visited, m.stats.Nodes)
	head := m.header("heapref referrers", status)

	height := m.bodyHeight()
	lines := make([]string, 0, height)
	for i := m.offset; i < len(m.rows) && len(lines) < height; i++ {
		lines = append(lines, m.renderRow(i))
	}
	if len(m.rows) == 1 && len(m.top.Children) == 0 {
		lines = append(lines, utils.MutedStyle.Render("  not reachable from any GC root"))
	}
	body := lipgloss.NewStyle().Height(height).Render(strings.Join(lines, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, head, body, m.help.View(m.keys))
}

func (m *Model) renderRow(i int) string {
	r := m.rows[i]

	marker := "  "
	switch {
	case r.node.Expanded:
		marker = "▾ "
	case expandable(r.node):
		marker = "▸ "
	}

	line := strings.Repeat("  ", r.depth) + marker + label(r.node, colorTheme)
	if i == m.cursor {
		return utils.SelectedStyle.Width(m.width).Render(line)
	}
	return line
}

func (m *Model) renderStrings() string {
	status := fmt.Sprintf("%d strings · %d unique · %s wasted (%.1f%%)",
		m.strs.Objects, m.strs.Unique, utils.FormatBytes(m.strs.Wasted), m.strs.AverageOverhead())
	head := m.header(m.strTitle, status)

	var maxWasted uint64
	for _, e := range m.entries {
		maxWasted = max(maxWasted, e.Wasted())
	}

	height := m.bodyHeight()
	lines := make([]string, 0, height)
	valueWidth := max(m.width-40, 10)
	for i := m.strOffset; i < len(m.entries) && len(lines) < height; i++ {
		e := m.entries[i]
		share := 0.0
		if maxWasted > 0 {
			share = float64(e.Wasted()) / float64(maxWasted)
		}
		line := fmt.Sprintf("%7d× %9s %s %s",
			e.Count,
			utils.FormatBytes(e.Wasted()),
			utils.CreateProgressBar(share, 10, utils.WarningColor),
			utils.TruncateString(utils.SanitizeString(e.Value), valueWidth))
		if i == m.strCursor {
			line = utils.SelectedStyle.Width(m.width).Render(line)
		}
		lines = append(lines, line)
	}
	if len(m.entries) == 0 {
		lines = append(lines, utils.MutedStyle.Render("  no strings"))
	}
	body := lipgloss.NewStyle().Height(height).Render(strings.Join(lines, "\n"))

	return lipgloss.JoinVertical(lipgloss.Left, head, body, m.help.View(m.keys))
}
