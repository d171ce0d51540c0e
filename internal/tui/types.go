package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/log"

	"github.com/mabhi256/heapref/internal/heap/analyzer"
	"github.com/mabhi256/heapref/internal/heap/inspect"
	"github.com/mabhi256/heapref/internal/loading"
	"github.com/mabhi256/heapref/internal/referrers"
)

type ViewType int

const (
	LoadingView ViewType = iota
	TreeView
	StringsView
	ErrorView
)

// Session is the result of a loading operation. Either Top or Strings is set.
type Session struct {
	Inspector *inspect.Inspector
	Top       *referrers.TreeNode
	Stats     referrers.BuildStats

	Strings      *analyzer.StringSummary
	Entries      []*analyzer.StringEntry
	StringsTitle string
}

// Options carries display limits from the configuration
type Options struct {
	MinCount int
	MinWaste uint64
	Logger   *log.Logger
}

type Model struct {
	worker  *loading.Worker
	op      *loading.Operation
	opTitle string
	opts    Options
	logger  *log.Logger

	initial      loading.Task
	initialTitle string

	view ViewType
	// back is the view shown after a cancelled or failed operation
	back          ViewType
	width, height int

	insp  *inspect.Inspector
	stats referrers.BuildStats
	top   *referrers.TreeNode
	rows  []row

	cursor    int
	offset    int
	strCursor int
	strOffset int

	strs     *analyzer.StringSummary
	strTitle string
	entries  []*analyzer.StringEntry

	err    error
	detail viewport.Model

	spinner spinner.Model
	help    help.Model
	keys    KeyMap
}

type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Expand     key.Binding
	Collapse   key.Binding
	Select     key.Binding
	Strings    key.Binding
	AllStrings key.Binding
	Back       key.Binding
	Quit       key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Expand, k.Collapse, k.Strings, k.AllStrings, k.Back, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Expand, k.Collapse, k.Select},
		{k.Strings, k.AllStrings, k.Back, k.Quit},
	}
}

func k(keys []string, help, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(help, desc),
	)
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:         k([]string{"up", "k"}, "↑/k", "up"),
		Down:       k([]string{"down", "j"}, "↓/j", "down"),
		PageUp:     k([]string{"pgup"}, "pgup", "page up"),
		PageDown:   k([]string{"pgdown"}, "pgdn", "page down"),
		Expand:     k([]string{"right", "l"}, "→/l", "expand"),
		Collapse:   k([]string{"left", "h"}, "←/h", "collapse"),
		Select:     k([]string{"enter"}, "enter", "select"),
		Strings:    k([]string{"s"}, "s", "strings of field"),
		AllStrings: k([]string{"a"}, "a", "all strings"),
		Back:       k([]string{"esc"}, "esc", "back/cancel"),
		Quit:       k([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}
