// Package tui provides the BubbleTea-based history browser.
package tui

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/chatnotify/internal/model"
	"github.com/jmylchreest/chatnotify/internal/store"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeList Mode = iota
	ModeDetail
	ModeSearch
	ModeHelp
)

// Model is the main TUI model.
type Model struct {
	store *store.Store

	mode Mode

	// Components
	list        list.Model
	viewport    viewport.Model
	searchInput textinput.Model
	help        help.Model

	// State
	notifications []model.Notification
	selected      *model.Notification
	searchQuery   string
	showDismissed bool
	width         int
	height        int
	ready         bool

	keys KeyMap

	statusMsg string
	statusErr bool

	refreshCh <-chan store.ChangeEvent
}

// notificationItem wraps a notification for the list component.
type notificationItem struct {
	notification model.Notification
}

func (i notificationItem) Title() string {
	return i.notification.Title
}

func (i notificationItem) Description() string {
	n := i.notification
	desc := fmt.Sprintf("[%s] %s", n.Kind, n.RelativeTime())
	if n.Status() != "shown" {
		desc += " (" + n.Status() + ")"
	}
	return desc + " - " + n.BodyTruncated(50)
}

func (i notificationItem) FilterValue() string {
	return i.notification.Title + " " + i.notification.Body
}

// notificationDelegate dims dismissed and replaced notifications.
type notificationDelegate struct {
	list.DefaultDelegate
}

func newNotificationDelegate() notificationDelegate {
	return notificationDelegate{DefaultDelegate: list.NewDefaultDelegate()}
}

// Render renders a list item.
func (d notificationDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(notificationItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	isSelected := index == m.Index()
	inactive := ni.notification.IsDismissed() || ni.notification.ReplacedBy != ""
	itemWidth := m.Width() - d.DefaultDelegate.Styles.NormalTitle.GetHorizontalPadding()

	titleStyle, descStyle := d.DefaultDelegate.Styles.NormalTitle, d.DefaultDelegate.Styles.NormalDesc
	if isSelected {
		titleStyle, descStyle = d.DefaultDelegate.Styles.SelectedTitle, d.DefaultDelegate.Styles.SelectedDesc
	}
	if inactive {
		titleStyle = titleStyle.Foreground(lipgloss.Color("8"))
		descStyle = descStyle.Foreground(lipgloss.Color("8"))
	}

	title := ni.Title()
	if ni.notification.IsDismissed() {
		title = "[d] " + title
	}

	fmt.Fprint(w, titleStyle.Render(truncate(title, itemWidth)))
	fmt.Fprint(w, "\n")
	fmt.Fprint(w, descStyle.Render(truncate(ni.Description(), itemWidth)))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// New creates a new TUI model.
func New(s *store.Store) Model {
	l := list.New(nil, newNotificationDelegate(), 0, 0)
	l.Title = "Chat Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	searchInput := textinput.New()
	searchInput.Placeholder = "kind:chat room:42 text..."
	searchInput.CharLimit = 100

	m := Model{
		store:       s,
		mode:        ModeList,
		list:        l,
		searchInput: searchInput,
		help:        help.New(),
		keys:        DefaultKeyMap(),
	}

	if s != nil {
		m.refreshCh = s.Subscribe()
	}

	return m
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadNotifications,
		m.watchForChanges,
	)
}

type loadNotificationsMsg struct{}

func (m Model) loadNotifications() tea.Msg {
	return loadNotificationsMsg{}
}

type refreshMsg struct{}

// watchForChanges blocks until the store reports a change.
func (m Model) watchForChanges() tea.Msg {
	if m.refreshCh == nil {
		return nil
	}
	if _, ok := <-m.refreshCh; !ok {
		return nil
	}
	return refreshMsg{}
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	what string
	err  error
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isErr: isErr}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.list.SetSize(msg.Width, msg.Height-2)
		m.viewport = viewport.New(msg.Width, msg.Height-4)
		m.viewport.YPosition = 2
		return m, nil

	case loadNotificationsMsg:
		m.reload()
		return m, nil

	case refreshMsg:
		m.reload()
		return m, m.watchForChanges

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, status("Copy failed: "+msg.err.Error(), true)
		}
		return m, status("Copied "+msg.what+" to clipboard", false)
	}

	var cmd tea.Cmd
	switch m.mode {
	case ModeList:
		m.list, cmd = m.list.Update(msg)
	case ModeDetail:
		m.viewport, cmd = m.viewport.Update(msg)
	case ModeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) reload() {
	if m.store != nil {
		m.notifications = m.store.All()
	}
	m.list.SetItems(m.buildListItems())
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search mode receives text, so q and ? must reach the input.
	if m.mode == ModeSearch {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeList
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	switch m.mode {
	case ModeList:
		return m.handleListKey(msg)
	case ModeDetail:
		return m.handleDetailKey(msg)
	case ModeHelp:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeList
		}
	}
	return m, nil
}

func (m Model) selectedItem() (model.Notification, bool) {
	item, ok := m.list.SelectedItem().(notificationItem)
	return item.notification, ok
}

func (m Model) openDetail(n model.Notification) Model {
	m.selected = &n
	m.mode = ModeDetail
	m.viewport.SetContent(m.renderDetail(n))
	m.viewport.GotoTop()
	return m
}

func (m Model) startSearch() (Model, tea.Cmd) {
	m.selected = nil
	m.searchInput.SetValue("")
	m.searchQuery = ""
	m.list.SetItems(m.buildListItems())
	m.mode = ModeSearch
	m.searchInput.Focus()
	return m, textinput.Blink
}

// handleListKey handles keys in list mode.
func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		if n, ok := m.selectedItem(); ok {
			return m.openDetail(n), nil
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyBody):
		if n, ok := m.selectedItem(); ok {
			return m, m.copyToClipboard("body", n.Body)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyURL):
		if n, ok := m.selectedItem(); ok {
			return m, m.copyURL(n)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyAllJSON):
		return m, m.copyVisible("json")

	case key.Matches(msg, m.keys.CopyAllYAML):
		return m, m.copyVisible("yaml")

	case key.Matches(msg, m.keys.Dismiss):
		n, ok := m.selectedItem()
		if !ok || m.store == nil {
			return m, nil
		}
		if n.IsDismissed() {
			return m, status("Notification already dismissed", false)
		}
		if err := m.store.Dismiss(n.ID); err != nil {
			return m, status("Dismiss failed: "+err.Error(), true)
		}
		m.reload()
		return m, status("Notification dismissed", false)

	case key.Matches(msg, m.keys.ToggleDismissed):
		m.showDismissed = !m.showDismissed
		m.list.SetItems(m.buildListItems())
		if m.showDismissed {
			return m, status("Showing all notifications", false)
		}
		return m, status("Hiding dismissed notifications", false)

	case key.Matches(msg, m.keys.Search):
		return m.startSearch()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadNotifications
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleDetailKey handles keys in detail mode.
func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeList
		m.selected = nil
		return m, nil

	case key.Matches(msg, m.keys.CopyBody):
		if m.selected != nil {
			return m, m.copyToClipboard("body", m.selected.Body)
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyURL):
		if m.selected != nil {
			return m, m.copyURL(*m.selected)
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		return m.startSearch()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// handleSearchKey handles keys in search mode.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		m.mode = ModeList
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		m.searchQuery = ""
		m.list.SetItems(m.buildListItems())
		return m, nil

	case tea.KeyEnter:
		if n, ok := m.selectedItem(); ok {
			m.searchInput.Blur()
			return m.openDetail(n), nil
		}
		return m, nil

	case tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.searchQuery = m.searchInput.Value()
	m.list.SetItems(m.buildListItems())
	return m, cmd
}

// visible returns the notifications after the dismissed toggle and search.
func (m Model) visible() []model.Notification {
	return filterNotifications(m.notifications, m.showDismissed, ParseQuery(m.searchQuery))
}

func (m Model) buildListItems() []list.Item {
	ns := m.visible()
	items := make([]list.Item, len(ns))
	for i, n := range ns {
		items[i] = notificationItem{notification: n}
	}
	return items
}

// renderDetail renders the detail view for a notification.
func (m Model) renderDetail(n model.Notification) string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))
	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			b.WriteString(labelStyle.Render(label+": ") + value + "\n")
		}
	}

	b.WriteString(headerStyle.Render(n.Title) + "\n\n")
	field("Kind", string(n.Kind))
	field("Time", n.RelativeTime())
	field("Status", n.Status())
	field("Tag", n.Tag)
	field("Room", n.RoomID.String())
	field("URL", n.URL)
	field("Action", n.Action)
	field("Replaced by", n.ReplacedBy)

	b.WriteString("\n" + labelStyle.Render("Body:") + "\n")
	b.WriteString(n.Body + "\n")

	if len(n.Actions) > 0 {
		b.WriteString("\n" + labelStyle.Render("Actions:") + "\n")
		for _, a := range n.Actions {
			fmt.Fprintf(&b, "  %s (%s)\n", a.Title, a.Action)
		}
	}

	return b.String()
}

func (m Model) copyToClipboard(what, text string) tea.Cmd {
	return func() tea.Msg {
		return copyResultMsg{what: what, err: copyText(text)}
	}
}

func (m Model) copyURL(n model.Notification) tea.Cmd {
	if n.URL == "" {
		return status("Notification has no URL", true)
	}
	return m.copyToClipboard("URL", n.URL)
}

func (m Model) copyVisible(format string) tea.Cmd {
	text, err := exportNotifications(m.visible(), format)
	if err != nil {
		return status(err.Error(), true)
	}
	return m.copyToClipboard(strings.ToUpper(format), text)
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeList:
		return m.viewList()
	case ModeDetail:
		return m.viewDetail()
	case ModeSearch:
		return m.viewSearch()
	case ModeHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

func (m Model) viewList() string {
	s := m.list.View()
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		return s + "\n" + statusStyle.Render(m.statusMsg)
	}
	return s + "\n" + m.buildKeybindBar(m.width, ModeList)
}

func (m Model) viewDetail() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1).
		Render("Notification Detail")

	return header + "\n" + m.viewport.View() + "\n" + m.buildKeybindBar(m.width, ModeDetail)
}

func (m Model) viewSearch() string {
	countStr := fmt.Sprintf("(%d matches)", len(m.list.Items()))
	searchBar := "Search: " + m.searchInput.View() + " " +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(countStr)

	return searchBar + "\n" + m.list.View() + "\n" + m.buildKeybindBar(m.width, ModeSearch)
}

func (m Model) viewHelp() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1).
		Render("Keyboard Shortcuts")

	m.help.ShowAll = true
	m.help.Width = m.width

	searchHelp := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Search terms: kind:<kind> room:<id> tag:<tag> status:<shown|clicked|dismissed|replaced>")

	return title + "\n\n" + m.help.View(m.keys) + "\n\n" + searchHelp + "\n\n" +
		lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("Press ? or esc to return")
}

// keybind is a status bar entry; lower priority values are shown first.
type keybind struct {
	key      string
	desc     string
	priority int
}

var keybindBars = map[Mode][]keybind{
	ModeList: {
		{"q", "quit", 1},
		{"enter", "view", 2},
		{"?", "help", 3},
		{"/", "search", 4},
		{"d", "dismiss", 5},
		{"a", "all", 6},
		{"c", "copy", 7},
		{"u", "url", 8},
		{"r", "refresh", 9},
	},
	ModeDetail: {
		{"q", "quit", 1},
		{"esc", "back", 2},
		{"/", "search", 3},
		{"c", "copy body", 4},
		{"u", "copy url", 5},
		{"j/k", "scroll", 6},
	},
	ModeSearch: {
		{"enter", "view", 1},
		{"esc", "close", 2},
		{"↑/↓", "navigate", 3},
	},
}

// buildKeybindBar builds a keybind bar that fits within width.
func (m Model) buildKeybindBar(width int, mode Mode) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	const separator = "  "
	result := ""
	for _, b := range keybindBars[mode] {
		item := keyStyle.Render(b.key) + " " + b.desc
		next := item
		if result != "" {
			next = result + separator + item
		}
		if width > 0 && lipgloss.Width(next) > width {
			break
		}
		result = next
	}

	return style.Render(result)
}

// RunOptions configures the TUI.
type RunOptions struct {
	Store       *store.Store
	PersistPath string // history file to watch for changes (empty = no watching)
	Logger      *slog.Logger
}

// Run starts the TUI with the given options.
func Run(opts RunOptions) error {
	s := opts.Store
	if s == nil {
		s = store.NewStore(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var watcher *store.FileWatcher
	if opts.PersistPath != "" {
		var err error
		watcher, err = store.NewHistoryWatcher(s, opts.PersistPath, logger)
		if err != nil {
			logger.Warn("failed to create history watcher", "error", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("failed to start history watcher", "error", err)
		}
	}

	p := tea.NewProgram(New(s), tea.WithAltScreen())
	_, err := p.Run()

	if watcher != nil {
		_ = watcher.Stop()
	}
	return err
}
