package ui

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/orderdesk/internal/catalog"
	"github.com/five82/orderdesk/internal/draft"
	"github.com/five82/orderdesk/internal/fulfillment"
	"github.com/five82/orderdesk/internal/orders"
	"github.com/five82/orderdesk/internal/prefs"
	"github.com/five82/orderdesk/internal/sheetapi"
	"github.com/five82/orderdesk/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewOrders View = iota
	ViewDetail
	ViewCatalog
	ViewLogs
)

// Controller is the application surface the UI drives.
type Controller interface {
	RefreshCatalog(ctx context.Context, force bool, confirm func() bool) (catalog.Result, error)
	RefreshOrders(ctx context.Context, force bool) (orders.Result, error)
	Adjust(ctx context.Context, sku string, delta int) error
	SetMeta(ctx context.Context, meta draft.Meta) error
	SetPosition(ctx context.Context, idx int) error
	Submit(ctx context.Context) (orders.Order, error)
	SetItemStatus(ctx context.Context, orderID, itemKey string, s fulfillment.ItemState) (fulfillment.Transition, error)
	ItemState(orderID string, item orders.OrderItem) fulfillment.ItemState
	OrderStatus(order orders.Order) fulfillment.OrderStatus
	SaveMissingReport(day string) (string, error)
	SaveHistoryReport(day string) (string, error)
	SaveComparisonReport(q orders.Query) (string, error)
	SaveMissingSummary(q orders.Query) (string, error)
	Focus(ctx context.Context)
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller Controller
	Store      *state.Store
	// Changes signals that the store was updated in the background.
	Changes   <-chan struct{}
	LogPath   string
	PollTick  time.Duration
	ThemeName string
	PrefsPath string
	Stores    []string
	Now       func() time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	ctrl      Controller
	store     *state.Store
	changes   <-chan struct{}
	logPath   string
	prefsPath string
	pollTick  time.Duration
	stores    []string
	now       func() time.Time

	theme       Theme
	keys        keyMap
	currentView View
	width       int
	height      int
	ready       bool

	snapshot    state.Snapshot
	lastUpdated time.Time

	// Orders
	day           string // empty shows every day
	selectedOrder int

	// Detail
	orderID      string
	selectedItem int

	// Catalog
	selectedStep int

	// Logs
	logViewport viewport.Model
	logLines    []string
	logSearch   textinput.Model
	searching   bool
	logNeedle   string

	// Overlays
	showHelp bool
	modal    Modal
	toast    string
	toastAt  time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = DefaultUIInterval
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "filter text or cid_..."
	search.CharLimit = 80

	return Model{
		ctx:         ctx,
		ctrl:        opts.Controller,
		store:       opts.Store,
		changes:     opts.Changes,
		logPath:     opts.LogPath,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		stores:      opts.Stores,
		now:         now,
		theme:       GetTheme(opts.ThemeName),
		keys:        DefaultKeyMap(),
		currentView: ViewOrders,
		day:         now().Format(time.DateOnly),
		logSearch:   search,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.logViewport = viewport.New(msg.Width, m.contentHeight())
		}
		m.ready = true
		m.updateLogViewport()
		return m, nil

	case tea.FocusMsg:
		return m, m.focusCmd()

	case tickMsg:
		return m.handleTick()

	case changedMsg:
		cmds := []tea.Cmd{waitForChange(m.changes)}
		if m.store != nil {
			cmds = append(cmds, fetchSnapshotCmd(m.store))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.setToast(sheetapi.Describe(msg.err))
		} else if msg.text != "" {
			m.setToast(msg.text)
		}
		if m.store != nil {
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil

	case logLinesMsg:
		if msg.err != nil {
			m.setToast(msg.err.Error())
			return m, nil
		}
		m.logLines = msg.lines
		m.updateLogViewport()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.modal != nil {
		next, cmd, done := m.modal.Update(msg, m.keys)
		if done {
			m.modal = nil
		} else {
			m.modal = next
		}
		return m, cmd
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefsPath != "" {
			name := m.theme.Name
			_ = prefs.Update(m.prefsPath, func(p *prefs.Prefs) { p.Theme = name })
		}
		return m, nil

	case key.Matches(msg, m.keys.ViewOrders):
		m.currentView = ViewOrders
		return m, nil

	case key.Matches(msg, m.keys.ViewCatalog):
		m.currentView = ViewCatalog
		m.selectedStep = m.clampStep(m.snapshot.Draft.Position)
		return m, nil

	case key.Matches(msg, m.keys.ViewLogs):
		m.currentView = ViewLogs
		return m, m.refreshLogs()

	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewOrders
		return m, nil
	}

	switch m.currentView {
	case ViewOrders:
		return m.handleOrdersKey(msg)
	case ViewDetail:
		return m.handleDetailKey(msg)
	case ViewCatalog:
		return m.handleCatalogKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	if m.toast != "" && m.now().Sub(m.toastAt) > ToastDuration {
		m.toast = ""
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m *Model) applySnapshot(msg snapshotMsg) {
	m.snapshot = msg.snapshot
	m.lastUpdated = m.now()
	if n := len(msg.notices); n > 0 {
		last := msg.notices[n-1]
		text := last.Message
		if n > 1 {
			text += " (+" + strconv.Itoa(n-1) + " more)"
		}
		m.setToast(text)
	}
	m.selectedOrder = clamp(m.selectedOrder, len(m.visibleOrders()))
	m.selectedStep = m.clampStep(m.selectedStep)
	if order, ok := m.currentOrder(); ok {
		m.selectedItem = clamp(m.selectedItem, len(visibleItems(order)))
	}
}

func (m *Model) setToast(text string) {
	m.toast = strings.TrimSpace(text)
	m.toastAt = m.now()
}

func (m Model) contentHeight() int {
	return max(m.height-3, 1) // header, command bar, status line
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewOrders:
		return m.renderOrders()
	case ViewDetail:
		return m.renderDetail()
	case ViewCatalog:
		return m.renderCatalog()
	case ViewLogs:
		return m.renderLogs()
	default:
		return ""
	}
}

// focusCmd reloads shared state when the terminal regains focus.
func (m Model) focusCmd() tea.Cmd {
	ctrl, ctx, store := m.ctrl, m.ctx, m.store
	return func() tea.Msg {
		if ctrl != nil {
			ctrl.Focus(ctx)
		}
		if store == nil {
			return nil
		}
		return snapshotMsg{snapshot: store.Snapshot(), notices: store.DrainNotices()}
	}
}

// run executes a controller call off the UI goroutine.
func (m Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		text, err := fn(ctx)
		return actionMsg{text: text, err: err}
	}
}

// Messages

type tickMsg time.Time

type changedMsg struct{}

type snapshotMsg struct {
	snapshot state.Snapshot
	notices  []fulfillment.Notice
}

type actionMsg struct {
	text string
	err  error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{snapshot: store.Snapshot(), notices: store.DrainNotices()}
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
