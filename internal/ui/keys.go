package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Escape     key.Binding

	// View switching
	ViewOrders  key.Binding
	ViewCatalog key.Binding
	ViewLogs    key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding
	Open   key.Binding

	// Orders
	PrevDay       key.Binding
	NextDay       key.Binding
	AllDays       key.Binding
	RefreshOrders key.Binding
	Export        key.Binding
	ExportHistory key.Binding
	Compare       key.Binding
	Shortfall     key.Binding

	// Order detail
	MarkPulled      key.Binding
	MarkUnavailable key.Binding
	MarkNotPulled   key.Binding
	PulledMore      key.Binding
	PulledLess      key.Binding

	// Catalog
	Increase       key.Binding
	Decrease       key.Binding
	EditMeta       key.Binding
	Submit         key.Binding
	RefreshCatalog key.Binding

	// Logs
	Search      key.Binding
	Correlation key.Binding

	// Modals
	Confirm key.Binding
	Yes     key.Binding
	No      key.Binding
	Next    key.Binding
	Prev    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "e"),
			key.WithHelp("e", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back"),
		),

		ViewOrders: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "Orders"),
		),
		ViewCatalog: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Catalog"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "Log"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open order"),
		),

		PrevDay: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "Previous day"),
		),
		NextDay: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "Next day"),
		),
		AllDays: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "All days / one day"),
		),
		RefreshOrders: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh orders"),
		),
		Export: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Export missing items"),
		),
		ExportHistory: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "Export order history"),
		),
		Compare: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "Compare store volume"),
		),
		Shortfall: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "Missing items report"),
		),

		MarkPulled: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "Pulled"),
		),
		MarkUnavailable: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Unavailable"),
		),
		MarkNotPulled: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "Not pulled"),
		),
		PulledMore: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "One more collected"),
		),
		PulledLess: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "One less collected"),
		),

		Increase: key.NewBinding(
			key.WithKeys("+", "=", "right"),
			key.WithHelp("+", "Add one"),
		),
		Decrease: key.NewBinding(
			key.WithKeys("-", "left"),
			key.WithHelp("-", "Remove one"),
		),
		EditMeta: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Edit order header"),
		),
		Submit: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Submit order"),
		),
		RefreshCatalog: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Refresh catalog"),
		),

		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Filter log"),
		),
		Correlation: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "Latest request id"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
		Yes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "Yes"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "No"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "Previous field"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewOrders, k.ViewCatalog, k.ViewLogs, k.Escape},
		{k.Up, k.Down, k.Top, k.Bottom, k.Open},
		{k.PrevDay, k.NextDay, k.AllDays, k.RefreshOrders, k.Export, k.ExportHistory, k.Compare, k.Shortfall},
		{k.MarkPulled, k.MarkUnavailable, k.MarkNotPulled, k.PulledMore, k.PulledLess},
		{k.Increase, k.Decrease, k.EditMeta, k.Submit, k.RefreshCatalog},
		{k.Search, k.Correlation},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
