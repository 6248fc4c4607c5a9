// Package tui is the interactive terminal client: ticker entry, a chain
// picker grouped by expiry, a pricing model menu and the P/L heatmap.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/irfndi/optionscope/internal/models"
	"github.com/irfndi/optionscope/internal/orchestrator"
)

const defaultRequestTimeout = 30 * time.Second

type panel int

const (
	panelTicker panel = iota
	panelContracts
	panelModels
	panelCount
)

// loadedMsg carries the outcome of a contracts or heatmap request.
type loadedMsg struct {
	action orchestrator.Action
	snap   orchestrator.Snapshot
	err    error
}

// Option customizes a Model.
type Option func(*Model)

// WithRequestTimeout bounds each pricing service request.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Model) { m.timeout = d }
}

// WithClock overrides the clock used for days-to-expiry labels.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// Model is the bubbletea model. It only invokes orchestrator actions and
// renders the snapshots they return.
type Model struct {
	orch    *orchestrator.Orchestrator
	timeout time.Duration
	now     func() time.Time

	snap     orchestrator.Snapshot
	actErr   error
	catalogV time.Time
	loading  map[orchestrator.Action]int

	focus       panel
	cursor      int
	modelCursor int

	keys     keyMap
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

// New builds the terminal client around orch.
func New(orch *orchestrator.Orchestrator, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = "AAPL"
	input.Prompt = "Ticker: "
	input.CharLimit = 16
	input.Width = 20
	input.Focus()

	m := Model{
		orch:    orch,
		timeout: defaultRequestTimeout,
		now:     time.Now,
		snap:    orch.Snapshot(),
		loading: make(map[orchestrator.Action]int),
		keys:    defaultKeyMap(),
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Snapshot returns the last snapshot the model rendered.
func (m Model) Snapshot() orchestrator.Snapshot {
	return m.snap
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		bodyHeight := max(msg.Height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}

	case loadedMsg:
		if m.loading[msg.action]--; m.loading[msg.action] <= 0 {
			delete(m.loading, msg.action)
		}
		// A result delivered after a newer local action is older than the view.
		if !orchestrator.IsSuperseded(msg.err) && msg.snap.Version >= m.snap.Version {
			m.apply(msg.snap, msg.err)
			if msg.action == orchestrator.ActionLoadContracts && msg.snap.State == orchestrator.ContractsReady && m.snap.Catalog.Len() > 0 {
				m.setFocus(panelContracts)
			}
		}

	case spinner.TickMsg:
		if m.isLoading() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)

	default:
		if m.focus == panelTicker {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.ready {
		m.viewport.SetContent(m.renderBody())
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return nil, true
	case key.Matches(msg, m.keys.Home):
		m.apply(m.orch.Reset(), nil)
		m.input.SetValue("")
		m.cursor, m.modelCursor = 0, 0
		return m.setFocus(panelTicker), false
	case key.Matches(msg, m.keys.NextPanel):
		return m.setFocus((m.focus + 1) % panelCount), false
	case key.Matches(msg, m.keys.PrevPanel):
		return m.setFocus((m.focus + panelCount - 1) % panelCount), false
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, false
	}

	switch m.focus {
	case panelTicker:
		return m.handleTickerKey(msg), false
	case panelContracts:
		if key.Matches(msg, m.keys.Quit) {
			return nil, true
		}
		return m.handleContractsKey(msg), false
	case panelModels:
		if key.Matches(msg, m.keys.Quit) {
			return nil, true
		}
		return m.handleModelsKey(msg), false
	}
	return nil, false
}

func (m *Model) handleTickerKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Submit) {
		return m.loadContracts()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	typed := m.input.Value()
	if upper := strings.ToUpper(typed); upper != typed {
		m.input.SetValue(upper)
	}
	if m.input.Value() != m.snap.Ticker {
		m.apply(m.orch.SetTicker(m.input.Value()), nil)
	}
	return cmd
}

func (m *Model) handleContractsKey(msg tea.KeyMsg) tea.Cmd {
	n := m.snap.Catalog.Len()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < n-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Submit):
		snap, err := m.orch.SelectContract(m.cursor)
		m.apply(snap, err)
		if err == nil {
			return m.loadHeatmap()
		}
	case key.Matches(msg, m.keys.Models):
		return m.pickModel(int(msg.Runes[0] - '1'))
	}
	return nil
}

func (m *Model) handleModelsKey(msg tea.KeyMsg) tea.Cmd {
	all := models.AllPricingModels()
	switch {
	case key.Matches(msg, m.keys.Left), key.Matches(msg, m.keys.Up):
		m.modelCursor = (m.modelCursor + len(all) - 1) % len(all)
	case key.Matches(msg, m.keys.Right), key.Matches(msg, m.keys.Down):
		m.modelCursor = (m.modelCursor + 1) % len(all)
	case key.Matches(msg, m.keys.Submit):
		return m.pickModel(m.modelCursor)
	case key.Matches(msg, m.keys.Models):
		return m.pickModel(int(msg.Runes[0] - '1'))
	}
	return nil
}

// pickModel switches to the i-th model and reloads the heatmap.
func (m *Model) pickModel(i int) tea.Cmd {
	all := models.AllPricingModels()
	if i < 0 || i >= len(all) {
		return nil
	}
	m.modelCursor = i
	snap, err := m.orch.SetModel(all[i])
	m.apply(snap, err)
	if err != nil {
		return nil
	}
	return m.loadHeatmap()
}

func (m *Model) setFocus(p panel) tea.Cmd {
	m.focus = p
	if p == panelTicker {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) loadContracts() tea.Cmd {
	if err := orchestrator.ValidateTicker(m.input.Value()); err != nil {
		m.actErr = err
		return nil
	}
	return m.startLoad(orchestrator.ActionLoadContracts, m.orch.LoadContracts)
}

func (m *Model) loadHeatmap() tea.Cmd {
	return m.startLoad(orchestrator.ActionLoadHeatmap, m.orch.LoadHeatmap)
}

func (m *Model) startLoad(action orchestrator.Action, load func(context.Context) (orchestrator.Snapshot, error)) tea.Cmd {
	m.actErr = nil
	wasLoading := m.isLoading()
	m.loading[action]++

	timeout := m.timeout
	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := load(ctx)
		return loadedMsg{action: action, snap: snap, err: err}
	}
	if wasLoading {
		return run
	}
	return tea.Batch(run, m.spinner.Tick)
}

// apply stores snap and remembers err when the action was rejected without
// a state change.
func (m *Model) apply(snap orchestrator.Snapshot, err error) {
	m.snap = snap
	m.actErr = err
	if fetched := snap.Catalog.FetchedAt(); !fetched.Equal(m.catalogV) {
		m.catalogV = fetched
		m.cursor = 0
	}
	if idx, ok := snap.Selection.Index(); ok {
		m.cursor = idx
	}
	if m.cursor >= snap.Catalog.Len() {
		m.cursor = max(snap.Catalog.Len()-1, 0)
	}
	for i, model := range models.AllPricingModels() {
		if model == snap.Model() {
			m.modelCursor = i
		}
	}
}

func (m Model) isLoading() bool {
	return len(m.loading) > 0
}

// errorText is the message of the error line, or "".
func (m Model) errorText() string {
	if m.actErr != nil && !errors.Is(m.actErr, orchestrator.ErrSuperseded) {
		return m.actErr.Error()
	}
	if m.snap.State.IsError() {
		return m.snap.ErrorMessage()
	}
	return ""
}
