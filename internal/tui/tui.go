// Package tui 终端里的工作计时界面。
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"worktracker/internal/activity"
	"worktracker/internal/view"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const gestureTimeout = 5 * time.Second

// Worker 终端界面可触发的手势
type Worker interface {
	Login(ctx context.Context, username string) error
	SelectClient(ctx context.Context, clientID int64) error
	SelectProject(ctx context.Context, projectID int64) error
	Start(ctx context.Context) error
	TogglePause(ctx context.Context) error
	Stop(ctx context.Context) error
	EditNotes(ctx context.Context, text string) error
	Input(kind activity.InputKind)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	timerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F7DC6F")).
			Padding(1, 2)

	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	inactiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A90E2"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)

	alertStyle = boxStyle.BorderForeground(lipgloss.Color("#FFA500"))
)

type keyMap struct {
	Start   key.Binding
	Toggle  key.Binding
	Stop    key.Binding
	Client  key.Binding
	Project key.Binding
	Notes   key.Binding
	Keep    key.Binding
	Discard key.Binding
	Dismiss key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Toggle, k.Stop, k.Client, k.Project, k.Notes, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp(), {k.Keep, k.Discard, k.Dismiss}}
}

func defaultKeys() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Toggle:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "pause/resume")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Client:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "next client")),
		Project: key.NewBinding(key.WithKeys("j"), key.WithHelp("j", "next project")),
		Notes:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "notes")),
		Keep:    key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "keep idle time")),
		Discard: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard idle time")),
		Dismiss: key.NewBinding(key.WithKeys("enter", "esc"), key.WithHelp("enter", "dismiss")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type mode int

const (
	modeLogin mode = iota
	modeMain
	modeNotes
)

type screenMsg view.Screen

type gestureMsg struct {
	name string
	err  error
}

// Model 终端界面
type Model struct {
	worker   Worker
	store    *view.Store
	updates  chan view.Screen
	unwatch  func()
	screen   view.Screen
	mode     mode
	username textinput.Model
	notes    textarea.Model
	keys     keyMap
	help     help.Model
	err      error
	width    int
}

// New 创建终端界面并订阅界面变化
func New(worker Worker, store *view.Store) Model {
	updates := make(chan view.Screen, 1)
	unwatch := store.Subscribe(func(s view.Screen) {
		// 只保留最新一帧
		for {
			select {
			case updates <- s:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	})

	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 64
	username.Width = 30
	username.Focus()

	notes := textarea.New()
	notes.Placeholder = "What are you working on?  (Esc to finish)"
	notes.SetHeight(4)
	notes.SetWidth(60)

	m := Model{
		worker:   worker,
		store:    store,
		updates:  updates,
		unwatch:  unwatch,
		screen:   store.Current(),
		username: username,
		notes:    notes,
		keys:     defaultKeys(),
		help:     help.New(),
	}
	if m.screen.Model.LoggedIn {
		m.mode = modeMain
		m.username.Blur()
	}
	return m
}

// Run 运行终端界面直到退出
func Run(worker Worker, store *view.Store) error {
	m := New(worker, store)
	defer m.unwatch()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

func (m Model) waitForScreen() tea.Cmd {
	return func() tea.Msg {
		return screenMsg(<-m.updates)
	}
}

func (m Model) gesture(name string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), gestureTimeout)
		defer cancel()
		return gestureMsg{name: name, err: fn(ctx)}
	}
}

// Init 实现 tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForScreen())
}

// Update 实现 tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case screenMsg:
		m.screen = view.Screen(msg)
		if m.screen.Model.LoggedIn && m.mode == modeLogin {
			m.mode = modeMain
			m.username.Blur()
		}
		if m.mode != modeNotes {
			m.notes.SetValue(m.screen.Model.Notes)
		}
		return m, m.waitForScreen()

	case gestureMsg:
		m.err = msg.err
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.name, msg.err)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionMotion {
			m.worker.Input(activity.PointerMove)
		} else if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
			m.worker.Input(activity.Wheel)
		} else {
			m.worker.Input(activity.PointerDown)
		}
		return m, nil

	case tea.KeyMsg:
		m.worker.Input(activity.KeyDown)
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		switch m.mode {
		case modeLogin:
			return m.updateLogin(msg)
		case modeNotes:
			return m.updateNotes(msg)
		}
		return m.updateMain(msg)
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.unwatch != nil {
		m.unwatch()
	}
	return m, tea.Quit
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		name := m.username.Value()
		return m, m.gesture("login", func(ctx context.Context) error {
			return m.worker.Login(ctx, name)
		})
	case tea.KeyEsc:
		return m.quit()
	}
	var cmd tea.Cmd
	m.username, cmd = m.username.Update(msg)
	return m, cmd
}

func (m Model) updateNotes(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		m.mode = modeMain
		m.notes.Blur()
		return m, nil
	}
	before := m.notes.Value()
	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	if text := m.notes.Value(); text != before {
		return m, tea.Batch(cmd, m.gesture("notes", func(ctx context.Context) error {
			return m.worker.EditNotes(ctx, text)
		}))
	}
	return m, cmd
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if p := m.screen.Prompt; p != nil {
		switch {
		case key.Matches(msg, m.keys.Keep):
			return m, m.answer(p.ID, true)
		case key.Matches(msg, m.keys.Discard):
			return m, m.answer(p.ID, false)
		}
	}

	model := m.screen.Model
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case m.screen.Alert != "" && key.Matches(msg, m.keys.Dismiss):
		m.store.DismissAlert()
		return m, nil
	case key.Matches(msg, m.keys.Start) && model.Start.Visible:
		return m, m.gesture("start", m.worker.Start)
	case key.Matches(msg, m.keys.Toggle) && model.Pause.Visible:
		return m, m.gesture("pause", m.worker.TogglePause)
	case key.Matches(msg, m.keys.Stop) && model.Stop.Visible:
		return m, m.gesture("stop", m.worker.Stop)
	case key.Matches(msg, m.keys.Client) && model.SelectorsEnabled:
		if id, ok := next(model.Clients); ok {
			return m, m.gesture("client", func(ctx context.Context) error {
				return m.worker.SelectClient(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.Project) && model.SelectorsEnabled:
		if id, ok := next(model.Projects); ok {
			return m, m.gesture("project", func(ctx context.Context) error {
				return m.worker.SelectProject(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.Notes):
		m.mode = modeNotes
		return m, m.notes.Focus()
	}
	return m, nil
}

func (m Model) answer(id string, keep bool) tea.Cmd {
	return func() tea.Msg {
		return gestureMsg{name: "answer", err: m.store.Answer(id, keep)}
	}
}

// next 选中项之后的一项，循环
func next(opts []view.Option) (int64, bool) {
	if len(opts) == 0 {
		return 0, false
	}
	for i, o := range opts {
		if o.Selected {
			return opts[(i+1)%len(opts)].ID, true
		}
	}
	return opts[0].ID, true
}

// View 实现 tea.Model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("WorkTracker"))
	b.WriteString("\n\n")

	if m.mode == modeLogin {
		b.WriteString("Sign in\n\n")
		b.WriteString(m.username.View())
		b.WriteString("\n\n")
		b.WriteString(mutedStyle.Render("enter: sign in • esc: quit"))
		m.renderMessages(&b)
		return b.String()
	}

	model := m.screen.Model
	fmt.Fprintf(&b, "%s  %s\n", model.Username, indicator(model.Activity))
	b.WriteString(timerStyle.Render(model.Elapsed))
	b.WriteString("  " + mutedStyle.Render(model.Phase) + "\n")

	selectors := lipgloss.JoinHorizontal(lipgloss.Top,
		options("Client", model.Clients, model.SelectorsEnabled),
		"  ",
		options("Project", model.Projects, model.SelectorsEnabled),
	)
	b.WriteString(selectors + "\n")
	b.WriteString(buttons(model) + "\n")
	if model.Screenshots != "" {
		b.WriteString(mutedStyle.Render(model.Screenshots) + "\n")
	}

	b.WriteString("\nNotes\n")
	if m.mode == modeNotes {
		b.WriteString(m.notes.View())
	} else if model.Notes != "" {
		b.WriteString(model.Notes)
	} else {
		b.WriteString(mutedStyle.Render("(none)"))
	}
	b.WriteString("\n")

	m.renderMessages(&b)
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) renderMessages(b *strings.Builder) {
	if p := m.screen.Prompt; p != nil {
		b.WriteString("\n" + alertStyle.Render(p.Message+"\n\ny: keep • d: discard") + "\n")
	} else if m.screen.Alert != "" {
		b.WriteString("\n" + alertStyle.Render(m.screen.Alert+"\n\nenter: dismiss") + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + inactiveStyle.Render(m.err.Error()) + "\n")
	}
}

func indicator(ind view.Indicator) string {
	switch ind.Class {
	case "status-active":
		return activeStyle.Render("● " + ind.Label)
	case "status-inactive":
		return inactiveStyle.Render("● " + ind.Label)
	}
	return mutedStyle.Render("○ " + ind.Label)
}

func options(title string, opts []view.Option, enabled bool) string {
	var lines []string
	for _, o := range opts {
		if o.Selected {
			lines = append(lines, selectedStyle.Render("▸ "+o.Label))
		} else {
			lines = append(lines, "  "+o.Label)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, mutedStyle.Render("  (none)"))
	}
	body := title + "\n" + strings.Join(lines, "\n")
	if !enabled {
		body = mutedStyle.Render(body)
	}
	return boxStyle.Render(body)
}

func buttons(model view.Model) string {
	var parts []string
	for _, b := range []struct {
		key string
		btn view.Button
	}{{"s", model.Start}, {"space", model.Pause}, {"x", model.Stop}} {
		if !b.btn.Visible {
			continue
		}
		label := fmt.Sprintf("[%s] %s", b.key, b.btn.Label)
		if !b.btn.Enabled {
			label = mutedStyle.Render(label)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "   ")
}
