// Package tui renders a live now-playing dashboard on top of the snapshot
// subscription.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tessro/nstream/internal/core"
	"github.com/tessro/nstream/internal/tui/styles"
)

const commandTimeout = 15 * time.Second

type snapshotMsg core.Snapshot

type errMsg struct{ err error }

// Model is the dashboard state. Snapshots arrive as messages; key presses
// turn into controller commands whose effect comes back the same way.
type Model struct {
	controller core.Controller
	device     string

	width  int
	height int

	connected bool
	snap      core.Snapshot
	spin      spinner.Model

	lastError   error
	errorExpiry time.Time

	quitting bool
}

func newModel(controller core.Controller, device string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return Model{
		controller: controller,
		device:     device,
		spin:       sp,
		width:      60,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.connected = true
		m.snap = core.Snapshot(msg)
		return m, nil

	case errMsg:
		if msg.err != nil {
			m.lastError = msg.err
			m.errorExpiry = time.Now().Add(5 * time.Second)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case " ":
		if m.snap.State == core.StatePlaying {
			return m, m.command(m.controller.Pause)
		}
		return m, m.command(m.controller.Play)

	case "s":
		return m, m.command(m.controller.Stop)

	case "n":
		return m, m.command(m.controller.Next)

	case "p":
		return m, m.command(m.controller.Prev)

	case "+", "=":
		return m, m.adjustVolume(5)

	case "-":
		return m, m.adjustVolume(-5)

	case "m":
		mute := true
		if m.snap.Mute != nil {
			mute = !*m.snap.Mute
		}
		return m, m.command(func(ctx context.Context) error {
			return m.controller.SetMute(ctx, mute)
		})
	}
	return m, nil
}

func (m Model) command(do func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return errMsg{err: do(ctx)}
	}
}

func (m Model) adjustVolume(delta int) tea.Cmd {
	level := 50
	if m.snap.Volume != nil {
		level = *m.snap.Volume + delta
	}
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return m.command(func(ctx context.Context) error {
		return m.controller.SetVolume(ctx, level)
	})
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if !m.connected {
		return "\n " + m.spin.View() + styles.Muted.Render(" Connecting to "+m.device+"...") + "\n"
	}

	width := m.width - 4
	if width > 72 {
		width = 72
	}
	if width < 30 {
		width = 30
	}

	view := renderNowPlaying(m.snap, m.device, width)

	if m.lastError != nil && time.Now().Before(m.errorExpiry) {
		view += "\n " + styles.Unreachable.Render(m.lastError.Error())
	}

	help := styles.Dim.Render(" space play/pause  s stop  n/p track  +/- volume  m mute  q quit")
	return view + "\n" + help + "\n"
}

// Run renders the dashboard until the user quits or ctx is cancelled. The
// snapshot subscription is forwarded into the program as messages.
func Run(ctx context.Context, controller core.Controller, device string) error {
	p := tea.NewProgram(newModel(controller, device),
		tea.WithAltScreen(),
		tea.WithContext(ctx))

	snaps, cancel := controller.Subscribe()
	defer cancel()
	go func() {
		for snap := range snaps {
			p.Send(snapshotMsg(snap))
		}
	}()

	_, err := p.Run()
	return err
}
