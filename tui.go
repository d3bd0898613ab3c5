package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"video2pdf/internal/config"
	"video2pdf/internal/engine"
	"video2pdf/internal/layout"
	"video2pdf/internal/run"
)

const noticeTTL = 3 * time.Second

type field int

const (
	fieldFile field = iota
	fieldRepetitions
	fieldFPS
	fieldPerRow
	fieldOutput
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldFile:        "Video file",
	fieldRepetitions: "Repetitions",
	fieldFPS:         "Frames per second",
	fieldPerRow:      "Items per row",
	fieldOutput:      "Output PDF",
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Width(20).Foreground(lipgloss.Color("245"))
	focusStyle   = lipgloss.NewStyle().Width(20).Bold(true).Foreground(lipgloss.Color("212"))
	inputStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).Width(48)
	helpStyle    = lipgloss.NewStyle().Faint(true).MarginTop(1)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type toast struct {
	id     int
	notice run.Notice
}

// Model is the interactive front end of one session.
type Model struct {
	ctrl    *run.Controller
	session *run.Session
	loader  *engine.Loader
	notices chan run.Notice

	fields [fieldCount]string
	focus  field

	engineReady  bool
	loadingToast int
	running      bool
	lastResult   *run.Result

	toasts    []toast
	nextToast int

	width, height int
	audioEnabled  bool
	preview       *preview
}

type engineLoadedMsg struct{ err error }
type noticeMsg run.Notice
type expireMsg int
type runDoneMsg struct {
	res *run.Result
	err error
}

func initialModel(cfg *config.Config, session *run.Session, loader *engine.Loader, printer layout.Printer, withAudio bool) Model {
	notices := make(chan run.Notice, 16)
	m := Model{
		ctrl:         run.New(session, loader, printer, run.WithNotifier(queueNotifier(notices)), run.WithOutputDir(cfg.OutputDir)),
		session:      session,
		loader:       loader,
		notices:      notices,
		width:        80,
		height:       24,
		audioEnabled: withAudio,
	}
	m.fields[fieldRepetitions] = fmt.Sprint(config.DefaultRepetitions)
	m.fields[fieldFPS] = fmt.Sprint(config.DefaultFPS)
	m.fields[fieldPerRow] = fmt.Sprint(config.DefaultItemsPerRow)
	m.loadingToast = m.push(run.Notice{Level: run.Info, Text: "FFMPEG libraries are loading...", Sticky: true})
	return m
}

// queueNotifier hands notices to the UI without blocking the run. When ch is
// full, informational notices are dropped and errors evict the oldest queued
// notice so a failure always reaches the screen.
func queueNotifier(ch chan run.Notice) run.Notifier {
	return run.NotifierFunc(func(n run.Notice) {
		for {
			select {
			case ch <- n:
				return
			default:
			}
			if n.Level != run.Error {
				log.Debug("notice dropped", "text", n.Text)
				return
			}
			select {
			case old := <-ch:
				log.Debug("notice dropped", "text", old.Text)
			default:
			}
		}
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(loadEngine(m.loader), waitForNotice(m.notices))
}

func loadEngine(l *engine.Loader) tea.Cmd {
	return func() tea.Msg {
		return engineLoadedMsg{err: l.Probe(context.Background())}
	}
}

func waitForNotice(ch <-chan run.Notice) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg(<-ch)
	}
}

func expire(id int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return expireMsg(id) })
}

func (m Model) startRun() tea.Cmd {
	var files []string
	if f := strings.TrimSpace(m.fields[fieldFile]); f != "" {
		files = []string{f}
	}
	req := run.Request{
		Files:       files,
		FPS:         m.fields[fieldFPS],
		Repetitions: m.fields[fieldRepetitions],
		ItemsPerRow: m.fields[fieldPerRow],
		Output:      strings.TrimSpace(m.fields[fieldOutput]),
		Soundtrack:  m.audioEnabled,
	}
	return func() tea.Msg {
		res, err := m.ctrl.Run(context.Background(), req)
		return runDoneMsg{res: res, err: err}
	}
}

func (m *Model) push(n run.Notice) int {
	m.nextToast++
	m.toasts = append(m.toasts, toast{id: m.nextToast, notice: n})
	return m.nextToast
}

func (m *Model) drop(id int) {
	for i, t := range m.toasts {
		if t.id == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return
		}
	}
}

func (m Model) notify(n run.Notice) (Model, tea.Cmd) {
	id := m.push(n)
	if n.Sticky {
		return m, nil
	}
	return m, expire(id)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeAudio()
			return m, tea.Quit
		}
		if m.preview != nil {
			return m.updatePreview(msg)
		}
		return m.updateForm(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case engineLoadedMsg:
		m.drop(m.loadingToast)
		if msg.err != nil {
			return m.notify(run.Notice{Level: run.Error, Text: "ffmpeg failed to load. Check the ffmpeg installation and restart.", Sticky: true})
		}
		m.engineReady = true
		return m.notify(run.Notice{Level: run.Success, Text: "ffmpeg loaded: " + m.loader.Version()})

	case noticeMsg:
		var cmd tea.Cmd
		m, cmd = m.notify(run.Notice(msg))
		return m, tea.Batch(cmd, waitForNotice(m.notices))

	case expireMsg:
		m.drop(int(msg))
		return m, nil

	case runDoneMsg:
		// A rejected second run leaves the first one in flight.
		if errors.Is(msg.err, run.ErrBusy) {
			return m.notify(run.Notice{Level: run.Error, Text: "A conversion is already running"})
		}
		m.running = false
		if msg.err == nil {
			m.lastResult = msg.res
		}
		return m, nil

	case previewLoadedMsg:
		if msg.err != nil {
			m.preview = nil
			return m.notify(run.Notice{Level: run.Error, Text: "Preview failed: " + msg.err.Error()})
		}
		if m.preview == nil {
			return m, nil
		}
		m.preview.frames, m.preview.fps = msg.frames, msg.fps
		m.preview.start(m.audioEnabled, msg.soundtrack)
		return m, tick(m.preview.fps)

	case tickMsg:
		if m.preview == nil || !m.preview.playing {
			return m, nil
		}
		m.preview.advance()
		return m, tick(m.preview.fps)
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		m.focus = (m.focus + 1) % fieldCount
	case "shift+tab", "up":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
	case "enter":
		if !m.engineReady {
			return m, nil
		}
		m.running = true
		return m, m.startRun()
	case "ctrl+p":
		handles, soundtrack, fps := m.session.Last()
		if len(handles) == 0 || m.running {
			return m.notify(run.Notice{Level: run.Info, Text: "Nothing to preview yet"})
		}
		m.preview = &preview{fps: fps}
		return m, loadPreview(handles, soundtrack, fps, m.width, max(m.height-3, 1))
	case "ctrl+u":
		m.fields[m.focus] = ""
	case "backspace":
		if r := []rune(m.fields[m.focus]); len(r) > 0 {
			m.fields[m.focus] = string(r[:len(r)-1])
		}
	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.fields[m.focus] += string(msg.Runes)
		case tea.KeySpace:
			m.fields[m.focus] += " "
		}
	}
	return m, nil
}

func (m Model) updatePreview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "ctrl+p":
		m.preview.stop()
		m.preview = nil
	case " ":
		m.preview.toggle()
		if m.preview.playing {
			return m, tick(m.preview.fps)
		}
	case "r":
		m.preview.reset()
	}
	return m, nil
}

func (m Model) closeAudio() {
	if m.preview != nil {
		m.preview.stop()
	}
}

func (m Model) View() string {
	if m.preview != nil {
		if len(m.preview.frames) == 0 {
			return "Loading preview..."
		}
		controls := helpStyle.Render("[space] play/pause | [r] reset | [esc] back | [ctrl+c] quit")
		return m.preview.view() + "\n" + lipgloss.PlaceHorizontal(m.width, lipgloss.Center, controls)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("video2pdf"))
	b.WriteString("\n")
	for f := range fieldCount {
		label := labelStyle.Render(fieldLabels[f])
		value := m.fields[f]
		if f == m.focus {
			label = focusStyle.Render("> " + fieldLabels[f])
			value += "█"
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Bottom, label, inputStyle.Render(value)))
		b.WriteString("\n")
	}

	status := "state: " + m.ctrl.State().String()
	if m.lastResult != nil {
		status += fmt.Sprintf(" | last: %d frames, %d tiles -> %s", m.lastResult.Frames, m.lastResult.Tiles, m.lastResult.Output)
	}
	b.WriteString(helpStyle.Render(status))
	b.WriteString("\n")

	for _, t := range m.toasts {
		b.WriteString(noticeStyle(t.notice.Level).Render(t.notice.Text))
		b.WriteString("\n")
	}

	help := "[tab] next field | [enter] convert | [ctrl+p] preview | [ctrl+c] quit"
	if !m.engineReady {
		help = "[tab] next field | [ctrl+c] quit"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func noticeStyle(l run.Level) lipgloss.Style {
	switch l {
	case run.Success:
		return successStyle
	case run.Error:
		return errorStyle
	default:
		return infoStyle
	}
}
