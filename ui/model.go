package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thetooth/pingchart/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// border (2) + title + legend + status + help
	chromeLines = 6
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	receivedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	droppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	blockStyle    = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8"))
)

type tickMsg time.Time

func doTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model drives a session from bubbletea: every tick consumes one batch of
// probe output and the quit key terminates the probe before exiting.
type Model struct {
	sess     *session.Session
	tickRate time.Duration
	keys     keyMap
	help     help.Model

	width, height int
	frame         session.Frame
	quitting      bool
}

func New(sess *session.Session, tickRate time.Duration, quitKeys []string) *Model {
	return &Model{
		sess:     sess,
		tickRate: tickRate,
		keys:     newKeyMap(quitKeys),
		help:     help.New(),
		width:    defaultWidth,
		height:   defaultHeight,
		frame:    sess.Frame(),
	}
}

func (m *Model) Init() tea.Cmd {
	return doTick(m.tickRate)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.sess.Tick()
		m.frame = m.sess.Frame()
		return m, doTick(m.tickRate)
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			m.sess.Terminate()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	innerWidth := max(1, m.width-2)
	chartHeight := m.height - chromeLines

	title := titleStyle.Render("ICMP Packets")
	if m.sess.Target != "" {
		title += statusStyle.Render(" " + m.sess.Target)
	}
	legend := fmt.Sprintf("%s  %s  %s",
		receivedStyle.Render("⣿ Received Packets"),
		droppedStyle.Render("⣿ Dropped Packets"),
		statusStyle.Render(fmt.Sprintf("latency 0-%s ms", formatBound(m.frame.Bounds.MaxLatency))),
	)

	chart := renderChart(m.frame, innerWidth, chartHeight)
	if chart == "" {
		chart = statusStyle.Render("terminal too small")
	}

	block := blockStyle.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, title, legend, chart))
	return lipgloss.JoinVertical(lipgloss.Left, block, statusStyle.Render(status(m.frame)), m.help.View(m.keys))
}

func status(f session.Frame) string {
	s := f.Stats
	line := fmt.Sprintf("%s  recv %d  lost %d (%.1f%%)", f.State, s.PacketsRecv, s.PacketsDropped, s.PacketLoss())
	if s.PacketsRecv > 0 {
		line += fmt.Sprintf("  rtt min/avg/max/mdev %.3f/%.3f/%.3f/%.3f ms", s.MinRtt(), s.AvgRtt(), s.MaxRtt(), s.StdDevRtt())
	}
	if s.PacketsRecvDuplicates > 0 {
		line += fmt.Sprintf("  dup %d", s.PacketsRecvDuplicates)
	}
	if f.ParseErrors > 0 {
		line += fmt.Sprintf("  skipped %d", f.ParseErrors)
	}
	return line
}
