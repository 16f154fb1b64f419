package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/helioptic/kernelpool"
	"github.com/helioptic/kernelpool/manifest"
	"github.com/helioptic/kernelpool/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	setStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactively cycle kernel sets",
	Long: `Open a terminal UI that lists the manifest's kernel sets and runs
registry-backed load/unload cycles on demand, showing every toolkit call
a cycle makes in the order it makes them.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

type watchModel struct {
	err      error
	manifest *manifest.Manifest
	sets     []string
	rows     []cycleRow
	set      string
	elapsed  time.Duration
	spin     spinner.Model
	selected int
	state    modelState
}

// cycleRow is one toolkit call observed during a cycle.
type cycleRow struct {
	err    error
	kernel string
	action string
}

type modelState int

const (
	stateSelectSet modelState = iota
	stateRunning
	stateShowCycle
)

func newWatchModel(m *manifest.Manifest) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return &watchModel{
		manifest: m,
		sets:     m.SetNames(),
		spin:     s,
		state:    stateSelectSet,
	}
}

type cycleDoneMsg struct {
	err     error
	rows    []cycleRow
	elapsed time.Duration
}

// cycleRecorder collects pool events for display.
type cycleRecorder struct {
	rows []cycleRow
}

func (r *cycleRecorder) OnKernelEvent(ev kernelpool.Event) {
	r.rows = append(r.rows, cycleRow{
		err:    ev.Err,
		kernel: ev.Kernel,
		action: ev.Type.String(),
	})
}

func (m *watchModel) Init() tea.Cmd {
	return nil
}

func (m *watchModel) runCycle() tea.Msg {
	ctx := context.Background()
	started := time.Now()

	kernels, err := m.manifest.Kernels(m.set)
	if err != nil {
		return cycleDoneMsg{err: err}
	}

	reg := registry.New()
	defer reg.Close()

	rec := &cycleRecorder{}
	pool, err := kernelpool.NewWithConfig(kernelpool.Config{
		Toolkit:  reg,
		Kernels:  kernels,
		Observer: rec,
	})
	if err != nil {
		return cycleDoneMsg{err: err}
	}

	err = pool.Run(ctx, func(context.Context) error { return nil })
	return cycleDoneMsg{err: err, rows: rec.rows, elapsed: time.Since(started)}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectSet && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectSet && m.selected < len(m.sets)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectSet:
				m.set = m.sets[m.selected]
				m.state = stateRunning
				return m, tea.Batch(m.spin.Tick, m.runCycle)

			case stateShowCycle:
				m.state = stateSelectSet
				m.rows = nil
				m.err = nil
			}

		case "r":
			if m.state == stateShowCycle {
				m.state = stateRunning
				m.rows = nil
				m.err = nil
				return m, tea.Batch(m.spin.Tick, m.runCycle)
			}

		case "esc":
			if m.state == stateShowCycle {
				m.state = stateSelectSet
				m.rows = nil
				m.err = nil
			}
		}

	case spinner.TickMsg:
		if m.state == stateRunning {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}

	case cycleDoneMsg:
		m.rows = msg.rows
		m.err = msg.err
		m.elapsed = msg.elapsed
		m.state = stateShowCycle
	}

	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Kernel Pool Watch"))
	b.WriteString(" ")
	b.WriteString(manifestPath)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectSet:
		b.WriteString("Select a kernel set to cycle:\n\n")
		for i, set := range m.sets {
			line := fmt.Sprintf("%s (%d kernels)", set, len(m.manifest.Sets[set]))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateRunning:
		b.WriteString(fmt.Sprintf("%s Cycling %s...", m.spin.View(), setStyle.Render(m.set)))

	case stateShowCycle:
		b.WriteString(fmt.Sprintf("Cycle of %s (%s):\n\n",
			setStyle.Render(m.set), m.elapsed.Round(time.Microsecond)))
		for _, row := range m.rows {
			b.WriteString("  ")
			b.WriteString(actionStyle.Render(fmt.Sprintf("%-13s", row.action)))
			b.WriteString(row.kernel)
			if row.err != nil {
				b.WriteString(" ")
				b.WriteString(errorStyle.Render(row.err.Error()))
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • r rerun • q quit"))
	}

	return b.String()
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("watch needs an interactive terminal")
	}

	m, err := loadManifest()
	if err != nil {
		return err
	}

	p := tea.NewProgram(newWatchModel(m), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
