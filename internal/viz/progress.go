package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/flowline/internal/sim"
)

const historyCapacity = 600

type (
	progressMsg sim.Progress
	doneMsg     struct {
		res *sim.Result
		err error
	}
	tickMsg time.Time
)

// ProgressModel shows a run advancing round by round.
type ProgressModel struct {
	title      string
	total      int
	round      int
	active     int
	history    []float64
	start      time.Time
	elapsed    time.Duration
	cancel     func()
	cancelling bool
	done       bool
	res        *sim.Result
	err        error
}

// NewProgressModel tracks total particles. cancel is called at most once
// when the user asks to stop.
func NewProgressModel(title string, total int, cancel func()) ProgressModel {
	return ProgressModel{
		title:   title,
		total:   total,
		active:  total,
		history: make([]float64, 0, historyCapacity),
		start:   time.Now(),
		cancel:  cancel,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Init() tea.Cmd { return tick() }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
	case progressMsg:
		m.round, m.active = msg.Round, msg.Active
		if len(m.history) == historyCapacity {
			m.history = m.history[1:]
		}
		m.history = append(m.history, float64(msg.Active))
	case doneMsg:
		m.done, m.res, m.err = true, msg.res, msg.err
		m.elapsed = time.Since(m.start)
		if msg.res != nil {
			m.active = 0
		}
		return m, tea.Quit
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()
	}
	return m, nil
}

func (m ProgressModel) Done() bool { return m.done }

// Result returns what the run returned; valid once Done.
func (m ProgressModel) Result() (*sim.Result, error) {
	return m.res, m.err
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(title().Render(strings.ToUpper(m.title)) + "\n\n")

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.total-m.active) / float64(m.total)
	}
	b.WriteString(ProgressBar(frac, 40) + fmt.Sprintf(" %5.1f%%\n\n", 100*frac))

	b.WriteString(label().Render("Round") + value().Render(fmt.Sprintf("%d", m.round)) + "\n")
	b.WriteString(label().Render("Active") + value().Render(fmt.Sprintf("%d / %d", m.active, m.total)) + "\n")
	b.WriteString(label().Render("Elapsed") + value().Render(m.elapsed.Truncate(time.Millisecond).String()) + "\n")

	if len(m.history) > 1 {
		chart := asciigraph.Plot(m.history, asciigraph.Height(5), asciigraph.Width(40), asciigraph.Caption("active particles"))
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(chart) + "\n")
	}

	switch {
	case m.done && m.err != nil:
		b.WriteString("\n" + StatusStyle("errored").Render(m.err.Error()) + "\n")
	case m.done && m.res != nil:
		b.WriteString("\n" + StatusStyle(string(m.res.Status)).Render(string(m.res.Status)) + "\n")
	case m.cancelling:
		b.WriteString("\n" + StatusStyle("cancelled").Render("cancelling at the next round...") + "\n")
	default:
		b.WriteString("\n" + KeyHint("q", "cancel") + "\n")
	}
	return panel().Render(b.String())
}

// RunLive runs a coordinator under a progress view. run receives the
// observer to register with sim.WithProgress.
func RunLive(title string, total int, cancel func(), run func(observe func(sim.Progress)) (*sim.Result, error), opts ...tea.ProgramOption) (*sim.Result, error) {
	p := tea.NewProgram(NewProgressModel(title, total, cancel), opts...)
	go func() {
		res, err := run(func(pr sim.Progress) { p.Send(progressMsg(pr)) })
		p.Send(doneMsg{res: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(ProgressModel)
	if !m.Done() {
		return nil, fmt.Errorf("live view closed before the run finished")
	}
	return m.Result()
}
