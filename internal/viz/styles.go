package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func panel() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(CurrentTheme.Muted).
		Padding(0, 1)
}

func title() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Primary)
}

func label() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Width(14)
}

func value() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Text)
}

// StatusStyle colors a run status.
func StatusStyle(status string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch status {
	case "completed":
		return s.Foreground(CurrentTheme.Success)
	case "cancelled":
		return s.Foreground(CurrentTheme.Warning)
	case "errored":
		return s.Foreground(CurrentTheme.Error)
	}
	return s.Foreground(CurrentTheme.Text)
}

// Row is one label/value line of a summary.
type Row struct {
	Label, Value string
}

// Summary renders a titled panel of rows.
func Summary(heading string, rows []Row) string {
	var b strings.Builder
	b.WriteString(title().Render(heading) + "\n")
	for _, r := range rows {
		v := value().Render(r.Value)
		if r.Label == "Status" {
			v = StatusStyle(r.Value).Render(r.Value)
		}
		b.WriteString(label().Render(r.Label) + v + "\n")
	}
	return panel().Render(strings.TrimRight(b.String(), "\n"))
}

// Counts renders name/count pairs as bars, largest first.
func Counts(heading string, counts map[string]int, width int) string {
	names := make([]string, 0, len(counts))
	total := 0
	for name, n := range counts {
		names = append(names, name)
		total += n
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString(title().Render(heading) + "\n")
	for _, name := range names {
		frac := 0.0
		if total > 0 {
			frac = float64(counts[name]) / float64(total)
		}
		b.WriteString(fmt.Sprintf("%s %s %d\n", label().Render(name), ProgressBar(frac, width), counts[name]))
	}
	return panel().Render(strings.TrimRight(b.String(), "\n"))
}

// ProgressBar renders a bar filled to frac of width.
func ProgressBar(frac float64, width int) string {
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(CurrentTheme.Accent).Render(bar)
}

// Sparkline renders values as block characters, sampled to width.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}
	var out []rune
	for i := 0; i < width && i*step < len(values); i++ {
		idx := int((values[i*step] - lo) / rng * float64(len(chars)-1))
		out = append(out, chars[max(0, min(idx, len(chars)-1))])
	}
	return lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Render(string(out))
}

// KeyHint renders a key and what it does.
func KeyHint(key, action string) string {
	return lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).Render(key) +
		lipgloss.NewStyle().Foreground(CurrentTheme.Muted).Render(" "+action+"  ")
}
