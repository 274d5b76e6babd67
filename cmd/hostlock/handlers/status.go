package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/hostlock/internal/harden"
	"github.com/imamik/hostlock/internal/state"
)

// StatusOptions holds the status command's flags.
type StatusOptions struct {
	ConfigPath string
	Host       string
	StateDir   string
	JSON       bool
}

// stepReport is one step's line in the machine-readable status output.
type stepReport struct {
	Name      string     `json:"name"`
	Critical  bool       `json:"critical"`
	Completed bool       `json:"completed"`
	Skipped   bool       `json:"skipped,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// statusReport is the machine-readable status output.
type statusReport struct {
	Host       string           `json:"host"`
	Done       int              `json:"done"`
	Total      int              `json:"total"`
	Steps      []stepReport     `json:"steps"`
	Connection state.Connection `json:"connection"`
	Errors     int              `json:"errors"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Status prints per-step hardening progress for a host.
func Status(_ context.Context, opts StatusOptions) error {
	host := opts.Host
	if host == "" {
		cfg, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		host = cfg.Host
	}
	if host == "" {
		return fmt.Errorf("no host given; set host in the config or pass --host")
	}

	st, err := newStore(stateDir(opts.StateDir)).LoadHost(host)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no recorded state for %s; run 'hostlock harden' first", host)
		}
		return err
	}

	report := buildStatusReport(st)
	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Print(renderStatus(report))
	return nil
}

func buildStatusReport(st *state.HostState) statusReport {
	steps := harden.Registry()
	report := statusReport{
		Host:       st.Host,
		Total:      len(steps),
		Connection: st.Connection,
		Errors:     len(st.Errors),
		UpdatedAt:  st.UpdatedAt,
	}

	for _, step := range steps {
		status := st.Steps[step.Name()]
		sr := stepReport{
			Name:      step.Name(),
			Critical:  step.Critical(),
			Completed: status.Completed,
			Skipped:   status.Skipped,
		}
		if !status.Timestamp.IsZero() {
			ts := status.Timestamp
			sr.Timestamp = &ts
		}
		if status.Completed || status.Skipped {
			report.Done++
		}
		report.Steps = append(report.Steps, sr)
	}
	return report
}

// Colors matching the interactive recovery menu palette.
var (
	statusColorGreen = lipgloss.Color("#22c55e")
	statusColorDim   = lipgloss.Color("#6b7280")
	statusColorWhite = lipgloss.Color("#f9fafb")
	statusColorAmber = lipgloss.Color("#f59e0b")
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(statusColorWhite)

	statusDimStyle = lipgloss.NewStyle().
			Foreground(statusColorDim)

	statusDoneStyle = lipgloss.NewStyle().
			Foreground(statusColorGreen)

	statusSkipStyle = lipgloss.NewStyle().
			Foreground(statusColorAmber)
)

// renderStatus produces the human-readable status block.
func renderStatus(report statusReport) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(statusTitleStyle.Render(fmt.Sprintf("  hostlock status: %s", report.Host)))
	b.WriteString("\n")
	b.WriteString(statusDimStyle.Render("  " + strings.Repeat("─", 40)))
	b.WriteString("\n")

	for _, step := range report.Steps {
		var mark, note string
		switch {
		case step.Skipped:
			mark = statusSkipStyle.Render("~")
			note = statusSkipStyle.Render("skipped")
		case step.Completed:
			mark = statusDoneStyle.Render("✓")
			if step.Timestamp != nil {
				note = statusDimStyle.Render(step.Timestamp.Local().Format("2006-01-02 15:04"))
			}
		default:
			mark = statusDimStyle.Render("·")
			note = statusDimStyle.Render("pending")
		}
		fmt.Fprintf(&b, "  %s %-30s %s\n", mark, step.Name, note)
	}

	b.WriteString(statusDimStyle.Render("  " + strings.Repeat("─", 40)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  %d/%d steps complete\n", report.Done, report.Total)

	conn := report.Connection
	if conn.CurrentUsername != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Verified access: %s@%s port %d\n", conn.CurrentUsername, report.Host, conn.CurrentPort)
		if conn.HardeningApplied {
			b.WriteString(statusDoneStyle.Render("  Hardening applied"))
			b.WriteString("\n")
		}
	}
	if report.Errors > 0 {
		b.WriteString(statusDimStyle.Render(fmt.Sprintf("  %d recorded failure(s); see the state document for details", report.Errors)))
		b.WriteString("\n")
	}

	return b.String()
}
