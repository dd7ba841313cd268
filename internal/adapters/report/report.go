// Package report renders finished analyses for terminals and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/okian/abbayes/internal/domain/model"
)

// Format selects the renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Write renders a with the named format.
func Write(w io.Writer, a *model.Analysis, f Format) error {
	switch f {
	case FormatTable, "":
		return WriteTable(w, a)
	case FormatJSON:
		return WriteJSON(w, a)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// WriteJSON writes the analysis as indented JSON.
func WriteJSON(w io.Writer, a *model.Analysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	border  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("#F4D03F")).Bold(true),
		header:  r.NewStyle().Bold(true).Padding(0, 1),
		cell:    r.NewStyle().Padding(0, 1),
		border:  r.NewStyle().Foreground(lipgloss.Color("#16858E")),
	}
}

// WriteTable writes the arms, the summary table and every warning and
// sampling issue. Colours are only used when w is a terminal.
func WriteTable(w io.Writer, a *model.Analysis) error {
	st := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	b.WriteString(st.title.Render(fmt.Sprintf("Analysis %s", a.ID)))
	b.WriteString("\n")
	b.WriteString(st.muted.Render(fmt.Sprintf("model=%s engine=%s chains=%d warmup=%d samples=%d seed=%d elapsed=%s",
		a.Model.Name, a.Run.Engine, a.Run.Chains, a.Run.Warmup, a.Run.Samples, a.Run.Seed, a.Elapsed.Round(time.Millisecond))))
	b.WriteString("\n\n")

	b.WriteString(newTable(st, armHeaders(a.Model), armRows(a)).String())
	b.WriteString("\n\n")
	b.WriteString(newTable(st, summaryHeaders(a.Summary.CredibleMass), summaryRows(a)).String())
	b.WriteString("\n")

	for _, warn := range a.Summary.Warnings {
		b.WriteString(st.warning.Render("WARNING"))
		b.WriteString(" convergence: " + warn.String() + "\n")
	}
	for _, issue := range a.Summary.Issues {
		b.WriteString(st.warning.Render("WARNING"))
		b.WriteString(" sampling: " + issue.String() + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(st styles, headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			return st.cell
		})
}

func armHeaders(m model.Model) []string {
	h := []string{"index", "arm_id", "treat", "trials", "conversions", "rate"}
	if m.Revenue {
		h = append(h, "utility")
	}
	return h
}

func armRows(a *model.Analysis) [][]string {
	rows := make([][]string, 0, len(a.Arms))
	for i, arm := range a.Arms {
		rate := "-"
		if arm.Trials > 0 {
			rate = formatFloat(float64(arm.Conversions) / float64(arm.Trials))
		}
		row := []string{
			strconv.Itoa(i + 1),
			arm.Key.ArmID,
			strconv.Itoa(arm.Key.Treat),
			strconv.FormatInt(arm.Trials, 10),
			strconv.FormatInt(arm.Conversions, 10),
			rate,
		}
		if a.Model.Revenue {
			u := "-"
			if arm.Utility != nil {
				u = formatFloat(*arm.Utility)
			}
			row = append(row, u)
		}
		rows = append(rows, row)
	}
	return rows
}

// IntervalLabels names the interval bounds by their quantiles, e.g. 3% and
// 97% for a mass of 0.94.
func IntervalLabels(mass float64) (lower, upper string) {
	tail := roundTo((1-mass)/2*100, 6)
	return "eti_" + strconv.FormatFloat(tail, 'f', -1, 64) + "%",
		"eti_" + strconv.FormatFloat(100-tail, 'f', -1, 64) + "%"
}

func summaryHeaders(mass float64) []string {
	lo, hi := IntervalLabels(mass)
	return []string{"param", "arm", "mean", "sd", lo, hi, "mcse_mean", "ess_bulk", "ess_tail", "r_hat"}
}

func summaryRows(a *model.Analysis) [][]string {
	rows := make([][]string, 0, len(a.Summary.Rows))
	for _, r := range a.Summary.Rows {
		rows = append(rows, []string{
			r.Param,
			armLabel(a, r.Param),
			formatFloat(r.Mean),
			formatFloat(r.SD),
			formatFloat(r.Lower),
			formatFloat(r.Upper),
			formatFloat(r.MCSEMean),
			formatCount(r.ESSBulk),
			formatCount(r.ESSTail),
			formatRHat(r.RHat),
		})
	}
	return rows
}

// armLabel maps "p[2]" to the arm id at index 2.
func armLabel(a *model.Analysis, param string) string {
	open := strings.IndexByte(param, '[')
	if open < 0 || !strings.HasSuffix(param, "]") {
		return ""
	}
	i, err := strconv.Atoi(param[open+1 : len(param)-1])
	if err != nil || i < 1 || i > len(a.Arms) {
		return ""
	}
	return a.Arms[i-1].Key.ArmID
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func formatCount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "nan"
	}
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}

func formatRHat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func roundTo(v float64, digits int) float64 {
	if v == 0 {
		return 0
	}
	scale := math.Pow(10, float64(digits)-math.Ceil(math.Log10(math.Abs(v))))
	return math.Round(v*scale) / scale
}
