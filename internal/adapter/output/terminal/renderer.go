// Package terminal renders local check results for a human at a TTY.
package terminal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cfernhout/reviewd/internal/domain"
	"github.com/cfernhout/reviewd/internal/usecase/check"
)

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()

	titleCaser = cases.Title(language.English)
)

// Renderer writes check results as colored tables and sections.
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer for the given writer. Color is
// disabled when the writer is not a terminal.
func NewRenderer(out io.Writer) *Renderer {
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			color.NoColor = true
		}
	} else {
		color.NoColor = true
	}
	return &Renderer{out: out}
}

// Render writes the full check report.
func (r *Renderer) Render(result check.Result) error {
	fmt.Fprintf(r.out, "\nReview of %s against %s\n\n", cyan(result.TargetRef), cyan(result.BaseRef))

	r.renderFiles(result.Files)
	r.renderFindings(result.Findings)
	r.renderMetrics(result.Metrics)
	r.renderScores(result)

	if result.Insight != nil {
		r.renderInsight(*result.Insight)
	}
	return nil
}

func (r *Renderer) renderFiles(files []domain.ChangedFile) {
	table := r.table([]string{"File", "Status", "+", "-"})
	for _, f := range files {
		table.Append([]string{f.Path, f.Status, fmt.Sprintf("%d", f.Additions), fmt.Sprintf("%d", f.Deletions)})
	}
	_ = table.Render()
	fmt.Fprintln(r.out)
}

func (r *Renderer) renderFindings(findings []domain.Finding) {
	if len(findings) == 0 {
		fmt.Fprintf(r.out, "%s no security findings\n\n", green("✓"))
		return
	}

	sorted := make([]domain.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	fmt.Fprintf(r.out, "Findings (%d)\n", len(sorted))
	table := r.table([]string{"Severity", "Location", "Message", "Scanner"})
	for _, f := range sorted {
		location := f.FilePath
		if f.LineNumber > 0 {
			location = fmt.Sprintf("%s:%d", f.FilePath, f.LineNumber)
		}
		table.Append([]string{severityLabel(f.Severity), location, f.Message, f.Scanner})
	}
	_ = table.Render()
	fmt.Fprintln(r.out)
}

func (r *Renderer) renderMetrics(m domain.QualityMetrics) {
	fmt.Fprintln(r.out, "Quality")
	fmt.Fprintf(r.out, "  complexity       %s\n", scoreLabel(m.Complexity))
	fmt.Fprintf(r.out, "  documentation    %s\n", scoreLabel(m.Documentation))
	fmt.Fprintf(r.out, "  maintainability  %s\n", scoreLabel(m.Maintainability))
	for _, issue := range m.Issues {
		fmt.Fprintf(r.out, "  %s %s\n", yellow("⚠"), issue)
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) renderScores(result check.Result) {
	fmt.Fprintf(r.out, "Quality score   %s\n", scoreLabel(result.QualityScore))
	fmt.Fprintf(r.out, "Security score  %s\n", scoreLabel(result.SecurityScore))
	fmt.Fprintf(r.out, "Risk            %s\n\n", riskLabel(result.Risk))
}

func (r *Renderer) renderInsight(ins domain.Insight) {
	fmt.Fprintf(r.out, "%s\n%s\n\n", cyan("AI Review"), ins.Summary)

	r.renderList("Strengths", ins.Strengths)
	r.renderList("Areas for Improvement", ins.Weaknesses)

	if ins.ArchitectureFeedback != "" {
		fmt.Fprintf(r.out, "Architecture\n  %s\n\n", ins.ArchitectureFeedback)
	}

	if len(ins.BestPractices) > 0 {
		fmt.Fprintln(r.out, "Recommendations")
		for _, rec := range ins.BestPractices {
			if rec.Suggestion != "" {
				fmt.Fprintf(r.out, "  - %s: %s\n", rec.Issue, rec.Suggestion)
			} else {
				fmt.Fprintf(r.out, "  - %s\n", rec.Issue)
			}
		}
		fmt.Fprintln(r.out)
	}
}

func (r *Renderer) renderList(heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(r.out, heading)
	for _, item := range items {
		fmt.Fprintf(r.out, "  - %s\n", item)
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(r.out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

func severityLabel(s domain.Severity) string {
	label := titleCaser.String(strings.ToLower(string(s)))
	switch s {
	case domain.SeverityCritical:
		return red(label)
	case domain.SeverityHigh:
		return red(label)
	case domain.SeverityMedium:
		return yellow(label)
	default:
		return label
	}
}

func riskLabel(risk domain.RiskLevel) string {
	label := titleCaser.String(string(risk))
	switch risk {
	case domain.RiskCritical, domain.RiskHigh:
		return red(label)
	case domain.RiskMedium:
		return yellow(label)
	default:
		return green(label)
	}
}

func scoreLabel(score float64) string {
	s := fmt.Sprintf("%.1f/10", score)
	switch {
	case score >= 8:
		return green(s)
	case score >= 5:
		return yellow(s)
	default:
		return red(s)
	}
}
