// Package ui renders search results, build reports, and index
// statistics for the CLI. Output is plain text with optional color;
// color is disabled automatically for pipes, CI, and NO_COLOR.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/packmcp/packmcp/internal/content"
	"github.com/packmcp/packmcp/internal/index"
	"github.com/packmcp/packmcp/internal/search"
	"github.com/packmcp/packmcp/internal/store"
)

// Renderer writes human-readable output for CLI commands.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a renderer for the given writer. Color is used
// only when the writer is an interactive terminal.
func NewRenderer(out io.Writer) *Renderer {
	noColor := !IsTTY(out) || DetectNoColor() || DetectCI()
	return &Renderer{out: out, styles: GetStyles(noColor)}
}

// NewPlainRenderer creates a renderer with color disabled.
func NewPlainRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out, styles: NoColorStyles()}
}

// Results renders a ranked result list.
func (r *Renderer) Results(query string, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintf(r.out, "No results for %q\n", query)
		return
	}

	fmt.Fprintf(r.out, "%s\n\n", r.styles.Title.Render(fmt.Sprintf("Results for %q", query)))
	for i, res := range results {
		fmt.Fprintf(r.out, "%2d. %s  %s\n", i+1,
			r.styles.Name.Render(res.DisplayName),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.Score)))
		fmt.Fprintf(r.out, "    %s %s  %s %s\n",
			r.styles.Label.Render("type:"), res.ContentType,
			r.styles.Label.Render("pack:"), res.PackName)
		fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render(res.RelativePath))
		if res.Excerpt != "" {
			fmt.Fprintf(r.out, "    %s\n", truncateLine(res.Excerpt, 160))
		}
		if res.FullText != "" {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, indent(res.FullText, "    "))
		}
		fmt.Fprintln(r.out)
	}
}

// Report renders a build report summary.
func (r *Renderer) Report(report *index.Report) {
	fmt.Fprintf(r.out, "%s (%s mode, %s)\n",
		r.styles.Title.Render("Index build complete"),
		report.Mode,
		report.Duration.Round(10*time.Millisecond))

	fmt.Fprintf(r.out, "\n  %-14s %10s %10s %10s %8s %7s\n",
		"type", "discovered", "extracted", "embedded", "skipped", "failed")
	for _, t := range content.AllTypes() {
		tr := report.PerType[t]
		if tr == nil || (tr.Discovered == 0 && tr.Skipped == 0) {
			continue
		}
		fmt.Fprintf(r.out, "  %-14s %10d %10d %10d %8d %7d\n",
			t, tr.Discovered, tr.Extracted, tr.Embedded, tr.Skipped, tr.Failed)
	}

	if report.Pruned > 0 {
		fmt.Fprintf(r.out, "\n  pruned %d stale document(s)\n", report.Pruned)
	}

	if len(report.FileErrors) > 0 {
		fmt.Fprintf(r.out, "\n%s\n", r.styles.Warning.Render(
			fmt.Sprintf("%d file(s) failed:", len(report.FileErrors))))
		for _, fe := range report.FileErrors {
			fmt.Fprintf(r.out, "  %s\n", r.styles.Dim.Render(fe))
		}
	}
}

// Stats renders index statistics.
func (r *Renderer) Stats(stats store.Stats) {
	fmt.Fprintf(r.out, "%s\n\n", r.styles.Title.Render("Index statistics"))
	fmt.Fprintf(r.out, "  %s %d documents, %d chunks\n",
		r.styles.Label.Render("total:"), stats.TotalDocuments, stats.TotalChunks)
	if stats.EmbeddingModel != "" {
		fmt.Fprintf(r.out, "  %s %s (%d dims)\n",
			r.styles.Label.Render("model:"), stats.EmbeddingModel, stats.Dimensions)
	}

	types := make([]content.ContentType, 0, len(stats.PerType))
	for t := range stats.PerType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	if len(types) > 0 {
		fmt.Fprintln(r.out)
		for _, t := range types {
			ts := stats.PerType[t]
			fmt.Fprintf(r.out, "  %-14s %6d documents %6d chunks\n", t, ts.Documents, ts.Chunks)
		}
	}
}

// Error renders a failure message.
func (r *Renderer) Error(err error) {
	fmt.Fprintf(r.out, "%s %v\n", r.styles.Error.Render("error:"), err)
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
