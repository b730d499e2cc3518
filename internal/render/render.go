package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
)

// Renderer writes decisions as JSON, Markdown, or a terminal summary
type Renderer struct {
	// IncludeRunDetails adds queries, documents, and warnings to Markdown output
	IncludeRunDetails bool
}

// NewRenderer creates a renderer
func NewRenderer(includeRunDetails bool) *Renderer {
	return &Renderer{IncludeRunDetails: includeRunDetails}
}

// WriteJSON encodes v as indented JSON
func (r *Renderer) WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderJSON writes the decision to path
func (r *Renderer) RenderJSON(d model.ClaimDecision, path string) error {
	return writeFile(path, func(w io.Writer) error { return r.WriteJSON(w, d) })
}

// RenderMarkdown writes the Markdown rendering of res to path
func (r *Renderer) RenderMarkdown(res *pipeline.Result, path string) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, r.Markdown(res))
		return err
	})
}

// Markdown renders the verdict heading followed by the five decision fields
func (r *Renderer) Markdown(res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString(DecisionMarkdown(res.Decision))

	if !r.IncludeRunDetails {
		return b.String()
	}

	fmt.Fprintf(&b, "\n### Run %s\n\n", res.RunID)
	if len(res.Queries) > 0 {
		b.WriteString("Policy queries:\n\n")
		for _, q := range res.Queries {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}
	if len(res.DocumentIDs) > 0 {
		b.WriteString("Policy documents:\n\n")
		for _, id := range res.DocumentIDs {
			fmt.Fprintf(&b, "- `%s`\n", id)
		}
		b.WriteString("\n")
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "> **Warning:** %s\n", w)
	}
	return b.String()
}

// DecisionMarkdown renders only the decision
func DecisionMarkdown(d model.ClaimDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", d.Verdict())
	fmt.Fprintf(&b, "- **Claim Number:** %s\n", d.ClaimNumber)
	fmt.Fprintf(&b, "- **Covered:** %s\n", yesNo(d.Covered))
	fmt.Fprintf(&b, "- **Deductible:** %s\n", model.FormatCurrency(d.Deductible))
	fmt.Fprintf(&b, "- **Recommended Payout:** %s\n", model.FormatCurrency(d.RecommendedPayout))
	fmt.Fprintf(&b, "- **Notes:** %s\n", d.Notes)
	return b.String()
}

// RenderSummary prints a short terminal summary of res
func (r *Renderer) RenderSummary(w io.Writer, res *pipeline.Result) {
	d := res.Decision
	mark := "✓"
	if !d.Covered {
		mark = "✗"
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	_, _ = fmt.Fprintf(w, "  %s %s\n", mark, d.Verdict())
	_, _ = fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  Claim Number:        %s\n", d.ClaimNumber)
	_, _ = fmt.Fprintf(w, "  Covered:             %s\n", yesNo(d.Covered))
	_, _ = fmt.Fprintf(w, "  Deductible:          %s\n", model.FormatCurrency(d.Deductible))
	_, _ = fmt.Fprintf(w, "  Recommended Payout:  %s\n", model.FormatCurrency(d.RecommendedPayout))
	_, _ = fmt.Fprintf(w, "  Notes:               %s\n", d.Notes)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  Run: %s (%d queries, %d documents, %s)\n",
		res.RunID, len(res.Queries), len(res.DocumentIDs), res.Duration.Round(time.Millisecond))
	for _, warning := range res.Warnings {
		_, _ = fmt.Fprintf(w, "  ⚠️  %s\n", warning)
	}
	_, _ = fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
