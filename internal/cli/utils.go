// Package cli provides output formatting for the kiku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/service"
	"github.com/hyperjump/kiku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// sourcePreview is how many runes of each source chunk the text format shows.
const sourcePreview = 200

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and the chunks it was grounded on.
func WriteAnswer(w io.Writer, a *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, a)
	}
	fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(a.Answer))
	switch {
	case a.ContextFree:
		fmt.Fprintln(w, "(no relevant passage was found; answered without document context)")
	case a.ContextTruncated:
		fmt.Fprintln(w, "(context was truncated to fit the prompt)")
	}
	if len(a.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "--- Sources (%d) ---\n", len(a.Sources))
	for _, src := range a.Sources {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Chunk %d | %s | Score: %.4f\n", src.ChunkIndex, pageRange(src.StartPage, src.EndPage), src.Score)
		fmt.Fprintf(w, "%s\n", utils.Truncate(strings.Join(strings.Fields(src.Content), " "), sourcePreview))
	}
	fmt.Fprintln(w)
	return nil
}

func pageRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("page %d", start)
	}
	return fmt.Sprintf("pages %d-%d", start, end)
}

// WriteDocument writes a single document record.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "id:          %s\n", doc.ID)
	if doc.Filename != "" {
		fmt.Fprintf(w, "filename:    %s\n", doc.Filename)
	}
	fmt.Fprintf(w, "state:       %s\n", doc.State)
	fmt.Fprintf(w, "size:        %d\n", doc.Size)
	fmt.Fprintf(w, "pages:       %d\n", doc.PageCount)
	fmt.Fprintf(w, "chunks:      %d\n", doc.ChunkCount)
	if doc.State == models.StateFailed {
		fmt.Fprintf(w, "failure:     %s: %s\n", doc.FailureKind, doc.FailureReason)
	}
	return nil
}

// WriteDocuments writes one line per document.
func WriteDocuments(w io.Writer, docs []models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"documents": docs})
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "no documents")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-10s  %3d pages  %s\n", d.ID, d.State, d.PageCount, d.Filename)
	}
	return nil
}

// WriteHistory writes the turns of a conversation, oldest first.
func WriteHistory(w io.Writer, turns []*models.ChatTurn, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"turns": turns})
	}
	for _, t := range turns {
		fmt.Fprintf(w, "[%s] Q: %s\n", t.CreatedAt.Format("15:04:05"), TruncateWords(t.Question, 30))
		if t.Outcome == models.OutcomeFailed {
			fmt.Fprintf(w, "  failed: %s\n", t.FailureKind)
			continue
		}
		fmt.Fprintf(w, "  A: %s\n", utils.Truncate(t.Answer, 300))
	}
	return nil
}

// WriteStatus writes service counters.
func WriteStatus(w io.Writer, st service.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d\n", st.Documents)
	for _, state := range []models.DocumentState{
		models.StateUploaded, models.StateExtracting, models.StateIndexing, models.StateReady, models.StateFailed,
	} {
		if n := st.States[state]; n > 0 {
			fmt.Fprintf(w, "  %-16s  %d\n", state, n)
		}
	}
	fmt.Fprintf(w, "blob_bytes:         %d\n", st.BlobBytes)
	if st.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # blob database on disk\n", st.DiskUsageBytes)
	}
	if st.Embedder != "" {
		fmt.Fprintf(w, "embedder:           %s\n", st.Embedder)
	}
	if st.Generator != "" {
		fmt.Fprintf(w, "generator:          %s\n", st.Generator)
	}
	fmt.Fprintf(w, "async_ingest:       %t\n", st.AsyncIngest)
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
