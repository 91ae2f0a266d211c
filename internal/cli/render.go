package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/replicant/internal/replicant"
)

// renderReplicant emits a record through the formatter: the raw struct
// for JSON, a readable block for text.
func renderReplicant(f *OutputFormatter, rec *replicant.Replicant) error {
	if f.Format == "json" {
		return f.Success(rec)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s\n", rec.Namespace, rec.Name)
	fmt.Fprintf(&b, "  revision: %d\n", rec.Revision)
	fmt.Fprintf(&b, "  value:    %s\n", rec.Value)
	if !rec.Schema.IsZero() {
		fmt.Fprintf(&b, "  schema:   %s\n", rec.Schema)
	}
	if !rec.DefaultValue.IsZero() {
		fmt.Fprintf(&b, "  default:  %s\n", rec.DefaultValue)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "  created:  %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "  updated:  %s", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return f.Success(b.String())
}

// renderHistory emits a replicant's audit log oldest-first.
func renderHistory(f *OutputFormatter, entries []replicant.HistoryEntry) error {
	if f.Format == "json" {
		return f.Success(entries)
	}

	if len(entries) == 0 {
		return f.Success("no history")
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "rev %d  %s  by %q  %s",
			e.Revision, e.ChangedAt.Format("2006-01-02 15:04:05"), e.ChangedBy, e.Value)
	}
	return f.Success(b.String())
}
