package metagen

import (
	"context"
	"fmt"
	"strings"
)

// Discrepancy records one canonical field whose value differs between
// readers.
type Discrepancy struct {
	Field  string
	Values map[string]string // reader name → value
}

// VerifyReport is the outcome of comparing the independent readers for one
// file. Verification is read-only; it never mutates the file.
type VerifyReport struct {
	Path          string
	Views         ReadViews
	Discrepancies []Discrepancy
}

// Clean reports whether every reader that saw a field agreed on its value.
func (r VerifyReport) Clean() bool { return len(r.Discrepancies) == 0 }

// String renders the report for display.
func (r VerifyReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "verification of %s\n", r.Path)
	if r.Clean() {
		b.WriteString("all readers agree\n")
		return b.String()
	}
	for _, d := range r.Discrepancies {
		fmt.Fprintf(&b, "%s:\n", d.Field)
		for reader, value := range d.Values {
			fmt.Fprintf(&b, "  %-8s %q\n", reader, value)
		}
	}
	return b.String()
}

// Verify reads path through every available reader and flags each canonical
// field whose values disagree across the readers that have it. A reader that
// failed or lacks the field simply does not vote.
func (c *Codec) Verify(ctx context.Context, path string) VerifyReport {
	views := c.Read(ctx, path)
	return VerifyReport{Path: path, Views: views, Discrepancies: compareViews(views)}
}

// compareViews flags each canonical field whose normalized value differs
// between the readers that carry it.
func compareViews(views ReadViews) []Discrepancy {
	readers := []struct {
		name string
		rec  MetadataRecord
	}{
		{"native", views.Native},
		{"library", views.Library},
		{"tool", views.Tool},
	}

	var out []Discrepancy
	for _, field := range CanonicalFields {
		values := make(map[string]string)
		distinct := make(map[string]struct{})
		for _, r := range readers {
			if r.rec == nil {
				continue
			}
			v, ok := r.rec[field]
			if !ok || v == "" {
				continue
			}
			values[r.name] = v
			distinct[normalizeTagValue(v)] = struct{}{}
		}
		if len(distinct) > 1 {
			out = append(out, Discrepancy{Field: field, Values: values})
		}
	}
	return out
}

// normalizeTagValue folds backend-mandated encoding artifacts before
// comparison: a decode-stripped byte-order marker, trailing NULs and
// surrounding whitespace.
func normalizeTagValue(v string) string {
	v = strings.TrimPrefix(v, "\uFEFF")
	v = trimNUL(v)
	return strings.TrimSpace(v)
}
