package metagen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// exiftoolTimeout bounds one subprocess invocation. Invocations are never
// concurrent because batch processing is strictly sequential.
const exiftoolTimeout = 30 * time.Second

// defaultToolCandidates is the ordered probe list for the external metadata
// tool; the bare command name last defers to PATH lookup.
var defaultToolCandidates = []string{
	"/usr/bin/exiftool",
	"/usr/local/bin/exiftool",
	"/opt/homebrew/bin/exiftool",
	"exiftool",
}

// Canonical field → XMP tag names written through the external tool.
var xmpFieldTags = map[string]string{
	FieldTitle:       "Title",
	FieldDescription: "Description",
	FieldKeywords:    "Subject",
	FieldArtist:      "Creator",
	FieldMake:        "Make",
	FieldModel:       "Model",
}

// exifTool wraps the external metadata command-line program. Discovery probes
// the candidate list with a version check and caches the first hit.
type exifTool struct {
	candidates []string
	log        *slog.Logger

	mu     sync.Mutex
	path   string
	probed bool
}

func newExifTool(candidates []string, log *slog.Logger) *exifTool {
	if len(candidates) == 0 {
		candidates = defaultToolCandidates
	}
	if log == nil {
		log = slog.Default()
	}
	return &exifTool{candidates: candidates, log: log}
}

// locate returns the cached tool path, probing the candidates on first use.
// A candidate answers the probe when `<tool> -ver` exits zero and prints a
// version string.
func (t *exifTool) locate(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.probed {
		if t.path == "" {
			return "", ErrToolNotFound
		}
		return t.path, nil
	}
	t.probed = true

	for _, cand := range t.candidates {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out, err := exec.CommandContext(probeCtx, cand, "-ver").Output()
		cancel()
		if err != nil || strings.TrimSpace(string(out)) == "" {
			continue
		}
		t.log.Debug("external metadata tool located", "path", cand, "version", strings.TrimSpace(string(out)))
		t.path = cand
		return cand, nil
	}
	return "", ErrToolNotFound
}

// write persists the record into path as XMP tags with in-place overwrite
// semantics. A missing tool or non-zero exit is a failure.
func (t *exifTool) write(ctx context.Context, path string, rec MetadataRecord) error {
	tool, err := t.locate(ctx)
	if err != nil {
		return err
	}

	args := []string{"-overwrite_original"}
	for _, name := range CanonicalFields {
		value, ok := rec[name]
		if !ok || value == "" {
			continue
		}
		args = append(args, fmt.Sprintf("-XMP:%s=%s", xmpFieldTags[name], value))
	}
	args = append(args, path)

	runCtx, cancel := context.WithTimeout(ctx, exiftoolTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, tool, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %v (%s)", ErrPersistence, tool, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// read extracts the canonical fields from path through the external tool's
// JSON output.
func (t *exifTool) read(ctx context.Context, path string) (MetadataRecord, error) {
	tool, err := t.locate(ctx)
	if err != nil {
		return nil, err
	}

	args := []string{"-j"}
	for _, name := range CanonicalFields {
		args = append(args, "-XMP:"+xmpFieldTags[name])
	}
	args = append(args, path)

	runCtx, cancel := context.WithTimeout(ctx, exiftoolTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, tool, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("read tags: %s: %w", tool, err)
	}

	var entries []map[string]any
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("decode tool output: %w", err)
	}
	if len(entries) == 0 {
		return MetadataRecord{}, nil
	}

	rec := make(MetadataRecord)
	for field, tag := range xmpFieldTags {
		for _, key := range []string{tag, "XMP:" + tag} {
			if v, ok := entries[0][key]; ok {
				if s := toolValueString(v); s != "" {
					rec[field] = s
				}
				break
			}
		}
	}
	return rec, nil
}

// toolValueString flattens the tool's JSON value shapes; list-valued tags
// (Subject) are joined with commas.
func toolValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		var parts []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", val), "0"), ".")
	default:
		return ""
	}
}
