package metagen

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExifToolLocateMissing(t *testing.T) {
	tool := newExifTool([]string{filepath.Join(t.TempDir(), "absent")}, slog.New(slog.DiscardHandler))

	_, err := tool.locate(context.Background())
	assert.ErrorIs(t, err, ErrToolNotFound)

	// The probe outcome is cached; a second call must not rescan.
	_, err = tool.locate(context.Background())
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExifToolWriteWithoutTool(t *testing.T) {
	tool := newExifTool([]string{"/definitely/not/there"}, slog.New(slog.DiscardHandler))

	err := tool.write(context.Background(), "/tmp/img.webp", MetadataRecord{FieldTitle: "x"})
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = tool.read(context.Background(), "/tmp/img.webp")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolValueString(t *testing.T) {
	assert.Equal(t, "plain", toolValueString("plain"))
	assert.Equal(t, "a, b", toolValueString([]any{"a", "b"}))
	assert.Equal(t, "7", toolValueString(float64(7)))
	assert.Equal(t, "", toolValueString(nil))
}
