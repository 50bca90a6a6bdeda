package metagen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bep/imagemeta"
	"github.com/gabriel-vasile/mimetype"
)

// Format is the closed set of persistence backends.
type Format int

const (
	FormatUnsupported Format = iota
	FormatJPEG
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatWebP:
		return "webp"
	default:
		return "unsupported"
	}
}

// DetectFormat maps a file extension onto the codec registry.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe":
		return FormatJPEG
	case ".webp":
		return FormatWebP
	default:
		return FormatUnsupported
	}
}

// Codec persists metadata records into image files and reads them back
// through several independent readers.
type Codec struct {
	tool *exifTool
	log  *slog.Logger
}

// NewCodec builds a codec. toolCandidates overrides the external tool probe
// list; nil keeps the defaults.
func NewCodec(toolCandidates []string, log *slog.Logger) *Codec {
	if log == nil {
		log = slog.Default()
	}
	return &Codec{tool: newExifTool(toolCandidates, log), log: log}
}

// Persist writes every non-empty canonical field of rec into the file at
// path, dispatching on format. The original is copied to a temp file, the
// temp file is mutated, and only then atomically replaces the original; a
// failure mid-write never corrupts the source file.
func (c *Codec) Persist(ctx context.Context, path string, rec MetadataRecord) error {
	switch DetectFormat(path) {
	case FormatJPEG:
		return c.atomicMutate(path, func(tmp string) error {
			data, err := os.ReadFile(tmp)
			if err != nil {
				return err
			}
			out, err := writeJPEGRecord(data, rec)
			if err != nil {
				return err
			}
			return os.WriteFile(tmp, out, 0o644)
		})
	case FormatWebP:
		return c.atomicMutate(path, func(tmp string) error {
			return c.tool.write(ctx, tmp, rec)
		})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// atomicMutate runs mutate against a same-directory copy of path and renames
// the copy over the original on success. The temp file is discarded on any
// failure.
func (c *Codec) atomicMutate(path string, mutate func(tmpPath string) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*"+filepath.Ext(base))
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrPersistence, err)
	}
	tmpPath := tmp.Name()

	src, err := os.Open(path)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: open source: %v", ErrPersistence, err)
	}
	_, copyErr := io.Copy(tmp, src)
	src.Close()
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: copy: %v", ErrPersistence, copyErr)
	}

	if err := mutate(tmpPath); err != nil {
		os.Remove(tmpPath)
		if isPersistenceErr(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replace: %v", ErrPersistence, err)
	}
	return nil
}

func isPersistenceErr(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrUnsupportedFormat)
}

// ContainerInfo is the structural view of the image container itself.
type ContainerInfo struct {
	MIMEType string
	Width    int
	Height   int
}

// ReadViews carries the independent reader results for one file. Views fail
// independently; a nil map with a non-nil error means that reader could not
// run. Returning separate views instead of one merged record is what makes
// discrepancy detection possible.
type ReadViews struct {
	Native    MetadataRecord // this package's own tag-block scanner (JPEG only)
	NativeErr error

	Library    MetadataRecord // bep/imagemeta
	LibraryErr error

	Tool    MetadataRecord // external metadata tool
	ToolErr error

	Container    *ContainerInfo
	ContainerErr error
}

// Read collects every reader's view of path. It never mutates the file.
func (c *Codec) Read(ctx context.Context, path string) ReadViews {
	var views ReadViews

	data, err := os.ReadFile(path)
	if err != nil {
		views.NativeErr = err
		views.LibraryErr = err
		views.ContainerErr = err
		views.Tool, views.ToolErr = c.tool.read(ctx, path)
		return views
	}

	if DetectFormat(path) == FormatJPEG {
		views.Native, views.NativeErr = readJPEGRecord(data)
	} else {
		views.NativeErr = fmt.Errorf("%w: native reader handles JPEG only", ErrUnsupportedFormat)
	}

	views.Library, views.LibraryErr = readLibraryRecord(data)
	views.Tool, views.ToolErr = c.tool.read(ctx, path)
	views.Container, views.ContainerErr = readContainerInfo(data)

	return views
}

// libraryTagFields maps imagemeta EXIF tag names onto canonical fields.
var libraryTagFields = map[string]string{
	"XPTitle":          FieldTitle,
	"ImageDescription": FieldDescription,
	"XPKeywords":       FieldKeywords,
	"Artist":           FieldArtist,
	"Make":             FieldMake,
	"Model":            FieldModel,
}

// readLibraryRecord extracts the canonical fields through the binary-tag
// library reader.
func readLibraryRecord(data []byte) (MetadataRecord, error) {
	rec := make(MetadataRecord)
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			_, ok := libraryTagFields[ti.Tag]
			return ok
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			field := libraryTagFields[ti.Tag]
			if s := libraryValueString(ti.Value); s != "" {
				rec[field] = s
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// libraryValueString flattens the library's tag value shapes. XP tags may
// surface as raw UTF-16LE byte payloads.
func libraryValueString(v any) string {
	switch val := v.(type) {
	case string:
		// Some readers surface XP tag payloads as an undecoded byte string.
		if strings.Contains(val, "\x00") {
			if s, err := decodeUTF16LEBOM([]byte(val)); err == nil {
				return trimNUL(s)
			}
		}
		return trimNUL(val)
	case []string:
		if len(val) > 0 {
			return trimNUL(val[0])
		}
	case []byte:
		if s, err := decodeUTF16LEBOM(val); err == nil {
			return trimNUL(s)
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return trimNUL(s)
			}
		}
	}
	return ""
}

// readContainerInfo reports the container-level facts: media type and pixel
// dimensions.
func readContainerInfo(data []byte) (*ContainerInfo, error) {
	info := &ContainerInfo{MIMEType: mimetype.Detect(data).String()}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("decode config: %w", err)
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}
