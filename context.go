package metagen

import (
	"path/filepath"
	"strings"
)

// ImageContext holds the structural facts derived from an image's location and
// filename. Derivation is a pure function of the path and the sibling list;
// contexts are never cached or reused across images.
type ImageContext struct {
	Path              string
	Stem              string
	ParentFolder      string
	GrandparentFolder string

	// Positional product attributes from the filename convention
	// code_type_color_name_category_... Filenames with fewer than six tokens
	// yield all five empty.
	ProductCode string
	ProductType string
	Color       string
	ProductName string
	Category    string

	Siblings []string
}

// minFilenameTokens is the token count below which no product attributes are
// derived. The positional contract is deliberately rigid: filenames outside
// the convention silently yield empty fields.
const minFilenameTokens = 6

// DeriveContext builds the ImageContext for path. siblings is the full ordered
// image list of the batch, carried for folder-level analysis.
func DeriveContext(path string, siblings []string) ImageContext {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	ctx := ImageContext{
		Path:              path,
		Stem:              stem,
		ParentFolder:      folderName(filepath.Dir(path)),
		GrandparentFolder: folderName(filepath.Dir(filepath.Dir(path))),
		Siblings:          siblings,
	}

	tokens := strings.Split(stem, "_")
	if len(tokens) >= minFilenameTokens {
		ctx.ProductCode = tokens[0]
		ctx.ProductType = tokens[1]
		ctx.Color = tokens[2]
		ctx.ProductName = tokens[3]
		ctx.Category = tokens[4]
	}
	return ctx
}

// folderName returns the directory's own name, or "" at or past the
// filesystem root.
func folderName(dir string) string {
	switch base := filepath.Base(dir); base {
	case ".", "/", "\\":
		return ""
	default:
		return base
	}
}
