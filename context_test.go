package metagen

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveContextProductAttributes(t *testing.T) {
	path := filepath.Join("/data", "Showroom", "Kitchens", "F032_ST78_Grey_Cascia_Granite_room_images_000.jpg")
	ctx := DeriveContext(path, nil)

	assert.Equal(t, "F032", ctx.ProductCode)
	assert.Equal(t, "ST78", ctx.ProductType)
	assert.Equal(t, "Grey", ctx.Color)
	assert.Equal(t, "Cascia", ctx.ProductName)
	assert.Equal(t, "Granite", ctx.Category)
	assert.Equal(t, "F032_ST78_Grey_Cascia_Granite_room_images_000", ctx.Stem)
	assert.Equal(t, "Kitchens", ctx.ParentFolder)
	assert.Equal(t, "Showroom", ctx.GrandparentFolder)
}

func TestDeriveContextShortFilename(t *testing.T) {
	ctx := DeriveContext("/data/Kitchens/IMG_1234.jpg", nil)

	assert.Empty(t, ctx.ProductCode)
	assert.Empty(t, ctx.ProductType)
	assert.Empty(t, ctx.Color)
	assert.Empty(t, ctx.ProductName)
	assert.Empty(t, ctx.Category)
	assert.Equal(t, "IMG_1234", ctx.Stem)
}

func TestDeriveContextExactlySixTokens(t *testing.T) {
	ctx := DeriveContext("a_b_c_d_e_f.webp", nil)

	assert.Equal(t, "a", ctx.ProductCode)
	assert.Equal(t, "e", ctx.Category)
}

func TestDeriveContextPastRoot(t *testing.T) {
	ctx := DeriveContext("/img.jpg", nil)

	assert.Empty(t, ctx.ParentFolder)
	assert.Empty(t, ctx.GrandparentFolder)
}

func TestDeriveContextRelativePath(t *testing.T) {
	ctx := DeriveContext("img.jpg", nil)

	assert.Empty(t, ctx.ParentFolder)
	assert.Empty(t, ctx.GrandparentFolder)
}

func TestDeriveContextDeterministic(t *testing.T) {
	path := "/data/Showroom/Kitchens/F032_ST78_Grey_Cascia_Granite_x.jpg"
	assert.Equal(t, DeriveContext(path, nil), DeriveContext(path, nil))
}

func TestDeriveContextSiblingsCarried(t *testing.T) {
	siblings := []string{"/a/1.jpg", "/a/2.jpg"}
	ctx := DeriveContext("/a/1.jpg", siblings)
	assert.Equal(t, siblings, ctx.Siblings)
}
