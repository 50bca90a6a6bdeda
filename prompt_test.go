package metagen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptSystemFixed(t *testing.T) {
	p := newPromptSet()
	out := p.System()

	assert.Contains(t, out, "Title: Brief, descriptive title")
	assert.Contains(t, out, "Keywords: Comma-separated relevant keywords")
}

func TestPromptFolderAnalysis(t *testing.T) {
	p := newPromptSet()
	out, err := p.FolderAnalysis("/data/Showroom/Kitchens")
	require.NoError(t, err)

	assert.Contains(t, out, "/data/Showroom/Kitchens")
	assert.Contains(t, out, "Parent folder name and its meaning")
	assert.Contains(t, out, "Grandparent folder name and its meaning")
	assert.Contains(t, out, "File naming patterns")
}

func TestPromptGeneration(t *testing.T) {
	p := newPromptSet()
	spec := ParseRuleSpec("Title: [parent_folder] - [ai_description]\n- keep titles short")
	ctx := DeriveContext("/data/Showroom/Kitchens/F032_ST78_Grey_Cascia_Granite_001.jpg", nil)

	out, err := p.Generation(spec, ctx, false)
	require.NoError(t, err)

	assert.Contains(t, out, "Filename: F032_ST78_Grey_Cascia_Granite_001")
	assert.Contains(t, out, "Parent Folder: Kitchens")
	assert.Contains(t, out, "Grandparent Folder: Showroom")
	assert.Contains(t, out, "- Product Code: F032")
	assert.Contains(t, out, "- Color: Grey")
	// Rendered rule: structural tokens substituted, semantic ones untouched.
	assert.Contains(t, out, "Title: Kitchens - [ai_description]")
	assert.Contains(t, out, "- keep titles short")
	assert.Contains(t, out, "reply in this exact format")
}

func TestPromptGenerationReduced(t *testing.T) {
	p := newPromptSet()
	spec := ParseRuleSpec("Title: fixed")
	ctx := DeriveContext("/data/Kitchens/img.jpg", nil)

	out, err := p.Generation(spec, ctx, true)
	require.NoError(t, err)

	assert.Contains(t, out, "no image is attached")
	assert.Contains(t, out, "Filename: img")
}
