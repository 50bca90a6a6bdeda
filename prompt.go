package metagen

import (
	"fmt"
	"strings"

	"github.com/tyler-sommer/stick"
)

// Prompt templates, keyed by tag. The generation prompt demands the exact
// "Field: value" reply shape the response parser anchors on.
var promptTemplates = map[string]string{
	"system": `You are an expert at analyzing interior design images and creating SEO-optimized metadata.

You have access to:
1. The current image content (visual analysis)
2. The conversation history (folder structure, file patterns, relationships)
3. Folder hierarchy context (parent/grandparent folder names)
4. Product codes from filenames

Always provide structured responses with these exact field names:
- Title: Brief, descriptive title
- Make: Manufacturer/brand name
- Model: Product model/series
- Description: Detailed description of the image
- Keywords: Comma-separated relevant keywords
- Artist: Creator/photographer name

Be specific, accurate, and SEO-friendly.`,

	"folder_analysis": `Analyze the folder structure and files in {{ folder }}.

Provide:
1. Parent folder name and its meaning
2. Grandparent folder name and its meaning
3. File naming patterns
4. Any product codes or identifiers in filenames
5. Relationships between files
6. Common themes or categories

This context will be used to generate metadata for all images.`,

	"generation": `Analyze this image and generate metadata following the rules below.

**Image Context:**
- Filename: {{ filename }}
- Parent Folder: {{ parent }}
- Grandparent Folder: {{ grandparent }}
{{ attributes }}

**Metadata Rules:**
{{ rules }}

**Additional Instructions:**
{{ instructions }}

Analyze the image and reply in this exact format:
Title: [your title here]
Make: [make/brand here]
Model: [model/series here]
Description: [detailed description here]
Keywords: [comma-separated keywords here]
Artist: [artist name here]`,

	"generation_reduced": `Based only on the file and folder context below (no image is attached), generate metadata following the rules.

**Image Context:**
- Filename: {{ filename }}
- Parent Folder: {{ parent }}
- Grandparent Folder: {{ grandparent }}
{{ attributes }}

**Metadata Rules:**
{{ rules }}

Reply in this exact format:
Title: [your title here]
Make: [make/brand here]
Model: [model/series here]
Description: [detailed description here]
Keywords: [comma-separated keywords here]
Artist: [artist name here]`,
}

// promptSet renders the built-in prompt templates through a stick environment.
type promptSet struct {
	env       *stick.Env
	templates map[string]string
}

func newPromptSet() *promptSet {
	return &promptSet{env: stick.New(nil), templates: promptTemplates}
}

func (p *promptSet) render(tag string, vars map[string]stick.Value) (string, error) {
	tpl, ok := p.templates[tag]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", tag)
	}
	var out strings.Builder
	if err := p.env.Execute(tpl, &out, vars); err != nil {
		return "", fmt.Errorf("execute %q: %w", tag, err)
	}
	return out.String(), nil
}

// System returns the fixed system prompt.
func (p *promptSet) System() string {
	out, err := p.render("system", nil)
	if err != nil {
		// The template carries no variables; execution cannot fail in practice.
		return promptTemplates["system"]
	}
	return out
}

// FolderAnalysis renders the phase-one structural analysis question.
func (p *promptSet) FolderAnalysis(folder string) (string, error) {
	return p.render("folder_analysis", map[string]stick.Value{"folder": folder})
}

// Generation renders the per-image prompt: rendered field rules, raw
// instructions, and the derived product attributes. reduced selects the
// text-only variant used after a vision-mode failure.
func (p *promptSet) Generation(spec RuleSpec, ctx ImageContext, reduced bool) (string, error) {
	tag := "generation"
	if reduced {
		tag = "generation_reduced"
	}
	return p.render(tag, map[string]stick.Value{
		"filename":     ctx.Stem,
		"parent":       ctx.ParentFolder,
		"grandparent":  ctx.GrandparentFolder,
		"attributes":   productAttributes(ctx),
		"rules":        strings.Join(spec.RenderFields(ctx), "\n"),
		"instructions": spec.Instructions,
	})
}

// productAttributes formats the filename-derived product fields as context
// bullet lines; empty when the filename did not match the convention.
func productAttributes(ctx ImageContext) string {
	attrs := []struct{ label, value string }{
		{"Product Code", ctx.ProductCode},
		{"Product Type", ctx.ProductType},
		{"Color", ctx.Color},
		{"Product Name", ctx.ProductName},
		{"Category", ctx.Category},
	}
	var lines []string
	for _, a := range attrs {
		if a.value != "" {
			lines = append(lines, "- "+a.label+": "+a.value)
		}
	}
	return strings.Join(lines, "\n")
}
