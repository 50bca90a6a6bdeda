package metagen

import "strings"

// RuleSpec is a parsed rule template: an ordered set of canonical field
// templates plus a free-text instructions block. A RuleSpec is immutable once
// a run starts.
type RuleSpec struct {
	fields       map[string]string
	order        []string
	Instructions string
}

// DefaultRules is the stock template shipped with the system.
const DefaultRules = `Title: [parent_folder] - [ai_description]
Make: [grandparent_folder]
Model: [parent_folder]
Description: [ai_vision_analysis]
Keywords: [folder_keywords], [ai_keywords]
Artist: [Your Company Name]

Instructions for AI:
- Analyze folder structure first using tool use
- For each image, combine folder context with visual analysis
- Extract product codes from filenames (e.g., F032_ST78)
- Be specific and descriptive in image descriptions`

// ParseRuleSpec parses a user-authored rule template. A "label: value" line
// whose label exactly matches a canonical field name becomes a field template;
// a heading line naming an instructions section is dropped; every other
// colon-containing or hyphen-prefixed line is appended to the instructions
// block in order.
func ParseRuleSpec(text string) RuleSpec {
	spec := RuleSpec{fields: make(map[string]string)}
	var instructions []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if label, value, ok := strings.Cut(line, ":"); ok {
			label = strings.TrimSpace(label)
			switch {
			case IsCanonicalField(label):
				if _, seen := spec.fields[label]; !seen {
					spec.order = append(spec.order, label)
				}
				spec.fields[label] = strings.TrimSpace(value)
				continue
			case strings.Contains(strings.ToLower(label), "instruction"):
				// Section heading, pure punctuation.
				continue
			default:
				instructions = append(instructions, line)
				continue
			}
		}
		if strings.HasPrefix(line, "-") {
			instructions = append(instructions, line)
		}
	}

	spec.Instructions = strings.Join(instructions, "\n")
	return spec
}

// Field returns the template for a canonical field name.
func (s RuleSpec) Field(name string) (string, bool) {
	tpl, ok := s.fields[name]
	return tpl, ok
}

// FieldOrder returns the canonical field names present in the spec, in the
// order they appeared.
func (s RuleSpec) FieldOrder() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// String re-renders the spec as template text, the shape ParseRuleSpec
// accepts. Used by the save-template path.
func (s RuleSpec) String() string {
	var b strings.Builder
	for _, name := range s.order {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(s.fields[name])
		b.WriteString("\n")
	}
	if s.Instructions != "" {
		b.WriteString("\nInstructions for AI:\n")
		b.WriteString(s.Instructions)
		b.WriteString("\n")
	}
	return b.String()
}

// Structural context tokens substituted by RenderField. Any other bracket
// token passes through unchanged: those are placeholders the model resolves
// while reading the rendered prompt.
var contextTokens = []string{"[parent_folder]", "[grandparent_folder]", "[filename]"}

// RenderField substitutes the structural context tokens in a field template.
func RenderField(template string, ctx ImageContext) string {
	values := map[string]string{
		"[parent_folder]":      ctx.ParentFolder,
		"[grandparent_folder]": ctx.GrandparentFolder,
		"[filename]":           ctx.Stem,
	}
	out := template
	for _, tok := range contextTokens {
		out = strings.ReplaceAll(out, tok, values[tok])
	}
	return strings.TrimSpace(out)
}

// RenderFields renders every field template against ctx, preserving spec
// order. Templates resolving to an empty string are omitted, never emitted as
// empty values.
func (s RuleSpec) RenderFields(ctx ImageContext) []string {
	var out []string
	for _, name := range s.order {
		if rendered := RenderField(s.fields[name], ctx); rendered != "" {
			out = append(out, name+": "+rendered)
		}
	}
	return out
}

// PreviewRules renders the spec against one example image, for a dry-run
// display before a batch starts.
func PreviewRules(spec RuleSpec, examplePath string) string {
	ctx := DeriveContext(examplePath, nil)

	var b strings.Builder
	b.WriteString("Example image: " + ctx.Stem + "\n")
	b.WriteString("Parent folder: " + ctx.ParentFolder + "\n")
	b.WriteString("Grandparent folder: " + ctx.GrandparentFolder + "\n\n")
	for _, line := range spec.RenderFields(ctx) {
		b.WriteString(line + "\n")
	}
	if spec.Instructions != "" {
		b.WriteString("\nInstructions:\n" + spec.Instructions + "\n")
	}
	return b.String()
}
