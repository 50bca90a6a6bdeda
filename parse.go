package metagen

import (
	"regexp"
	"strings"
)

// descriptionMinLen is the length threshold for the longest-line Description
// fallback.
const descriptionMinLen = 40

// domainTerms is the fixed whitelist intersected against the reply text when
// no Keywords line was found.
var domainTerms = []string{
	"granite", "marble", "quartz", "quartzite", "limestone", "travertine",
	"slate", "stone", "ceramic", "porcelain", "laminate",
	"kitchen", "bathroom", "countertop", "worktop", "backsplash", "tile",
	"flooring", "vanity", "island", "cabinet",
	"interior", "design", "surface", "texture", "pattern", "veining",
	"polished", "honed", "matte", "glossy",
	"grey", "gray", "white", "black", "beige", "brown", "cream",
	"modern", "classic", "luxury", "elegant", "contemporary", "minimalist",
}

// fieldLinePatterns match line-anchored "Field: value", case-insensitive,
// tolerating markdown bold around the label.
var fieldLinePatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(CanonicalFields))
	for _, name := range CanonicalFields {
		m[name] = regexp.MustCompile(`(?im)^\s*\*{0,2}` + name + `\*{0,2}\s*:\s*(.+)$`)
	}
	return m
}()

// quotedPatterns match key="value" and bare key=value shapes used by the
// secondary pass for Title/Artist/Make/Model.
var quotedPatterns = func() map[string][2]*regexp.Regexp {
	m := make(map[string][2]*regexp.Regexp, 4)
	for _, name := range []string{FieldTitle, FieldArtist, FieldMake, FieldModel} {
		m[name] = [2]*regexp.Regexp{
			regexp.MustCompile(`(?i)` + name + `\s*=\s*"([^"]+)"`),
			regexp.MustCompile(`(?i)` + name + `\s*=\s*(\S+)`),
		}
	}
	return m
}()

// parser extracts the canonical fields from a free-text model reply. The
// Artist fallback literal is the only configurable piece.
type parser struct {
	artistFallback string
}

// ParseFields extracts the six canonical fields from a model reply. The
// primary pass is a line-anchored "Field: value" match per field; fallbacks
// apply only to fields the primary pass missed, and only when the primary
// pass found at least one field. A reply with no field lines at all yields
// an empty record so the caller counts the image as failed. ParseFields never
// panics or errors.
func ParseFields(text string, ctx ImageContext) MetadataRecord {
	return parser{artistFallback: defaultOptions().ArtistFallback}.parse(text, ctx)
}

func (p parser) parse(text string, ctx ImageContext) MetadataRecord {
	record := make(MetadataRecord)
	if strings.TrimSpace(text) == "" {
		return record
	}

	for _, name := range CanonicalFields {
		if v := primaryFieldLine(text, name); v != "" {
			record[name] = v
		}
	}

	// Fallbacks engage only on partial extractions. A reply the primary pass
	// got nothing from is treated as unparseable, not mined for scraps.
	if len(record) == 0 {
		return record
	}

	for _, name := range CanonicalFields {
		if _, ok := record[name]; ok {
			continue
		}
		if v := p.fallback(text, name, ctx); v != "" {
			record[name] = v
		}
	}
	return record
}

// primaryFieldLine runs the line-anchored pattern for one field and cleans
// the captured value. Unresolved placeholder echoes like "[your title here]"
// count as missing.
func primaryFieldLine(text, name string) string {
	m := fieldLinePatterns[name].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return cleanValue(m[1])
}

// fallback runs the ordered secondary strategies for one field,
// top-to-bottom, first non-empty match wins.
func (p parser) fallback(text, name string, ctx ImageContext) string {
	switch name {
	case FieldDescription:
		return longestProseLine(text)
	case FieldKeywords:
		return domainKeywords(text)
	case FieldTitle:
		if v := quotedValue(text, FieldTitle); v != "" {
			return v
		}
		return strings.TrimSpace(ctx.ProductName + " " + ctx.Color)
	case FieldMake:
		if v := quotedValue(text, FieldMake); v != "" {
			return v
		}
		return ctx.ProductCode
	case FieldModel:
		if v := quotedValue(text, FieldModel); v != "" {
			return v
		}
		return ctx.ProductType
	case FieldArtist:
		if v := quotedValue(text, FieldArtist); v != "" {
			return v
		}
		return p.artistFallback
	}
	return ""
}

func quotedValue(text, name string) string {
	pats := quotedPatterns[name]
	if m := pats[0].FindStringSubmatch(text); m != nil {
		return cleanValue(m[1])
	}
	if m := pats[1].FindStringSubmatch(text); m != nil {
		return cleanValue(m[1])
	}
	return ""
}

// longestProseLine returns the longest non-heading line over the threshold.
func longestProseLine(text string) string {
	var best string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if len(line) < descriptionMinLen || len(line) <= len(best) {
			continue
		}
		if isHeadingLine(line) {
			continue
		}
		best = line
	}
	return best
}

func isHeadingLine(line string) bool {
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
		return true
	}
	if strings.HasSuffix(line, ":") {
		return true
	}
	for _, name := range CanonicalFields {
		if fieldLinePatterns[name].MatchString(line) {
			return true
		}
	}
	return false
}

// domainKeywords intersects the reply text against the domain-term whitelist.
func domainKeywords(text string) string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range domainTerms {
		if containsWord(lower, term) {
			found = append(found, term)
		}
	}
	return strings.Join(found, ", ")
}

// containsWord reports a whole-word, case-folded occurrence.
func containsWord(lower, term string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end == len(lower) || !isWordByte(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// cleanValue trims whitespace and markdown emphasis, and rejects values that
// are still unresolved bracket placeholders.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "*")
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return ""
	}
	return v
}
