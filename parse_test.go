package metagen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldsPrimaryLines(t *testing.T) {
	rec := ParseFields("Title: Modern Oak Kitchen\nMake: F032", ImageContext{})

	assert.Equal(t, "Modern Oak Kitchen", rec[FieldTitle])
	assert.Equal(t, "F032", rec[FieldMake])
	// Artist was missed by the primary pass; the fixed placeholder fallback
	// fills it on partial extractions.
	assert.Equal(t, "[Your Company Name]", rec[FieldArtist])
}

func TestParseFieldsNoColonLines(t *testing.T) {
	rec := ParseFields("a short reply with no structure whatsoever", ImageContext{
		ProductCode: "F032",
		ProductType: "ST78",
	})

	// Without a single primary hit the reply counts as unparseable; fallbacks
	// never mine an unstructured reply.
	assert.True(t, rec.IsEmpty())
}

func TestParseFieldsEmptyText(t *testing.T) {
	assert.True(t, ParseFields("", ImageContext{}).IsEmpty())
	assert.True(t, ParseFields("   \n  ", ImageContext{}).IsEmpty())
}

func TestParseFieldsCaseInsensitiveAndBold(t *testing.T) {
	text := "**title**: Granite Worktop\nMODEL: ST78"
	rec := ParseFields(text, ImageContext{})

	assert.Equal(t, "Granite Worktop", rec[FieldTitle])
	assert.Equal(t, "ST78", rec[FieldModel])
}

func TestParseFieldsRejectsPlaceholderEcho(t *testing.T) {
	text := "Title: [your title here]\nMake: F032"
	rec := ParseFields(text, ImageContext{})

	assert.Equal(t, "F032", rec[FieldMake])
	assert.NotEqual(t, "[your title here]", rec[FieldTitle])
}

func TestParseFieldsDescriptionLongestLineFallback(t *testing.T) {
	long := "A bright open-plan kitchen with grey granite worktops and oak cabinetry under natural light."
	text := "Title: Kitchen\n" + long + "\nshort trailer"
	rec := ParseFields(text, ImageContext{})

	assert.Equal(t, long, rec[FieldDescription])
}

func TestParseFieldsKeywordWhitelistFallback(t *testing.T) {
	text := "Title: Sample\nThe granite surface suits a modern kitchen interior."
	rec := ParseFields(text, ImageContext{})

	require.NotEmpty(t, rec[FieldKeywords])
	assert.Contains(t, rec[FieldKeywords], "granite")
	assert.Contains(t, rec[FieldKeywords], "kitchen")
	assert.Contains(t, rec[FieldKeywords], "interior")
}

func TestParseFieldsQuotedFallback(t *testing.T) {
	text := "Description: A worktop scene\nThe catalog lists Make=\"Stonecraft\" and Model=ST78 for this range."
	rec := ParseFields(text, ImageContext{})

	assert.Equal(t, "Stonecraft", rec[FieldMake])
	assert.Equal(t, "ST78", rec[FieldModel])
}

func TestParseFieldsContextFallback(t *testing.T) {
	ctx := ImageContext{ProductCode: "F032", ProductType: "ST78", ProductName: "Cascia", Color: "Grey"}
	rec := ParseFields("Description: Grey granite in a showroom setting.", ctx)

	assert.Equal(t, "F032", rec[FieldMake])
	assert.Equal(t, "ST78", rec[FieldModel])
	assert.Equal(t, "Cascia Grey", rec[FieldTitle])
}

func TestParseFieldsNeverEmptyValues(t *testing.T) {
	rec := ParseFields("Title: Real\nMake:\nModel:   ", ImageContext{})

	for name, v := range rec {
		assert.NotEmpty(t, v, name)
	}
	assert.Equal(t, "Real", rec[FieldTitle])
}

func TestDomainKeywordsWholeWords(t *testing.T) {
	// "designer" must not match the "design" term.
	assert.NotContains(t, domainKeywords("a designer piece"), "design")
	assert.Contains(t, domainKeywords("a design piece"), "design")
}

func TestLongestProseLineSkipsHeadings(t *testing.T) {
	text := "## A heading that is long enough to pass the threshold easily\nplain prose line that is also long enough to pass the threshold"
	assert.Equal(t, "plain prose line that is also long enough to pass the threshold", longestProseLine(text))
}
