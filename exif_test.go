package metagen

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 0x80, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestJPEGRoundTripAllFields(t *testing.T) {
	rec := MetadataRecord{
		FieldTitle:       "Modern Oak Kitchen",
		FieldMake:        "F032",
		FieldModel:       "ST78",
		FieldDescription: "Grey granite worktop in a bright kitchen",
		FieldKeywords:    "granite, kitchen, grey",
		FieldArtist:      "Studio Lens",
	}

	out, err := writeJPEGRecord(encodeTestJPEG(t), rec)
	require.NoError(t, err)

	back, err := readJPEGRecord(out)
	require.NoError(t, err)
	assert.Equal(t, rec, back)

	// The image stream must survive the rewrite.
	_, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestJPEGTitleAndKeywordsCarryBOM(t *testing.T) {
	out, err := writeJPEGRecord(encodeTestJPEG(t), MetadataRecord{
		FieldTitle:    "Hi",
		FieldKeywords: "granite",
	})
	require.NoError(t, err)

	payload := extractExifPayload(out)
	require.NotNil(t, payload)
	data, err := parseTIFF(payload)
	require.NoError(t, err)

	for _, tag := range []uint16{tagXPTitle, tagXPKeywords} {
		var entry *exifEntry
		for i := range data.ifd0 {
			if data.ifd0[i].Tag == tag {
				entry = &data.ifd0[i]
			}
		}
		require.NotNil(t, entry, "tag %d missing", tag)
		assert.Equal(t, uint16(typeByte), entry.Type)
		require.GreaterOrEqual(t, len(entry.Value), 2)
		assert.Equal(t, []byte{0xFF, 0xFE}, entry.Value[:2], "UTF-16LE BOM prefix")
	}

	// "Hi" as UTF-16LE after the BOM.
	var title []byte
	for _, e := range data.ifd0 {
		if e.Tag == tagXPTitle {
			title = e.Value
		}
	}
	assert.Equal(t, []byte{0xFF, 0xFE, 'H', 0x00, 'i', 0x00}, title)
}

func TestJPEGSecondWritePreservesFirst(t *testing.T) {
	first, err := writeJPEGRecord(encodeTestJPEG(t), MetadataRecord{FieldMake: "F032"})
	require.NoError(t, err)

	second, err := writeJPEGRecord(first, MetadataRecord{FieldTitle: "Later"})
	require.NoError(t, err)

	back, err := readJPEGRecord(second)
	require.NoError(t, err)
	assert.Equal(t, "F032", back[FieldMake])
	assert.Equal(t, "Later", back[FieldTitle])
}

func TestJPEGEmptyFieldsNotWritten(t *testing.T) {
	out, err := writeJPEGRecord(encodeTestJPEG(t), MetadataRecord{
		FieldTitle: "Only",
		FieldMake:  "",
	})
	require.NoError(t, err)

	back, err := readJPEGRecord(out)
	require.NoError(t, err)
	assert.Equal(t, MetadataRecord{FieldTitle: "Only"}, back)
}

func TestJPEGWithoutExifReadsEmpty(t *testing.T) {
	back, err := readJPEGRecord(encodeTestJPEG(t))
	require.NoError(t, err)
	assert.True(t, back.IsEmpty())
}

func TestJPEGNonUnicodeSafeTitle(t *testing.T) {
	rec := MetadataRecord{FieldTitle: "Grüße 中文", FieldDescription: "naturstein"}
	out, err := writeJPEGRecord(encodeTestJPEG(t), rec)
	require.NoError(t, err)

	back, err := readJPEGRecord(out)
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestWriteJPEGRecordRejectsNonJPEG(t *testing.T) {
	_, err := writeJPEGRecord([]byte("definitely not a jpeg"), MetadataRecord{FieldTitle: "x"})
	assert.Error(t, err)
}

func TestParseTIFFBigEndianNormalized(t *testing.T) {
	// Hand-built big-endian TIFF: one SHORT entry (tag 0x0112, value 6).
	be := []byte{
		'M', 'M', 0x00, 0x2A, // header
		0x00, 0x00, 0x00, 0x08, // IFD0 at 8
		0x00, 0x01, // one entry
		0x01, 0x12, // tag 274 (orientation)
		0x00, 0x03, // SHORT
		0x00, 0x00, 0x00, 0x01, // count 1
		0x00, 0x06, 0x00, 0x00, // value 6, inline
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}
	data, err := parseTIFF(be)
	require.NoError(t, err)
	require.Len(t, data.ifd0, 1)
	e := data.ifd0[0]
	assert.Equal(t, uint16(274), e.Tag)
	// Value bytes are normalized to little-endian.
	assert.Equal(t, []byte{0x06, 0x00}, e.Value)
}

func TestInteropIFDSurvivesRewrite(t *testing.T) {
	// Camera JPEGs carry an Interop sub-IFD hanging off the Exif IFD. Its
	// pointer offset must be recomputed across a rewrite, never copied.
	src := &exifData{
		exif: []exifEntry{
			{Tag: 0x9000, Type: typeUndefined, Count: 4, Value: []byte("0232")},
		},
		interop: []exifEntry{
			{Tag: 1, Type: typeASCII, Count: 4, Value: []byte("R98\x00")},
		},
	}
	require.NoError(t, src.setField(FieldMake, "F032"))
	first := src.serializeTIFF()

	// Rewrite path: parse, mutate, serialize again.
	parsed, err := parseTIFF(first)
	require.NoError(t, err)
	require.NoError(t, parsed.setField(FieldTitle, "Later"))
	second := parsed.serializeTIFF()

	final, err := parseTIFF(second)
	require.NoError(t, err)
	assert.Equal(t, src.exif, final.exif)
	assert.Equal(t, src.interop, final.interop, "interop pointer must resolve to the real IFD")

	v, ok := final.field(FieldMake)
	require.True(t, ok)
	assert.Equal(t, "F032", v)
}

func TestScanJPEGSegmentsSkipsFillBytes(t *testing.T) {
	orig := encodeTestJPEG(t)
	// 0xFF fill bytes between segments are legal padding.
	padded := append([]byte{0xFF, 0xD8, 0xFF}, orig[2:]...)

	out, err := writeJPEGRecord(padded, MetadataRecord{FieldTitle: "Padded"})
	require.NoError(t, err)

	back, err := readJPEGRecord(out)
	require.NoError(t, err)
	assert.Equal(t, "Padded", back[FieldTitle])

	_, err = jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestSerializeTIFFSortsTags(t *testing.T) {
	d := &exifData{}
	require.NoError(t, d.setField(FieldTitle, "z")) // tag 40091
	require.NoError(t, d.setField(FieldMake, "a"))  // tag 271

	out := d.serializeTIFF()
	parsed, err := parseTIFF(out)
	require.NoError(t, err)
	require.Len(t, parsed.ifd0, 2)
	assert.Equal(t, uint16(tagMake), parsed.ifd0[0].Tag)
	assert.Equal(t, uint16(tagXPTitle), parsed.ifd0[1].Tag)
}
