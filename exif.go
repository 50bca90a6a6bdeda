package metagen

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/text/encoding/unicode"
)

// Canonical field → embedded tag table. Title and Keywords are the Windows XP
// tags and require UTF-16LE payloads with a leading BOM (the consuming OS
// property viewer rejects them otherwise); the rest are plain ASCII tags.
const (
	tagImageDescription = 270
	tagMake             = 271
	tagModel            = 272
	tagArtist           = 315
	tagXPTitle          = 40091
	tagXPKeywords       = 40094

	tagExifIFDPointer    = 0x8769
	tagGPSIFDPointer     = 0x8825
	tagInteropIFDPointer = 0xA005
)

type embeddedTag struct {
	id    uint16
	utf16 bool
}

var exifFieldTags = map[string]embeddedTag{
	FieldTitle:       {tagXPTitle, true},
	FieldDescription: {tagImageDescription, false},
	FieldKeywords:    {tagXPKeywords, true},
	FieldArtist:      {tagArtist, false},
	FieldMake:        {tagMake, false},
	FieldModel:       {tagModel, false},
}

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

// typeSize returns the per-element byte size of a TIFF field type.
func typeSize(t uint16) int {
	switch t {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble:
		return 8
	default:
		return 0
	}
}

// swapUnit is the element width used when converting big-endian values;
// rationals are two longs.
func swapUnit(t uint16) int {
	switch t {
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat, typeRational, typeSRational:
		return 4
	case typeDouble:
		return 8
	default:
		return 1
	}
}

// exifEntry is one IFD entry with its value bytes normalized to
// little-endian.
type exifEntry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Value []byte
}

// exifData holds the parsed tag block: IFD0 plus the Exif, GPS and Interop
// sub-IFDs. Pointer entries are stripped on parse and rebuilt on serialize so
// their offsets are always recomputed. The thumbnail IFD is not carried across
// a rewrite.
type exifData struct {
	ifd0    []exifEntry
	exif    []exifEntry
	gps     []exifEntry
	interop []exifEntry
}

var exifHeader = []byte("Exif\x00\x00")

// parseTIFF parses a TIFF block (the APP1 payload after the Exif header) into
// entry lists. Both byte orders are accepted; values are normalized to
// little-endian.
func parseTIFF(data []byte) (*exifData, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("tiff: truncated header")
	}
	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("tiff: bad byte order mark %q", data[:2])
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("tiff: bad magic")
	}

	d := &exifData{}
	ifd0, err := parseIFD(data, bo.Uint32(data[4:8]), bo)
	if err != nil {
		return nil, err
	}

	for _, e := range ifd0 {
		switch e.Tag {
		case tagExifIFDPointer:
			if sub, err := parseIFD(data, entryPointer(e), bo); err == nil {
				d.exif = sub
			}
		case tagGPSIFDPointer:
			if sub, err := parseIFD(data, entryPointer(e), bo); err == nil {
				d.gps = sub
			}
		default:
			d.ifd0 = append(d.ifd0, e)
		}
	}

	// The Interop pointer lives inside the Exif sub-IFD. Carrying it as a plain
	// LONG would leave a stale offset after re-serialization, so it is parsed
	// out and rebuilt like the other sub-IFDs.
	if len(d.exif) > 0 {
		kept := d.exif[:0]
		for _, e := range d.exif {
			if e.Tag == tagInteropIFDPointer {
				if sub, err := parseIFD(data, entryPointer(e), bo); err == nil {
					d.interop = sub
				}
				continue
			}
			kept = append(kept, e)
		}
		d.exif = kept
	}
	return d, nil
}

// entryPointer reads a sub-IFD offset from a normalized LONG entry.
func entryPointer(e exifEntry) uint32 {
	if len(e.Value) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(e.Value[:4])
}

func parseIFD(data []byte, offset uint32, bo binary.ByteOrder) ([]exifEntry, error) {
	off := int(offset)
	if off <= 0 || off+2 > len(data) {
		return nil, fmt.Errorf("tiff: ifd offset out of range")
	}
	count := int(bo.Uint16(data[off : off+2]))
	off += 2
	if off+count*12 > len(data) {
		return nil, fmt.Errorf("tiff: ifd entries out of range")
	}

	entries := make([]exifEntry, 0, count)
	for i := 0; i < count; i++ {
		base := off + i*12
		e := exifEntry{
			Tag:   bo.Uint16(data[base : base+2]),
			Type:  bo.Uint16(data[base+2 : base+4]),
			Count: bo.Uint32(data[base+4 : base+8]),
		}
		elem := typeSize(e.Type)
		if elem == 0 {
			continue // unknown type, drop
		}
		size := elem * int(e.Count)
		if size <= 4 {
			e.Value = append([]byte(nil), data[base+8:base+8+size]...)
		} else {
			valOff := int(bo.Uint32(data[base+8 : base+12]))
			if valOff < 0 || valOff+size > len(data) {
				continue // out-of-range value, drop
			}
			e.Value = append([]byte(nil), data[valOff:valOff+size]...)
		}
		if bo == binary.BigEndian {
			swapBytes(e.Value, swapUnit(e.Type))
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// swapBytes reverses each unit-sized group in place.
func swapBytes(b []byte, unit int) {
	if unit <= 1 {
		return
	}
	for i := 0; i+unit <= len(b); i += unit {
		for l, r := i, i+unit-1; l < r; l, r = l+1, r-1 {
			b[l], b[r] = b[r], b[l]
		}
	}
}

// setField writes one canonical field into IFD0, replacing any existing entry
// for the tag.
func (d *exifData) setField(name, value string) error {
	t, ok := exifFieldTags[name]
	if !ok {
		return fmt.Errorf("no embedded tag for field %q", name)
	}
	var e exifEntry
	if t.utf16 {
		payload, err := encodeUTF16LEBOM(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		e = exifEntry{Tag: t.id, Type: typeByte, Count: uint32(len(payload)), Value: payload}
	} else {
		payload := append([]byte(value), 0)
		e = exifEntry{Tag: t.id, Type: typeASCII, Count: uint32(len(payload)), Value: payload}
	}

	for i := range d.ifd0 {
		if d.ifd0[i].Tag == e.Tag {
			d.ifd0[i] = e
			return nil
		}
	}
	d.ifd0 = append(d.ifd0, e)
	return nil
}

// field reads one canonical field back out of the tag block, decoding
// per-tag encoding. The BOM is stripped on decode.
func (d *exifData) field(name string) (string, bool) {
	t, ok := exifFieldTags[name]
	if !ok {
		return "", false
	}
	for _, set := range [][]exifEntry{d.ifd0, d.exif} {
		for _, e := range set {
			if e.Tag != t.id {
				continue
			}
			if t.utf16 {
				s, err := decodeUTF16LEBOM(e.Value)
				if err != nil {
					return "", false
				}
				return trimNUL(s), true
			}
			return trimNUL(string(e.Value)), true
		}
	}
	return "", false
}

func trimNUL(s string) string {
	return string(bytes.TrimRight([]byte(s), "\x00"))
}

func encodeUTF16LEBOM(s string) ([]byte, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	return enc.Bytes([]byte(s))
}

func decodeUTF16LEBOM(b []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// serializeTIFF writes the tag block back out as a little-endian TIFF
// stream: header, IFD0, Exif, GPS and Interop sub-IFDs, then the out-of-line
// value area, with all offsets recomputed.
func (d *exifData) serializeTIFF() []byte {
	ifd0 := append([]exifEntry(nil), d.ifd0...)
	exif := append([]exifEntry(nil), d.exif...)

	// An Interop IFD hangs off the Exif IFD, so one is materialized to hold
	// the pointer even when it carries no entries of its own.
	exifCount := len(exif)
	if len(d.interop) > 0 {
		exifCount++
	}

	exifOffset := uint32(0)
	gpsOffset := uint32(0)
	interopOffset := uint32(0)
	pos := uint32(8 + ifdSize(len(ifd0)+pointerCount(d)))
	if exifCount > 0 {
		exifOffset = pos
		pos += uint32(ifdSize(exifCount))
	}
	if len(d.gps) > 0 {
		gpsOffset = pos
		pos += uint32(ifdSize(len(d.gps)))
	}
	if len(d.interop) > 0 {
		interopOffset = pos
		pos += uint32(ifdSize(len(d.interop)))
	}
	dataStart := pos

	if exifOffset > 0 {
		ifd0 = append(ifd0, pointerEntry(tagExifIFDPointer, exifOffset))
	}
	if gpsOffset > 0 {
		ifd0 = append(ifd0, pointerEntry(tagGPSIFDPointer, gpsOffset))
	}
	if interopOffset > 0 {
		exif = append(exif, pointerEntry(tagInteropIFDPointer, interopOffset))
	}
	sort.Slice(ifd0, func(i, j int) bool { return ifd0[i].Tag < ifd0[j].Tag })

	var ifds bytes.Buffer
	var values bytes.Buffer

	writeIFD(&ifds, &values, ifd0, dataStart)
	if len(exif) > 0 {
		writeIFD(&ifds, &values, exif, dataStart)
	}
	if len(d.gps) > 0 {
		writeIFD(&ifds, &values, d.gps, dataStart)
	}
	if len(d.interop) > 0 {
		writeIFD(&ifds, &values, d.interop, dataStart)
	}

	out := make([]byte, 0, 8+ifds.Len()+values.Len())
	out = append(out, 'I', 'I', 42, 0, 8, 0, 0, 0)
	out = append(out, ifds.Bytes()...)
	out = append(out, values.Bytes()...)
	return out
}

func pointerCount(d *exifData) int {
	n := 0
	if len(d.exif) > 0 || len(d.interop) > 0 {
		n++
	}
	if len(d.gps) > 0 {
		n++
	}
	return n
}

// ifdSize is the on-disk size of an IFD with n entries.
func ifdSize(n int) int { return 2 + n*12 + 4 }

func pointerEntry(tag uint16, offset uint32) exifEntry {
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, offset)
	return exifEntry{Tag: tag, Type: typeLong, Count: 1, Value: v}
}

func writeIFD(ifds *bytes.Buffer, values *bytes.Buffer, entries []exifEntry, dataStart uint32) {
	sorted := append([]exifEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag < sorted[j].Tag })

	le := binary.LittleEndian
	var u16 [2]byte
	var u32 [4]byte

	le.PutUint16(u16[:], uint16(len(sorted)))
	ifds.Write(u16[:])

	for _, e := range sorted {
		le.PutUint16(u16[:], e.Tag)
		ifds.Write(u16[:])
		le.PutUint16(u16[:], e.Type)
		ifds.Write(u16[:])
		le.PutUint32(u32[:], e.Count)
		ifds.Write(u32[:])

		if len(e.Value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.Value)
			ifds.Write(inline[:])
		} else {
			le.PutUint32(u32[:], dataStart+uint32(values.Len()))
			ifds.Write(u32[:])
			values.Write(e.Value)
		}
	}

	// next-IFD offset: none
	ifds.Write([]byte{0, 0, 0, 0})
}

// JPEG segment plumbing.

var (
	jpegSOI = []byte{0xFF, 0xD8}
)

// extractExifPayload returns the TIFF block of the first Exif APP1 segment,
// or nil when the file carries none.
func extractExifPayload(jpegData []byte) []byte {
	segments, _, err := scanJPEGSegments(jpegData)
	if err != nil {
		return nil
	}
	for _, seg := range segments {
		if seg.marker == 0xE1 && bytes.HasPrefix(seg.payload, exifHeader) {
			return seg.payload[len(exifHeader):]
		}
	}
	return nil
}

type jpegSegment struct {
	marker  byte
	payload []byte
}

// scanJPEGSegments splits a JPEG stream into its leading marker segments and
// the remainder starting at SOS (entropy-coded data plus trailer).
func scanJPEGSegments(data []byte) ([]jpegSegment, []byte, error) {
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, nil, fmt.Errorf("not a JPEG stream")
	}
	var segments []jpegSegment
	i := 2
	for i+2 <= len(data) {
		if data[i] != 0xFF {
			return nil, nil, fmt.Errorf("bad marker alignment at %d", i)
		}
		// 0xFF fill bytes before a marker are legal padding.
		for data[i+1] == 0xFF {
			i++
			if i+2 > len(data) {
				return nil, nil, fmt.Errorf("no SOS or EOI marker found")
			}
		}
		marker := data[i+1]
		switch {
		case marker == 0xDA: // SOS: the rest is the compressed image stream
			return segments, data[i:], nil
		case marker == 0xD9: // EOI with no scan
			return segments, data[i:], nil
		case marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			segments = append(segments, jpegSegment{marker: marker})
			i += 2
		default:
			if i+4 > len(data) {
				return nil, nil, fmt.Errorf("segment %#x overruns stream", marker)
			}
			length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
			if length < 2 || i+2+length > len(data) {
				return nil, nil, fmt.Errorf("segment %#x overruns stream", marker)
			}
			segments = append(segments, jpegSegment{marker: marker, payload: data[i+4 : i+2+length]})
			i += 2 + length
		}
	}
	return nil, nil, fmt.Errorf("no SOS or EOI marker found")
}

// spliceExif rewrites a JPEG stream with the given TIFF block as its single
// Exif APP1 segment, inserted right after SOI; any previous Exif APP1 is
// dropped. The image stream itself passes through untouched.
func spliceExif(jpegData, tiff []byte) ([]byte, error) {
	segments, rest, err := scanJPEGSegments(jpegData)
	if err != nil {
		return nil, err
	}

	payload := append(append([]byte(nil), exifHeader...), tiff...)
	if len(payload)+2 > 0xFFFF {
		return nil, fmt.Errorf("exif segment too large: %d bytes", len(payload))
	}

	var out bytes.Buffer
	out.Write(jpegSOI)
	out.Write([]byte{0xFF, 0xE1})
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(payload)+2))
	out.Write(lenBytes[:])
	out.Write(payload)

	for _, seg := range segments {
		if seg.marker == 0xE1 && bytes.HasPrefix(seg.payload, exifHeader) {
			continue
		}
		out.Write([]byte{0xFF, seg.marker})
		if seg.payload != nil {
			binary.BigEndian.PutUint16(lenBytes[:], uint16(len(seg.payload)+2))
			out.Write(lenBytes[:])
			out.Write(seg.payload)
		}
	}
	out.Write(rest)
	return out.Bytes(), nil
}

// writeJPEGRecord loads the existing tag block (or starts empty), writes every
// non-empty canonical field per the tag table, and returns the rewritten
// stream.
func writeJPEGRecord(jpegData []byte, rec MetadataRecord) ([]byte, error) {
	data := &exifData{}
	if payload := extractExifPayload(jpegData); payload != nil {
		parsed, err := parseTIFF(payload)
		if err == nil {
			data = parsed
		}
		// An unparseable existing block is replaced rather than propagated.
	}

	for _, name := range CanonicalFields {
		value, ok := rec[name]
		if !ok || value == "" {
			continue
		}
		if err := data.setField(name, value); err != nil {
			return nil, err
		}
	}

	return spliceExif(jpegData, data.serializeTIFF())
}

// readJPEGRecord extracts the canonical fields from a JPEG stream's embedded
// tag block.
func readJPEGRecord(jpegData []byte) (MetadataRecord, error) {
	payload := extractExifPayload(jpegData)
	if payload == nil {
		return MetadataRecord{}, nil
	}
	data, err := parseTIFF(payload)
	if err != nil {
		return nil, err
	}
	rec := make(MetadataRecord)
	for _, name := range CanonicalFields {
		if v, ok := data.field(name); ok && v != "" {
			rec[name] = v
		}
	}
	return rec, nil
}
