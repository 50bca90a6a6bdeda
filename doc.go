// Package metagen implements AI-assisted batch metadata generation for image
// folders: it derives structural context from paths and filenames, renders a
// user-authored rule template into a per-image prompt, calls a vision-capable
// chat-completions endpoint, extracts a fixed set of metadata fields from the
// free-text reply, and persists them into the image files (embedded EXIF tags
// for the JPEG family, exiftool-written XMP tags for WebP), with per-image
// failure isolation and a read-back verification path.
package metagen
