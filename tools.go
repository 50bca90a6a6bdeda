package metagen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// dupThreshold is the maximum Hamming distance between two dHash values below
// which images count as perceptual duplicates.
const dupThreshold = 10

// FileStat is one entry in a folder analysis result.
type FileStat struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FolderStats is the structured result of the analyze_folder tool.
type FolderStats struct {
	Folder          string         `json:"folder"`
	Count           int            `json:"count"`
	Extensions      map[string]int `json:"extensions"`
	PrefixTokens    []string       `json:"prefix_tokens,omitempty"`
	Largest         *FileStat      `json:"largest,omitempty"`
	Smallest        *FileStat      `json:"smallest,omitempty"`
	DuplicateGroups [][]string     `json:"duplicate_groups,omitempty"`
}

// analyzeFolderDef declares the local folder-analysis function for
// tool-augmented requests.
var analyzeFolderDef = ToolDef{
	Name:        "analyze_folder",
	Description: "Analyze the image folder: file count, naming patterns, size extremes and perceptual duplicate groups.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"folder": {"type": "string", "description": "Absolute path of the folder to analyze"}
		},
		"required": ["folder"]
	}`),
}

// AnalyzeFolder derives structural facts about an image list: per-extension
// counts, shared filename prefix tokens, size extremes and perceptual
// duplicate groups. Unreadable or undecodable files degrade gracefully and
// are simply absent from the parts of the result that needed them.
func AnalyzeFolder(folder string, paths []string) FolderStats {
	stats := FolderStats{
		Folder:     folder,
		Count:      len(paths),
		Extensions: make(map[string]int),
	}

	type hashed struct {
		name string
		hash *goimagehash.ImageHash
	}
	var hashes []hashed

	for _, p := range paths {
		name := filepath.Base(p)
		stats.Extensions[strings.ToLower(filepath.Ext(p))]++

		if fi, err := os.Stat(p); err == nil {
			fs := FileStat{Name: name, Size: fi.Size()}
			if stats.Largest == nil || fs.Size > stats.Largest.Size {
				v := fs
				stats.Largest = &v
			}
			if stats.Smallest == nil || fs.Size < stats.Smallest.Size {
				v := fs
				stats.Smallest = &v
			}
		}

		if data, err := os.ReadFile(p); err == nil {
			if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
				if h, err := goimagehash.DifferenceHash(img); err == nil {
					hashes = append(hashes, hashed{name: name, hash: h})
				}
			}
		}
	}

	stats.PrefixTokens = commonPrefixTokens(paths)

	// Group perceptually identical images: each unhashed-against image opens a
	// group; later images join the first group within threshold.
	used := make([]bool, len(hashes))
	for i := range hashes {
		if used[i] {
			continue
		}
		group := []string{hashes[i].name}
		for j := i + 1; j < len(hashes); j++ {
			if used[j] {
				continue
			}
			if dist, err := hashes[i].hash.Distance(hashes[j].hash); err == nil && dist < dupThreshold {
				group = append(group, hashes[j].name)
				used[j] = true
			}
		}
		if len(group) > 1 {
			stats.DuplicateGroups = append(stats.DuplicateGroups, group)
		}
	}

	return stats
}

// commonPrefixTokens returns the leading underscore-separated tokens shared by
// every filename stem in the list.
func commonPrefixTokens(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	var common []string
	for i, p := range paths {
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		tokens := strings.Split(stem, "_")
		if i == 0 {
			common = tokens
			continue
		}
		n := 0
		for n < len(common) && n < len(tokens) && common[n] == tokens[n] {
			n++
		}
		common = common[:n]
		if len(common) == 0 {
			return nil
		}
	}
	return common
}

// AnswerFromTool synthesizes a final answer from a tool result locally,
// instead of re-submitting the result to the model for a second pass (found
// unreliable). The router only understands a fixed small set of question
// shapes; anything else falls through to a structured summary of the result.
func AnswerFromTool(question string, stats FolderStats) string {
	q := strings.ToLower(question)

	switch {
	case strings.Contains(q, "duplicate"):
		if len(stats.DuplicateGroups) == 0 {
			return "No perceptually duplicate images were found."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Found %d duplicate group(s):\n", len(stats.DuplicateGroups))
		for i, g := range stats.DuplicateGroups {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(g, ", "))
		}
		return strings.TrimSpace(b.String())

	case strings.Contains(q, "largest") || strings.Contains(q, "biggest"):
		if stats.Largest == nil {
			return "File sizes were not available."
		}
		return fmt.Sprintf("The largest file is %s (%d bytes).", stats.Largest.Name, stats.Largest.Size)

	case strings.Contains(q, "smallest"):
		if stats.Smallest == nil {
			return "File sizes were not available."
		}
		return fmt.Sprintf("The smallest file is %s (%d bytes).", stats.Smallest.Name, stats.Smallest.Size)

	case strings.Contains(q, "list"):
		exts := sortedKeys(stats.Extensions)
		return fmt.Sprintf("Folder %s holds %d files with extensions: %s.",
			stats.Folder, stats.Count, strings.Join(exts, ", "))

	case strings.Contains(q, "how many") || strings.Contains(q, "count"):
		return fmt.Sprintf("There are %d files in %s.", stats.Count, stats.Folder)

	default:
		return summarizeFolder(stats)
	}
}

// summarizeFolder is the default passthrough over the structured tool result.
func summarizeFolder(stats FolderStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Folder analysis of %s:\n", stats.Folder)
	fmt.Fprintf(&b, "- %d files", stats.Count)
	if exts := sortedKeys(stats.Extensions); len(exts) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(exts, ", "))
	}
	b.WriteString("\n")
	if len(stats.PrefixTokens) > 0 {
		fmt.Fprintf(&b, "- Shared filename prefix: %s\n", strings.Join(stats.PrefixTokens, "_"))
	}
	if stats.Largest != nil && stats.Smallest != nil {
		fmt.Fprintf(&b, "- Size range: %d to %d bytes\n", stats.Smallest.Size, stats.Largest.Size)
	}
	if len(stats.DuplicateGroups) > 0 {
		fmt.Fprintf(&b, "- %d perceptual duplicate group(s)\n", len(stats.DuplicateGroups))
	}
	return strings.TrimSpace(b.String())
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
