package metagen

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gradientPNG writes a horizontal gray gradient; reversed gradients hash far
// apart, identical ones hash together.
func gradientPNG(t *testing.T, dir, name string, reverse bool) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		v := uint8(x * 4)
		if reverse {
			v = 255 - v
		}
		for y := 0; y < 64; y++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestAnalyzeFolderDuplicateGroups(t *testing.T) {
	dir := t.TempDir()
	a := gradientPNG(t, dir, "a.png", false)
	b := gradientPNG(t, dir, "b.png", false)
	c := gradientPNG(t, dir, "c.png", true)

	stats := AnalyzeFolder(dir, []string{a, b, c})

	require.Len(t, stats.DuplicateGroups, 1)
	assert.ElementsMatch(t, []string{"a.png", "b.png"}, stats.DuplicateGroups[0])
}

func TestAnalyzeFolderStats(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.jpg")
	large := filepath.Join(dir, "large.webp")
	require.NoError(t, os.WriteFile(small, []byte("12"), 0o644))
	require.NoError(t, os.WriteFile(large, make([]byte, 4096), 0o644))

	stats := AnalyzeFolder(dir, []string{small, large})

	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, map[string]int{".jpg": 1, ".webp": 1}, stats.Extensions)
	require.NotNil(t, stats.Largest)
	require.NotNil(t, stats.Smallest)
	assert.Equal(t, "large.webp", stats.Largest.Name)
	assert.Equal(t, int64(4096), stats.Largest.Size)
	assert.Equal(t, "small.jpg", stats.Smallest.Name)
	// Non-image bytes cannot be hashed, so no duplicate groups form.
	assert.Empty(t, stats.DuplicateGroups)
}

func TestAnalyzeFolderMissingFilesDegrade(t *testing.T) {
	stats := AnalyzeFolder("/nope", []string{"/nope/a.jpg", "/nope/b.jpg"})

	assert.Equal(t, 2, stats.Count)
	assert.Nil(t, stats.Largest)
	assert.Nil(t, stats.Smallest)
	assert.Empty(t, stats.DuplicateGroups)
}

func TestCommonPrefixTokens(t *testing.T) {
	shared := []string{
		"/d/F032_ST78_Grey_room_1.jpg",
		"/d/F032_ST78_Grey_detail_2.jpg",
	}
	assert.Equal(t, []string{"F032", "ST78", "Grey"}, commonPrefixTokens(shared))

	assert.Nil(t, commonPrefixTokens([]string{"/d/alpha_1.jpg", "/d/beta_1.jpg"}))
	assert.Equal(t, []string{"only", "one"}, commonPrefixTokens([]string{"/d/only_one.jpg"}))
	assert.Nil(t, commonPrefixTokens(nil))
}

func TestAnswerFromToolDuplicates(t *testing.T) {
	stats := FolderStats{DuplicateGroups: [][]string{{"a.jpg", "b.jpg"}}}
	out := AnswerFromTool("Are there duplicate images?", stats)
	assert.Contains(t, out, "1 duplicate group")
	assert.Contains(t, out, "a.jpg, b.jpg")

	none := AnswerFromTool("any duplicates?", FolderStats{})
	assert.Contains(t, none, "No perceptually duplicate images")
}

func TestAnswerFromToolExtremes(t *testing.T) {
	stats := FolderStats{
		Largest:  &FileStat{Name: "big.jpg", Size: 9000},
		Smallest: &FileStat{Name: "tiny.jpg", Size: 12},
	}
	assert.Contains(t, AnswerFromTool("which is the largest file?", stats), "big.jpg")
	assert.Contains(t, AnswerFromTool("what is the biggest one?", stats), "big.jpg")
	assert.Contains(t, AnswerFromTool("and the smallest?", stats), "tiny.jpg")

	assert.Contains(t, AnswerFromTool("largest?", FolderStats{}), "not available")
}

func TestAnswerFromToolListAndCount(t *testing.T) {
	stats := FolderStats{
		Folder:     "/data/Kitchens",
		Count:      3,
		Extensions: map[string]int{".jpg": 2, ".webp": 1},
	}
	listed := AnswerFromTool("list the folder contents", stats)
	assert.Contains(t, listed, "3 files")
	assert.Contains(t, listed, ".jpg, .webp")

	counted := AnswerFromTool("how many images are there?", stats)
	assert.Contains(t, counted, "3 files")
	assert.Contains(t, counted, "/data/Kitchens")
}

func TestAnswerFromToolDefaultSummary(t *testing.T) {
	stats := FolderStats{
		Folder:       "/data/Kitchens",
		Count:        2,
		Extensions:   map[string]int{".jpg": 2},
		PrefixTokens: []string{"F032", "ST78"},
		Largest:      &FileStat{Name: "a.jpg", Size: 100},
		Smallest:     &FileStat{Name: "b.jpg", Size: 10},
	}
	out := AnswerFromTool("tell me about this folder", stats)
	assert.Contains(t, out, "Folder analysis of /data/Kitchens")
	assert.Contains(t, out, "F032_ST78")
	assert.Contains(t, out, "10 to 100 bytes")
}
