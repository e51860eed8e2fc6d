package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextPlainFiles(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text body"), 0o644))
	got, err := ExtractText(txt)
	require.NoError(t, err)
	assert.Equal(t, "plain text body", got)

	md := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(md, []byte("# Title\n\nbody"), 0o644))
	got, err = ExtractText(md)
	require.NoError(t, err)
	assert.Contains(t, got, "Title")
}

func TestExtractTextUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "image.png")
	require.NoError(t, os.WriteFile(bin, []byte{0x89, 0x50}, 0o644))
	_, err := ExtractText(bin)
	assert.Error(t, err)
}

func TestExtractTextMissingFile(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "gone.txt"))
	assert.Error(t, err)
}

func TestExtractTextBrokenPDF(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf at all"), 0o644))
	_, err := ExtractText(bad)
	assert.Error(t, err)
}
