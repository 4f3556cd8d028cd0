package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMissingFile(t *testing.T) {
	e := NewPDF(0)
	_, _, err := e.Extract(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestExtractCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o644))
	e := NewPDF(0)
	_, _, err := e.Extract(path)
	assert.Error(t, err)
}

func TestClean(t *testing.T) {
	in := "Heading\x00\x1f  with   spaced\tout   words\n\n\n\n\nNext paragraph  "
	out := Clean(in)
	assert.Equal(t, "Heading with spaced out words\n\nNext paragraph", out)
	assert.NotContains(t, out, "\x00")
}

func TestCleanIdempotent(t *testing.T) {
	in := "Already clean text.\n\nSecond paragraph."
	assert.Equal(t, in, Clean(in))
}
