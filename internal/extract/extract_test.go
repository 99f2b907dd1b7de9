package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBytes_HTML(t *testing.T) {
	tests := []struct {
		name        string
		html        string
		wantContain []string
		noLeak      []string
	}{
		{
			name:        "plain body",
			html:        `<html><body><p>Mail jane@example.org</p></body></html>`,
			wantContain: []string{"Mail jane@example.org"},
			noLeak:      []string{"<p>", "<body>"},
		},
		{
			name:        "script and style dropped",
			html:        `<script>var ssn = "123-45-6789"</script><style>p{}</style><div>Visible</div>`,
			wantContain: []string{"Visible"},
			noLeak:      []string{"123-45-6789", "<script", "<div>"},
		},
		{
			name:        "entities unescaped",
			html:        `<p>Smith &amp; Sons, call (555) 123-4567</p>`,
			wantContain: []string{"Smith & Sons, call (555) 123-4567"},
			noLeak:      []string{"&amp;"},
		},
		{
			name:        "unclosed script",
			html:        `<p>OK</p><script>leak all the things`,
			wantContain: []string{"OK"},
			noLeak:      []string{"leak", "<script"},
		},
	}

	e := NewExtractor(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(context.Background(), "page.html", []byte(tt.html))
			require.NoError(t, err)
			for _, w := range tt.wantContain {
				assert.Contains(t, got, w)
			}
			for _, n := range tt.noLeak {
				assert.NotContains(t, got, n)
			}
		})
	}
}

func TestExtractBytes_PlainFormats(t *testing.T) {
	e := NewExtractor(0)
	for _, name := range []string{"notes.txt", "README.md", "rows.csv", "app.log", "records.jsonl", "noext"} {
		t.Run(name, func(t *testing.T) {
			got, err := e.ExtractBytes(context.Background(), name, []byte("a <b> c"))
			require.NoError(t, err)
			assert.Equal(t, "a <b> c", got)
		})
	}
}

func TestExtractBytes_Unsupported(t *testing.T) {
	_, err := NewExtractor(0).ExtractBytes(context.Background(), "scan.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), ".pdf")
}

func TestExtract_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.htm")
	require.NoError(t, os.WriteFile(path, []byte("<b>SSN</b> 123-45-6789"), 0o600))

	got, err := NewExtractor(0).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "SSN 123-45-6789", got)

	_, err = NewExtractor(0).Extract(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestExtract_SizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o600))

	_, err := NewExtractor(32).Extract(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge))

	got, err := NewExtractor(64).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, got, 64)
}
