package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/agents"
)

type fakeImageClient struct {
	data []byte
	mime string
	err  error
}

func (f *fakeImageClient) GenerateImage(ctx context.Context, prompt, dimensions string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mime, nil
}

func somePrompts() []agents.ImagePrompt {
	return []agents.ImagePrompt{
		{Description: "app logo", Style: "flat", Dimensions: "512x512", UseCase: "logo"},
		{Description: "hero shot", Style: "flat", Dimensions: "1024x512", UseCase: "hero"},
	}
}

func TestGenerateWithoutClientProducesLabeledPlaceholders(t *testing.T) {
	g := NewGenerator(nil, nil)

	urls, err := g.Generate(context.Background(), somePrompts())
	require.NoError(t, err)
	require.Len(t, urls, 2)

	for i, useCase := range []string{"logo", "hero"} {
		require.True(t, strings.HasPrefix(urls[i], "data:image/svg+xml;base64,"))
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(urls[i], "data:image/svg+xml;base64,"))
		require.NoError(t, err)
		assert.Contains(t, string(raw), ">"+useCase+"<")
	}
}

func TestGenerateFailureDegradesToPlaceholder(t *testing.T) {
	g := NewGenerator(&fakeImageClient{err: errors.New("quota exceeded")}, nil)

	urls, err := g.Generate(context.Background(), somePrompts()[:1])
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "image/svg+xml")
}

func TestGenerateUploadsToStorage(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewLocalStorage(dir)
	require.NoError(t, err)

	g := NewGenerator(&fakeImageClient{data: []byte("pngbytes"), mime: "image/png"}, storage)

	urls, err := g.Generate(context.Background(), somePrompts()[:1])
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.True(t, strings.HasPrefix(urls[0], "/assets/logo-"))
	assert.True(t, strings.HasSuffix(urls[0], ".png"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
}

func TestLocalStoragePutCreatesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewLocalStorage(dir)
	require.NoError(t, err)

	url, err := storage.Put(context.Background(), "proj/logo.svg", []byte("<svg/>"), "image/svg+xml")
	require.NoError(t, err)
	assert.Equal(t, "/assets/proj/logo.svg", url)

	data, err := os.ReadFile(filepath.Join(dir, "proj", "logo.svg"))
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}
