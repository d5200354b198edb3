package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/match-cli/internal/config"
	"github.com/reelmatch/match-cli/internal/schema"
)

func TestMediaTypeOf(t *testing.T) {
	assert.Equal(t, "image/jpeg", mediaTypeOf("frame.jpg"))
	assert.Equal(t, "image/jpeg", mediaTypeOf("frame.jpeg"))
	assert.Equal(t, "image/png", mediaTypeOf("shot.PNG"))
	assert.Equal(t, "image/webp", mediaTypeOf("listing.webp"))
	assert.Equal(t, "image/jpeg", mediaTypeOf("no-extension"))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFrames_OrderBecomesFrameIndex(t *testing.T) {
	a := writeTempFile(t, "a.jpg", "frame-a")
	b := writeTempFile(t, "b.png", "frame-b")

	frames, err := loadFrames([]string{a, b})
	require.NoError(t, err)
	require.Len(t, frames, 2)

	require.NotNil(t, frames[0].Evidence.FrameIndex)
	assert.Equal(t, 0, *frames[0].Evidence.FrameIndex)
	assert.Equal(t, 1, *frames[1].Evidence.FrameIndex)
	assert.Equal(t, "image/jpeg", frames[0].MediaType)
	assert.Equal(t, "image/png", frames[1].MediaType)
	assert.Equal(t, []byte("frame-a"), frames[0].Data)
}

func TestLoadFrames_MissingFile(t *testing.T) {
	_, err := loadFrames([]string{"/nonexistent/frame.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read frame")
}

func TestLoadImageCandidates(t *testing.T) {
	img := writeTempFile(t, "acme-crew.jpg", "photo")

	candidates, err := loadImageCandidates([]string{"sku-42=" + img, img})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "sku-42", candidates[0].ID)
	assert.Equal(t, "acme-crew", candidates[1].ID)
	require.NotNil(t, candidates[0].Image)
	assert.Equal(t, []byte("photo"), candidates[0].Image.Data)
	assert.Nil(t, candidates[0].Observation)
}

func TestLoadFeedCandidates_CSV(t *testing.T) {
	cfg = &config.Config{Catalog: config.CatalogConfig{FeedConfidence: 90}}

	feed := writeTempFile(t, "feed.csv",
		"id,name,url,color,neckline\n"+
			"sku-1,Acme crew,https://shop.example/1,navy,crew\n"+
			"sku-2,Acme vee,https://shop.example/2,black,v-neck\n")

	reg, err := schema.Builtin()
	require.NoError(t, err)
	cs, err := reg.Lookup("tops")
	require.NoError(t, err)

	candidates, err := loadFeedCandidates(context.Background(), feed, cs)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "sku-1", candidates[0].ID)
	assert.Equal(t, "Acme crew", candidates[0].Name)
	require.NotNil(t, candidates[0].Observation)
	assert.Equal(t, "navy", candidates[0].Observation.Value("color").Raw)
	assert.Equal(t, 90.0, candidates[0].Observation.Value("color").Confidence)
	assert.False(t, candidates[0].Observation.Value("brand").Observed)
	assert.Nil(t, candidates[0].Image)
}

func TestReadFeed_UnknownLocalPathFails(t *testing.T) {
	_, err := readFeed(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}
