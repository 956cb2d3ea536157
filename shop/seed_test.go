package shop

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	data := []byte("webp bytes")

	p, created, err := f.svc.Seed(ctx, "/imports/Blue Waves.webp", data, 699)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "Blue Waves", p.Name)
	require.Equal(t, "blue-waves", p.Slug)
	require.Equal(t, int64(699), p.Price)
	require.Equal(t, "http://shop.test/files/pattern-previews/Blue%20Waves.webp", p.ImageURL)
	require.Contains(t, lo.FromPtr(p.Description), "seamless blue waves pattern")

	preview, err := f.blobs.Read(ctx, "pattern-previews", "Blue Waves.webp")
	require.NoError(t, err)
	require.Equal(t, data, preview)
	full, err := f.blobs.Read(ctx, "patterns", p.PremiumObject())
	require.NoError(t, err)
	require.Equal(t, data, full)

	_, created, err = f.svc.Seed(ctx, "/other/blue waves.png", data, 699)
	require.NoError(t, err)
	require.False(t, created, "existing slug is left alone")

	_, _, err = f.svc.Seed(ctx, "/imports/---.png", data, 699)
	require.Error(t, err)
}
