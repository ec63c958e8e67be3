package static

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittoweb/internal/protocol/static/statictest"
	contentFs "github.com/marmos91/dittoweb/pkg/content/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSiteStore(t *testing.T, extra map[string]string) (*statictest.Site, *contentFs.FSContentStore) {
	t.Helper()
	site := statictest.NewSite(t, extra)
	store, err := contentFs.NewFSContentStore(context.Background(), site.Root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return site, store
}

func TestResolver_Key(t *testing.T) {
	r := NewResolver(nil, "")

	assert.Equal(t, "page.html", r.Key("/"))
	assert.Equal(t, "a.html", r.Key("/a.html"))
	assert.Equal(t, "docs/x.txt", r.Key("/docs/x.txt"))
	assert.Equal(t, "nolead", r.Key("nolead"))

	assert.Equal(t, "index.html", NewResolver(nil, "/index.html").Key("/"))
}

func TestResolver_Resolve(t *testing.T) {
	_, store := newSiteStore(t, map[string]string{"docs/x.txt": "hello"})
	r := NewResolver(store, "")
	ctx := context.Background()

	t.Run("root maps to default document", func(t *testing.T) {
		res, err := r.Resolve(ctx, "/")
		require.NoError(t, err)
		assert.True(t, res.Exists)
		assert.Equal(t, "page.html", res.Key)
		assert.Equal(t, int64(120), res.Info.Size)
	})

	t.Run("nested file", func(t *testing.T) {
		res, err := r.Resolve(ctx, "/docs/x.txt")
		require.NoError(t, err)
		assert.True(t, res.Exists)
		assert.Equal(t, int64(5), res.Info.Size)
	})

	for _, target := range []string{"/missing.html", "/docs", "/../../etc/passwd", "/docs/../../x"} {
		t.Run("miss "+target, func(t *testing.T) {
			res, err := r.Resolve(ctx, target)
			require.NoError(t, err)
			assert.False(t, res.Exists)
			assert.Equal(t, target, res.Target)
		})
	}
}

func TestResolver_BackendFailure(t *testing.T) {
	_, inner := newSiteStore(t, nil)
	store := &faultyStore{Store: inner, statErr: errors.New("permission denied")}

	_, err := NewResolver(store, "").Resolve(context.Background(), "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
