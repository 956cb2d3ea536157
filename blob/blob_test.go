package blob

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		bucket, object string
		want           string
		wantErr        bool
	}{
		{"patterns", "premium/Blue Waves.png", "premium/Blue Waves.png", false},
		{"patterns", "/a.png", "a.png", false},
		{"patterns", "../secret", "", true},
		{"patterns", "a/./b", "", true},
		{"", "a.png", "", true},
		{"a/b", "a.png", "", true},
		{"patterns", "", "", true},
	}
	for _, tt := range tests {
		got, err := clean(tt.bucket, tt.object)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrBadObject, tt.object)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestObjectFromURL(t *testing.T) {
	obj, ok := ObjectFromURL("https://x.supabase.co/storage/v1/object/public/pattern-previews/blue-waves.png", "pattern-previews")
	require.True(t, ok)
	require.Equal(t, "blue-waves.png", obj)
	_, ok = ObjectFromURL("https://cdn.test/blue-waves.png", "pattern-previews")
	require.False(t, ok)
}

func TestFS(t *testing.T) {
	ctx := context.Background()
	store := NewFS(afero.NewMemMapFs(), "http://shop.test/files/", "secret")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "patterns", "premium/Blue Waves.png", "image/png", []byte("png")))
	ok, err := store.Exists(ctx, "patterns", "premium/Blue Waves.png")
	require.NoError(t, err)
	require.True(t, ok)

	data, err := store.Read(ctx, "patterns", "premium/Blue Waves.png")
	require.NoError(t, err)
	require.Equal(t, "png", string(data))
	_, err = store.Read(ctx, "patterns", "premium/missing.png")
	require.ErrorIs(t, err, ErrNotFound)

	signed, err := store.SignedURL(ctx, "patterns", "premium/Blue Waves.png", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "/files/patterns/premium/Blue Waves.png", u.Path)
	q := u.Query()
	require.NoError(t, store.Verify("patterns", "premium/Blue Waves.png", q.Get("expires"), q.Get("sig")))
	require.ErrorIs(t, store.Verify("patterns", "premium/Other.png", q.Get("expires"), q.Get("sig")), ErrBadSigning)

	now = now.Add(2 * time.Minute)
	require.ErrorIs(t, store.Verify("patterns", "premium/Blue Waves.png", q.Get("expires"), q.Get("sig")), ErrBadSigning)

	require.NoError(t, store.Remove(ctx, "patterns", "premium/Blue Waves.png", "premium/never-there.png"))
	ok, err = store.Exists(ctx, "patterns", "premium/Blue Waves.png")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSupabase(t *testing.T) {
	ctx := context.Background()
	var removed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		require.Equal(t, "service", r.Header.Get("apikey"))
		body, _ := io.ReadAll(r.Body)
		switch r.Method + " " + r.URL.Path {
		case "POST /storage/v1/object/sign/patterns/premium/Blue Waves.png":
			require.JSONEq(t, `{"expiresIn":60}`, string(body))
			_, _ = io.WriteString(w, `{"signedURL":"/object/sign/patterns/premium/Blue%20Waves.png?token=t"}`)
		case "GET /storage/v1/object/pattern-previews/blue-waves.png":
			_, _ = io.WriteString(w, "png")
		case "GET /storage/v1/object/pattern-previews/missing.png":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"statusCode":"404","error":"not_found","message":"Object not found"}`)
		case "POST /storage/v1/object/list/patterns":
			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			require.Equal(t, "premium", req["prefix"])
			_, _ = io.WriteString(w, `[{"name":"Blue Waves.png"},{"name":"Blue Waves 2.png"}]`)
		case "DELETE /storage/v1/object/patterns":
			var req struct{ Prefixes []string }
			require.NoError(t, json.Unmarshal(body, &req))
			removed = req.Prefixes
			_, _ = io.WriteString(w, `[]`)
		case "POST /storage/v1/object/patterns/premium/New.png":
			require.Equal(t, "true", r.Header.Get("x-upsert"))
			require.Equal(t, "image/png", r.Header.Get("Content-Type"))
			_, _ = io.WriteString(w, `{"Key":"patterns/premium/New.png"}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL+"/", "service", srv.Client())

	signed, err := s.SignedURL(ctx, "patterns", "premium/Blue Waves.png", time.Minute)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/sign/patterns/premium/Blue%20Waves.png?token=t", signed)

	data, err := s.Read(ctx, "pattern-previews", "blue-waves.png")
	require.NoError(t, err)
	require.Equal(t, "png", string(data))
	_, err = s.Read(ctx, "pattern-previews", "missing.png")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "patterns", "premium/Blue Waves.png")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Remove(ctx, "patterns", "premium/Blue Waves.png", "blue-waves.png"))
	require.Equal(t, []string{"premium/Blue Waves.png", "blue-waves.png"}, removed)

	require.NoError(t, s.Put(ctx, "patterns", "premium/New.png", "image/png", []byte("png")))
	require.Equal(t, srv.URL+"/storage/v1/object/public/pattern-previews/blue-waves.png", s.PublicURL("pattern-previews", "blue-waves.png"))
}
