package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FS keeps buckets as directories of an afero filesystem and serves objects through HMAC signed
// links under BaseURL, e.g. http://localhost:8080/files.
type FS struct {
	fs      afero.Fs
	baseURL string
	secret  []byte
	now     func() time.Time
}

var _ Store = (*FS)(nil)

func NewFS(fsys afero.Fs, baseURL, secret string) *FS {
	return &FS{fs: fsys, baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret), now: time.Now}
}

// NewOsFS roots an FS store at dir on the local disk.
func NewOsFS(dir, baseURL, secret string) *FS {
	return NewFS(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL, secret)
}

func (f *FS) file(bucket, object string) (string, error) {
	object, err := clean(bucket, object)
	if err != nil {
		return "", err
	}
	return path.Join("/", bucket, object), nil
}

func (f *FS) sign(bucket, object string, expires int64) string {
	mac := hmac.New(sha256.New, f.secret)
	fmt.Fprintf(mac, "%s/%s:%d", bucket, object, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (f *FS) SignedURL(_ context.Context, bucket, object string, ttl time.Duration) (string, error) {
	object, err := clean(bucket, object)
	if err != nil {
		return "", err
	}
	expires := f.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", f.sign(bucket, object, expires))
	return f.PublicURL(bucket, object) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedURL.
func (f *FS) Verify(bucket, object, expires, sig string) error {
	object, err := clean(bucket, object)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || f.now().Unix() > exp {
		return ErrBadSigning
	}
	want := f.sign(bucket, object, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSigning
	}
	return nil
}

func (f *FS) Read(_ context.Context, bucket, object string) ([]byte, error) {
	name, err := f.file(bucket, object)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, object, ErrNotFound)
	}
	return data, err
}

func (f *FS) Put(_ context.Context, bucket, object, _ string, data []byte) error {
	name, err := f.file(bucket, object)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, name, data, 0o644)
}

func (f *FS) Remove(_ context.Context, bucket string, objects ...string) error {
	for _, o := range objects {
		name, err := f.file(bucket, o)
		if err != nil {
			return err
		}
		if err := f.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (f *FS) Exists(_ context.Context, bucket, object string) (bool, error) {
	name, err := f.file(bucket, object)
	if err != nil {
		return false, err
	}
	return afero.Exists(f.fs, name)
}

func (f *FS) PublicURL(bucket, object string) string {
	return f.baseURL + "/" + bucket + "/" + escape(strings.TrimPrefix(object, "/"))
}
