package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// Supabase talks to the Supabase Storage REST API with a service role key.
type Supabase struct {
	base string
	key  string
	http *http.Client
}

var _ Store = (*Supabase)(nil)

// NewSupabase returns a client for the project at projectURL, e.g. https://xyz.supabase.co.
func NewSupabase(projectURL, serviceKey string, client *http.Client) *Supabase {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Supabase{base: strings.TrimRight(projectURL, "/") + "/storage/v1", key: serviceKey, http: client}
}

func escape(object string) string {
	return strings.Join(lo.Map(strings.Split(object, "/"), func(s string, _ int) string { return url.PathEscape(s) }), "/")
}

func (s *Supabase) SignedURL(ctx context.Context, bucket, object string, ttl time.Duration) (string, error) {
	object, err := clean(bucket, object)
	if err != nil {
		return "", err
	}
	body, _ := json.Marshal(map[string]int64{"expiresIn": int64(ttl / time.Second)})
	status, data, err := s.do(ctx, http.MethodPost, "/object/sign/"+bucket+"/"+escape(object), "application/json", body)
	if err != nil {
		return "", err
	}
	if err := check(status, data, bucket, object); err != nil {
		return "", err
	}
	signed := gjson.GetBytes(data, "signedURL").String()
	if signed == "" {
		return "", fmt.Errorf("sign %s/%s: empty signed url", bucket, object)
	}
	return s.base + signed, nil
}

func (s *Supabase) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	object, err := clean(bucket, object)
	if err != nil {
		return nil, err
	}
	status, data, err := s.do(ctx, http.MethodGet, "/object/"+bucket+"/"+escape(object), "", nil)
	if err != nil {
		return nil, err
	}
	if err := check(status, data, bucket, object); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Supabase) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	object, err := clean(bucket, object)
	if err != nil {
		return err
	}
	req, err := s.request(ctx, http.MethodPost, "/object/"+bucket+"/"+escape(object), contentType, data)
	if err != nil {
		return err
	}
	req.Header.Set("x-upsert", "true")
	status, body, err := s.send(req)
	if err != nil {
		return err
	}
	return check(status, body, bucket, object)
}

func (s *Supabase) Remove(ctx context.Context, bucket string, objects ...string) error {
	if len(objects) == 0 {
		return nil
	}
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		name, err := clean(bucket, o)
		if err != nil {
			return err
		}
		names = append(names, name)
	}
	body, _ := json.Marshal(map[string][]string{"prefixes": names})
	status, data, err := s.do(ctx, http.MethodDelete, "/object/"+bucket, "application/json", body)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("remove from %s: %d %s", bucket, status, gjson.GetBytes(data, "message").String())
	}
	return nil
}

// Exists lists the object's folder searching for its base name.
func (s *Supabase) Exists(ctx context.Context, bucket, object string) (bool, error) {
	object, err := clean(bucket, object)
	if err != nil {
		return false, err
	}
	dir, name := path.Split(object)
	body, _ := json.Marshal(map[string]any{"prefix": strings.TrimSuffix(dir, "/"), "search": name, "limit": 100})
	status, data, err := s.do(ctx, http.MethodPost, "/object/list/"+bucket, "application/json", body)
	if err != nil {
		return false, err
	}
	if status >= 300 {
		return false, fmt.Errorf("list %s: %d %s", bucket, status, gjson.GetBytes(data, "message").String())
	}
	found := false
	gjson.ParseBytes(data).ForEach(func(_, entry gjson.Result) bool {
		found = entry.Get("name").String() == name
		return !found
	})
	return found, nil
}

func (s *Supabase) PublicURL(bucket, object string) string {
	return s.base + "/object/public/" + bucket + "/" + escape(strings.TrimPrefix(object, "/"))
}

func (s *Supabase) request(ctx context.Context, method, p, contentType string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base+p, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (s *Supabase) do(ctx context.Context, method, p, contentType string, body []byte) (int, []byte, error) {
	req, err := s.request(ctx, method, p, contentType, body)
	if err != nil {
		return 0, nil, err
	}
	return s.send(req)
}

func (s *Supabase) send(req *http.Request) (int, []byte, error) {
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("storage %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// check maps storage API failures. Supabase reports a missing object as 404 or as 400 with a
// not_found error body.
func check(status int, data []byte, bucket, object string) error {
	if status < 300 {
		return nil
	}
	res := gjson.ParseBytes(data)
	if status == http.StatusNotFound || res.Get("statusCode").String() == "404" || res.Get("error").String() == "not_found" {
		return fmt.Errorf("%s/%s: %w", bucket, object, ErrNotFound)
	}
	return fmt.Errorf("storage %s/%s: %d %s", bucket, object, status, res.Get("message").String())
}
