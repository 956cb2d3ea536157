package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestConfig_LoadsApplicationTestYml(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(cwd)))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	Reset()
	t.Cleanup(Reset)

	res := Config()
	require.True(t, res.IsOk())
	v := res.MustGet()
	require.Equal(t, "sqlite3", v.GetString("datasource.default.driver"))
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("SHOP_STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("SHOP_CREDITS_PER_INVOICE", "20")
	Reset()
	t.Cleanup(Reset)

	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk_test_env", s.Stripe.SecretKey)
	require.Equal(t, 20, s.Credits.PerInvoice)
	require.Equal(t, 90*24*time.Hour, s.Credits.Lifetime)
	require.Equal(t, 7*24*time.Hour, s.Credits.ExpiryWindow)
	require.Equal(t, "pattern-previews", s.Storage.PreviewBucket)
	require.Equal(t, 60*time.Second, s.Storage.SignedURLTTL)
	require.Equal(t, int64(7), s.Stripe.TrialDays)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		setting LogSettings
		debug   bool
		json    bool
	}{
		{"json info", LogSettings{Level: "info", Format: "json"}, false, true},
		{"text debug", LogSettings{Level: "debug", Format: "text"}, true, false},
		{"unknown level", LogSettings{Level: "loud"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.setting, &buf)
			logger.Debug("dbg")
			logger.Info("hello", "k", "v")
			out := buf.String()
			require.Equal(t, tt.debug, bytes.Contains(buf.Bytes(), []byte("dbg")))
			if tt.json {
				last := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
				require.Equal(t, "hello", gjson.GetBytes(last[len(last)-1], "msg").String())
			} else {
				require.Contains(t, out, "msg=hello")
			}
		})
	}
}

func TestConfig_DirOverride(t *testing.T) {
	dir := t.TempDir()
	yml := "server:\n  app_url: \"http://override.test\"\ncron:\n  secret: from-dir\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application_test.yml"), []byte(yml), 0o600))
	t.Setenv("SHOP_CONFIG_DIR", dir)
	Reset()
	t.Cleanup(Reset)

	s, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://override.test", s.Server.AppURL)
	require.Equal(t, "from-dir", s.Cron.Secret)
}

func TestConfig_BrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "application_test.yml"), []byte("server: [unclosed"), 0o600))
	t.Setenv("SHOP_CONFIG_DIR", dir)
	Reset()
	t.Cleanup(Reset)

	require.True(t, Config().IsError())
	_, err := Load()
	require.Error(t, err)
}
