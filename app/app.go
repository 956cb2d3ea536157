package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SHOP"
	// dirEnv names a directory searched before every other location.
	dirEnv = envPrefix + "_CONFIG_DIR"
)

var (
	cfg     *viper.Viper
	cfgErr  error
	cfgOnce sync.Once
)

// Config returns the process wide configuration, loading it on first use.
//
// Test binaries read application_test.yml, everything else application.yml. The file is looked
// up in $SHOP_CONFIG_DIR, the module root and the working directory, each also with a config/
// subfolder. A missing file is fine since defaults and SHOP_* variables still apply; a file that
// does not parse is an error.
func Config() mo.Result[*viper.Viper] {
	cfgOnce.Do(func() {
		cfg, cfgErr = load(lo.Ternary(testing.Testing(), "application_test", "application"))
	})
	return mo.TupleToResult(cfg, cfgErr)
}

// Reset drops the cached configuration so the next Config call reloads it.
func Reset() {
	cfg, cfgErr = nil, nil
	cfgOnce = sync.Once{}
}

func load(name string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for _, dir := range searchDirs() {
		v.AddConfigPath(dir)
		v.AddConfigPath(filepath.Join(dir, "config"))
	}
	err := v.ReadInConfig()
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s.yml: %w", name, err)
	}
	return v, nil
}

func searchDirs() []string {
	var dirs []string
	if dir := os.Getenv(dirEnv); dir != "" {
		dirs = append(dirs, dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return append(dirs, ".")
	}
	if root, ok := moduleRoot(cwd); ok {
		dirs = append(dirs, root)
	}
	return lo.Uniq(append(dirs, cwd))
}

// moduleRoot walks up from dir to the nearest folder holding a go.mod, so package tests find
// the root configuration.
func moduleRoot(dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
