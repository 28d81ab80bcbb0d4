// Package config loads ani-gogo settings: defaults, then the JSON file in
// the user config folder, then ANI_GOGO_* environment variables. CLI flags
// are applied last by the caller.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/kirsle/configdir"
	"github.com/pkg/errors"

	"github.com/ani/ani-gogo/fetcher/gogoanime"
	"github.com/ani/ani-gogo/sources"
)

const (
	appName   = "ani-gogo"
	fileName  = "config.json"
	envPrefix = "ANI_GOGO_"
)

// Duration reads "30s"-style strings as well as plain nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return errors.WithMessagef(err, "invalid duration %q", s)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	BaseUrl string `json:"baseUrl"`
	Referer string `json:"referer"`
	// quality pinned by the links endpoint and preferred by downloads
	Quality string `json:"quality"`
	// auto, mpv or vlc
	Player   string   `json:"player"`
	Timeout  Duration `json:"timeout"`
	CacheTTL Duration `json:"cacheTTL"`
	LogLevel string   `json:"logLevel"`

	HttpAddr       string   `json:"httpAddr"`
	AllowedOrigins []string `json:"allowedOrigins"`

	DownloadDir string `json:"downloadDir"`
}

func Default() Config {
	return Config{
		BaseUrl:        gogoanime.DefaultBaseUrl,
		Referer:        gogoanime.DefaultReferer,
		Quality:        sources.DefaultPinnedQuality,
		Player:         "auto",
		Timeout:        Duration(30 * time.Second),
		CacheTTL:       Duration(5 * time.Minute),
		LogLevel:       "info",
		HttpAddr:       "127.0.0.1:3000",
		AllowedOrigins: []string{"*"},
		DownloadDir:    defaultDownloadDir(),
	}
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads", appName)
}

// Folder is where the config file lives.
func Folder() string {
	return configdir.LocalConfig(appName)
}

func FilePath() string {
	return filepath.Join(Folder(), fileName)
}

// Load reads the user config file, creating it with defaults on first
// run, then applies environment overrides.
func Load() (Config, error) {
	path := FilePath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := configdir.MakePath(Folder()); err != nil {
			return Config{}, errors.WithMessage(err, "couldn't create ani-gogo config folder")
		}
		if err := Save(path, Default()); err != nil {
			return Config{}, err
		}
	}
	c, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ApplyEnv(c, os.LookupEnv)
}

// LoadFile reads path over the defaults. A missing file yields the
// defaults and an empty file is treated the same way.
func LoadFile(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return Config{}, errors.WithMessagef(err, "couldn't read config file %s", path)
	}
	if strings.TrimSpace(string(b)) == "" {
		return c, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, errors.WithMessagef(err, "couldn't parse config file %s", path)
	}
	return c, nil
}

func Save(path string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errors.WithMessagef(err, "couldn't write config file %s", path)
	}
	return nil
}

// ApplyEnv overrides c with ANI_GOGO_* variables found through lookup.
func ApplyEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	str := map[string]*string{
		"BASE_URL":     &c.BaseUrl,
		"REFERER":      &c.Referer,
		"QUALITY":      &c.Quality,
		"PLAYER":       &c.Player,
		"LOG_LEVEL":    &c.LogLevel,
		"HTTP_ADDR":    &c.HttpAddr,
		"DOWNLOAD_DIR": &c.DownloadDir,
	}
	for key, dst := range str {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	dur := map[string]*Duration{
		"TIMEOUT":   &c.Timeout,
		"CACHE_TTL": &c.CacheTTL,
	}
	for key, dst := range dur {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.WithMessagef(err, "%s%s", envPrefix, key)
		}
		*dst = Duration(d)
	}

	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	return c, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
