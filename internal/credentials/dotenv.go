package credentials

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/subosito/gotenv"
)

// DefaultDotenvTTL is how long a parsed dotenv file is trusted before the
// next lookup re-reads it.
const DefaultDotenvTTL = 30 * time.Second

const dotenvCacheKey = "env"

// Dotenv reads KEY=VALUE pairs from a .env-style file. The parsed file is
// cached for TTL so repeated lookups within one run do not hit the disk.
// A missing file behaves like an empty one.
type Dotenv struct {
	Path  string
	cache *gocache.Cache
}

// NewDotenv returns a Dotenv source for path. A ttl <= 0 uses
// DefaultDotenvTTL.
func NewDotenv(path string, ttl time.Duration) *Dotenv {
	if ttl <= 0 {
		ttl = DefaultDotenvTTL
	}
	return &Dotenv{
		Path:  path,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (d *Dotenv) Name() string { return "dotenv file " + d.Path }

func (d *Dotenv) Lookup(key string) (string, bool) {
	v, ok := d.values()[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Invalidate drops the cached parse.
func (d *Dotenv) Invalidate() {
	d.cache.Delete(dotenvCacheKey)
}

func (d *Dotenv) values() map[string]string {
	if cached, ok := d.cache.Get(dotenvCacheKey); ok {
		return cached.(map[string]string)
	}

	env, err := gotenv.Read(d.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("dotenv file unreadable", "path", d.Path, "error", err)
		}
		env = gotenv.Env{}
	}
	values := map[string]string(env)
	d.cache.Set(dotenvCacheKey, values, gocache.DefaultExpiration)
	return values
}
