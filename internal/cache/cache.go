// Package cache memoises expensive per-place results behind an injectable
// key/value interface. Values are snappy-compressed by every backend.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Cache stores opaque values by key. Get reports a miss with ok=false and a
// nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// Options selects and configures a backend.
type Options struct {
	Driver     string
	Path       string // sqlite database file
	RedisURL   string
	TTL        time.Duration
	MaxEntries int // memory backend capacity
	Prefix     string
}

// Open creates the backend named by opts.Driver. The "none" driver returns
// a nil Cache.
func Open(ctx context.Context, opts Options) (Cache, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverMemory:
		return NewMemory(opts.MaxEntries, opts.TTL), nil
	case DriverSQLite:
		c, err := NewSQLite(ctx, opts.Path, opts.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverRedis:
		c, err := NewRedisFromURL(ctx, opts.RedisURL, opts.Prefix, opts.TTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", opts.Driver)
	}
}

// Key derives a stable key from an operation name and its arguments.
// Strings are Unicode-normalised, case-folded and whitespace-collapsed so
// "Albany, NY" and " albany,  ny" share an entry.
func Key(op string, args ...any) string {
	var b strings.Builder
	b.WriteString(op)
	for _, a := range args {
		b.WriteByte(0x1f)
		b.WriteString(canonical(a))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return op + ":" + hex.EncodeToString(sum[:16])
}

func canonical(a any) string {
	switch v := a.(type) {
	case string:
		return strings.Join(strings.Fields(cases.Fold().String(norm.NFKC.String(v))), " ")
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "<nil>"
	case interface{ String() string }:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. hit reports whether the value came from the cache. A nil
// cache always computes. Failed writes are returned after the value so the
// caller can decide whether to ignore them.
func GetOrCompute(ctx context.Context, c Cache, key string, compute func(context.Context) ([]byte, error)) (value []byte, hit bool, err error) {
	if c == nil {
		value, err = compute(ctx)
		return value, false, err
	}
	value, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return value, true, nil
	}
	value, err = compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(ctx, key, value); err != nil {
		return value, false, err
	}
	return value, false, nil
}

func encode(value []byte) []byte {
	return snappy.Encode(nil, value)
}

func decode(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, eris.Wrap(err, "cache: decompress")
	}
	return out, nil
}
