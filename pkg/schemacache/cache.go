// Package schemacache keeps parsed ASN.1 modules on disk, keyed by the hash
// of their source text, so tools that load the same schemas repeatedly can
// skip parsing.
//
// Each entry is one file holding a checksummed frame around a YAML document
// of the module, compressed with zstd when large. Unreadable, corrupt or
// colliding entries are reported as misses and overwritten by the next Store.
package schemacache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
)

const (
	// compressAbove is the payload size from which entries are compressed.
	compressAbove = 512
	maxPayload    = 64 << 20
	entryExt      = ".ask"
)

// Cache is a directory of module entries. It is safe for concurrent use;
// writers replace entries atomically by renaming a temporary file.
type Cache struct {
	dir    string
	logger zerolog.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// Option configures New.
type Option func(*Cache)

// WithLogger reports hits, misses and discarded entries at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New opens the cache rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("schemacache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		return nil, err
	}
	c := &Cache{dir: dir, logger: zerolog.Nop(), enc: enc, dec: dec}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the compressor state.
func (c *Cache) Close() error {
	c.dec.Close()
	return c.enc.Close()
}

// Path returns the file that holds the entry for text.
func (c *Cache) Path(text string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x%s", xxhash.Sum64String(text), entryExt))
}

// Load returns the cached module for text. ok is false on a miss; err is
// set only when the cache itself cannot be read.
func (c *Cache) Load(text string) (*schema.Module, bool, error) {
	path := c.Path(text)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug().Str("path", path).Msg("cache miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schemacache: %w", err)
	}
	m, err := c.decodeEntry(text, data)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("discarding cache entry")
		return nil, false, nil
	}
	c.logger.Debug().Str("path", path).Str("module", m.Name).Msg("cache hit")
	return m, true, nil
}

func (c *Cache) decodeEntry(text string, data []byte) (*schema.Module, error) {
	payload, flags, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if flags&FlagZstd != 0 {
		if payload, err = c.decompress(payload); err != nil {
			return nil, err
		}
	}
	var e entry
	if err := yaml.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("schemacache: %w", err)
	}
	if e.Source != text {
		return nil, errors.New("schemacache: source text differs")
	}
	return e.Module.toModule()
}

// compress returns the raw size as a varint followed by the zstd stream.
func (c *Cache) compress(raw []byte) []byte {
	out := common.WriteVarUint(nil, uint64(len(raw)))
	return c.enc.EncodeAll(raw, out)
}

func (c *Cache) decompress(data []byte) ([]byte, error) {
	size, n := common.ReadVarUint(data)
	if n == 0 || size > maxPayload {
		return nil, ErrLength
	}
	raw, err := c.dec.DecodeAll(data[n:], make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("schemacache: %w", err)
	}
	if uint64(len(raw)) != size {
		return nil, ErrLength
	}
	return raw, nil
}

// Store writes the entry for text.
func (c *Cache) Store(text string, m *schema.Module) error {
	payload, err := yaml.Marshal(entry{Source: text, Module: fromModule(m)})
	if err != nil {
		return fmt.Errorf("schemacache: %w", err)
	}
	var flags byte
	if len(payload) > compressAbove {
		payload = c.compress(payload)
		flags |= FlagZstd
	}
	data, err := encodeFrame(payload, flags)
	if err != nil {
		return fmt.Errorf("schemacache: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("schemacache: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("schemacache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("schemacache: %w", err)
	}
	path := c.Path(text)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("schemacache: %w", err)
	}
	c.logger.Debug().Str("path", path).Str("module", m.Name).Int("size", len(data)).Msg("stored cache entry")
	return nil
}

// ParseCached returns the module for text from the cache, parsing and
// storing it on a miss. A failed store is logged and does not fail the
// call.
func (c *Cache) ParseCached(text string) (*schema.Module, error) {
	m, ok, err := c.Load(text)
	if err != nil {
		return nil, err
	}
	if ok {
		return m, nil
	}
	m, err = parser.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := c.Store(text, m); err != nil {
		c.logger.Warn().Err(err).Msg("caching parsed module")
	}
	return m, nil
}
