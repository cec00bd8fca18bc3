// Package mcdb implements a world.Provider backed by a leveldb database,
// with columns serialised to little-endian NBT and compressed before they
// are written.
package mcdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/stratum/world"
	"github.com/df-mc/stratum/world/chunk"
	"github.com/klauspost/compress/zlib"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// keyColumn is appended to a packed position to form the key under which
// the serialised column of that position is stored. keyVersion holds the
// storage version of a column and is checked before the column is read.
const (
	keyVersion byte = 'v'
	keyColumn  byte = 'c'
)

// columnVersion is the current version of stored columns. Columns written
// with a different version are rejected on load.
const columnVersion = 1

// Config holds the settings of a DB. Zero-value fields are replaced with
// sensible defaults by Open.
type Config struct {
	// Log is the logger used for errors that occur during background
	// compaction and close. It defaults to slog.Default().
	Log *slog.Logger
	// BlockSize is the leveldb block size in bytes. It defaults to 16KiB.
	BlockSize int
	// ReadOnly opens the database in read-only mode. StoreColumn calls
	// return an error when set.
	ReadOnly bool
}

// DB implements world.Provider on top of a leveldb database in a directory
// on disk.
type DB struct {
	conf Config
	ldb  *leveldb.DB
	dir  string

	mu     sync.Mutex
	hashes map[uint64]uint64
}

// Open creates a DB reading and writing from/to files under the directory
// passed, creating the directory if it does not yet exist.
func (conf Config) Open(dir string) (*DB, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.BlockSize == 0 {
		conf.BlockSize = 16 * opt.KiB
	}
	if err := os.MkdirAll(filepath.Join(dir, "db"), 0777); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ldb, err := leveldb.OpenFile(filepath.Join(dir, "db"), &opt.Options{
		Compression: opt.FlateCompression,
		BlockSize:   conf.BlockSize,
		ReadOnly:    conf.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: leveldb: %w", err)
	}
	return &DB{conf: conf, ldb: ldb, dir: dir, hashes: make(map[uint64]uint64)}, nil
}

// Open creates a DB with a default Config, reading and writing from/to
// files under the directory passed.
func Open(dir string) (*DB, error) {
	return Config{}.Open(dir)
}

// column is the NBT shape of a stored column. The chunk payload is held
// zlib-compressed.
type column struct {
	Min     int32  `nbt:"min"`
	Max     int32  `nbt:"max"`
	Air     int32  `nbt:"air"`
	Payload []byte `nbt:"payload"`
}

// LoadColumn reads the column at the position passed from the database. If
// no column is present at the position, leveldb.ErrNotFound is returned.
func (db *DB) LoadColumn(pos world.ChunkPos) (*chunk.Chunk, error) {
	k := index(pos)
	ver, err := db.ldb.Get(append(k, keyVersion), nil)
	if err != nil {
		// Version key missing means the column was never written.
		return nil, err
	}
	if len(ver) != 1 || ver[0] != columnVersion {
		return nil, fmt.Errorf("load column %v: unsupported storage version %v", pos, ver)
	}
	data, err := db.ldb.Get(append(k, keyColumn), nil)
	if err != nil {
		return nil, fmt.Errorf("load column %v: %w", pos, err)
	}
	var col column
	if err := nbt.UnmarshalEncoding(data, &col, nbt.LittleEndian); err != nil {
		return nil, fmt.Errorf("load column %v: decode NBT: %w", pos, err)
	}
	r, err := zlib.NewReader(bytes.NewReader(col.Payload))
	if err != nil {
		return nil, fmt.Errorf("load column %v: decompress: %w", pos, err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("load column %v: decompress: %w", pos, err)
	}
	_ = r.Close()
	c, err := chunk.Decode(uint32(col.Air), chunk.Range{int(col.Min), int(col.Max)}, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("load column %v: %w", pos, err)
	}
	return c, nil
}

// StoreColumn writes the column at the position passed to the database.
// Writing a column whose serialised form is identical to the last form
// written for the position is a no-op.
func (db *DB) StoreColumn(pos world.ChunkPos, c *chunk.Chunk) error {
	if db.conf.ReadOnly {
		return fmt.Errorf("store column %v: db opened read-only", pos)
	}
	buf := bytes.NewBuffer(nil)
	chunk.Encode(c, buf)

	sum := xxhash.Sum64(buf.Bytes())
	packed := packPos(pos)
	db.mu.Lock()
	prev, ok := db.hashes[packed]
	db.mu.Unlock()
	if ok && prev == sum {
		return nil
	}

	cbuf := bytes.NewBuffer(nil)
	zw, err := zlib.NewWriterLevel(cbuf, zlib.DefaultCompression)
	if err != nil {
		return fmt.Errorf("store column %v: compress: %w", pos, err)
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("store column %v: compress: %w", pos, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("store column %v: compress: %w", pos, err)
	}

	r := c.Range()
	data, err := nbt.MarshalEncoding(column{
		Min:     int32(r[0]),
		Max:     int32(r[1]),
		Air:     int32(c.Air()),
		Payload: cbuf.Bytes(),
	}, nbt.LittleEndian)
	if err != nil {
		return fmt.Errorf("store column %v: encode NBT: %w", pos, err)
	}

	k := index(pos)
	if err := db.ldb.Put(append(k, keyVersion), []byte{columnVersion}, nil); err != nil {
		return fmt.Errorf("store column %v: %w", pos, err)
	}
	if err := db.ldb.Put(append(k, keyColumn), data, nil); err != nil {
		return fmt.Errorf("store column %v: %w", pos, err)
	}
	// Record the hash only once both writes succeeded: a hash recorded for a
	// failed write would make a retry of the same column a no-op.
	db.mu.Lock()
	db.hashes[packed] = sum
	db.mu.Unlock()
	return nil
}

// Close closes the underlying leveldb database.
func (db *DB) Close() error {
	if err := db.ldb.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// index returns the 8-byte little-endian key prefix of the chunk position
// passed. A tag byte is appended to it to form a full key.
func index(pos world.ChunkPos) []byte {
	b := make([]byte, 8, 9)
	binary.LittleEndian.PutUint32(b, uint32(pos[0]))
	binary.LittleEndian.PutUint32(b[4:], uint32(pos[1]))
	return b
}

// packPos packs a chunk position into a single uint64 for use as a map
// key in the write-dedupe table.
func packPos(pos world.ChunkPos) uint64 {
	return uint64(uint32(pos[0]))<<32 | uint64(uint32(pos[1]))
}
