package kb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/calai/calai-go/internal/fault"
)

// Cache file names inside the cache directory. The two files are
// co-versioned: the metadata file records the vector count and dimension the
// binary file must satisfy, and any mismatch invalidates both.
const (
	metaFileName    = "kb_meta.json"
	vectorsFileName = "kb_vectors.bin"
)

// cacheMeta is the JSON structure persisted alongside the vector matrix.
type cacheMeta struct {
	// Model is the embedding model the vectors were computed with. A cache
	// built with a different model must not be loaded.
	Model string `json:"model"`
	// Dimension is the embedding vector length.
	Dimension int `json:"dimension"`
	// Chunks is the ordered list of chunk records, co-indexed with the rows
	// of the vector matrix.
	Chunks []Chunk `json:"chunks"`
}

// Cache persists a built Index as a metadata JSON file plus a row-major
// little-endian float32 matrix.
type Cache struct {
	// dir is the cache directory holding both files.
	dir string
	// model is the embedding model name recorded in (and required of) the cache.
	model string
}

// NewCache constructs a Cache rooted at dir for the given embedding model.
func NewCache(dir, model string) *Cache {
	return &Cache{dir: dir, model: model}
}

// Save persists the index. The write is crash-safe: each file is written to
// a temp file in the same directory and renamed into place, so a partial
// write can never be mistaken for a valid cache. Errors are returned for
// logging but callers must treat them as non-fatal — the in-memory index
// stays usable either way.
func (c *Cache) Save(ix *Index) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("kb: create cache dir %s: %w", c.dir, err)
	}

	meta := cacheMeta{
		Model:     c.model,
		Dimension: ix.dimension,
		Chunks:    ix.chunks,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("kb: marshal cache metadata: %w", err)
	}

	vecBytes := make([]byte, 0, len(ix.vectors)*ix.dimension*4)
	buf := make([]byte, 4)
	for _, row := range ix.vectors {
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			vecBytes = append(vecBytes, buf...)
		}
	}

	if err := writeFileAtomic(filepath.Join(c.dir, vectorsFileName), vecBytes); err != nil {
		return err
	}
	// Metadata is written second so a crash between the two writes leaves a
	// count mismatch, which Load rejects.
	return writeFileAtomic(filepath.Join(c.dir, metaFileName), metaBytes)
}

// Load reads the persisted index. A missing cache returns (nil, nil) so
// callers can fall through to a fresh build without log noise. Any
// inconsistency — unreadable metadata, model mismatch, vector byte count not
// matching chunk count × dimension — returns a fault.CacheCorrupt error; the
// caller recovers by rebuilding, never by surfacing the error.
func (c *Cache) Load() (*Index, error) {
	metaBytes, err := os.ReadFile(filepath.Join(c.dir, metaFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.CacheCorrupt, "read cache metadata", err)
	}

	var meta cacheMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fault.Wrap(fault.CacheCorrupt, "parse cache metadata", err)
	}
	if meta.Model != c.model {
		return nil, fault.New(fault.CacheCorrupt,
			fmt.Sprintf("cache built with model %q, current model is %q", meta.Model, c.model))
	}
	if meta.Dimension <= 0 && len(meta.Chunks) > 0 {
		return nil, fault.New(fault.CacheCorrupt, "cache metadata has no dimension")
	}

	vecBytes, err := os.ReadFile(filepath.Join(c.dir, vectorsFileName))
	if os.IsNotExist(err) {
		return nil, fault.New(fault.CacheCorrupt, "vector file missing")
	}
	if err != nil {
		return nil, fault.Wrap(fault.CacheCorrupt, "read vector file", err)
	}

	want := len(meta.Chunks) * meta.Dimension * 4
	if len(vecBytes) != want {
		return nil, fault.New(fault.CacheCorrupt,
			fmt.Sprintf("vector file is %d bytes, metadata requires %d", len(vecBytes), want))
	}

	vectors := make([][]float32, len(meta.Chunks))
	off := 0
	for i := range vectors {
		row := make([]float32, meta.Dimension)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(vecBytes[off:]))
			off += 4
		}
		vectors[i] = row
	}

	ix, err := NewIndex(meta.Chunks, vectors)
	if err != nil {
		return nil, fault.Wrap(fault.CacheCorrupt, "reassemble index", err)
	}
	return ix, nil
}

// writeFileAtomic writes data to path via a temp file + rename in the same
// directory, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("kb: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("kb: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kb: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("kb: rename %s to %s: %w", tmpName, path, err)
	}
	return nil
}
