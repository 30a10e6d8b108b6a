package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/calai/calai-go/internal/fault"
	"github.com/calai/calai-go/internal/rag"
)

// Package defaults. Sizes are in words; the threshold is a cosine similarity.
const (
	// DefaultChunkSize is the default chunk window length in words.
	DefaultChunkSize = 200
	// DefaultChunkOverlap is the default overlap between windows in words.
	DefaultChunkOverlap = 40
	// DefaultTopK is the default number of KB hits returned per query.
	DefaultTopK = 4
	// DefaultThreshold is the minimum similarity for a KB hit to be returned.
	DefaultThreshold = 0.16
	// embedBatchSize caps the number of chunks sent to the embedder per call.
	embedBatchSize = 32
)

// Config holds the knowledge-base service configuration.
type Config struct {
	// Path is the directory of knowledge-base source files. A missing or
	// empty directory yields an empty (but valid) index.
	Path string
	// CacheDir is the directory for the persisted index cache.
	CacheDir string
	// Model is the embedding model name, recorded in the cache so a model
	// change invalidates it.
	Model string
	// ChunkSize is the chunk window length in words (default 200).
	ChunkSize int
	// ChunkOverlap is the window overlap in words (default 40, always < ChunkSize).
	ChunkOverlap int
}

// Service owns the knowledge-base index lifecycle: initial build or cache
// load at startup, explicit serialized rebuilds, and lock-free reads for
// request handlers. The current index is held in an atomic pointer and only
// ever replaced by a fully built successor, so concurrent readers never
// observe a partial index.
type Service struct {
	// embedder computes chunk and query embeddings.
	embedder rag.Embedder
	// chunker splits source files into word windows.
	chunker *Chunker
	// cache persists the built index across restarts.
	cache *Cache
	// cfg is the resolved configuration.
	cfg Config
	// idx is the current immutable index.
	idx atomic.Pointer[Index]
	// rebuildMu serializes Rebuild calls.
	rebuildMu sync.Mutex
}

// NewService constructs a Service and initialises its index: from the disk
// cache when present and valid, otherwise by a full build. A corrupt cache
// is logged and rebuilt, never surfaced. Only an embedder failure during the
// initial build is returned — that is the one startup condition the caller
// may treat as fatal.
func NewService(ctx context.Context, embedder rag.Embedder, cfg Config, log *slog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("kb: embedder must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}

	s := &Service{
		embedder: embedder,
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		cache:    NewCache(cfg.CacheDir, cfg.Model),
		cfg:      cfg,
	}
	s.idx.Store(EmptyIndex())

	if cached, err := s.cache.Load(); err != nil {
		if fault.IsKind(err, fault.CacheCorrupt) {
			log.Warn("kb: ignoring corrupt index cache, rebuilding", slog.Any("error", err))
		} else {
			log.Warn("kb: cache load failed, rebuilding", slog.Any("error", err))
		}
	} else if cached != nil {
		s.idx.Store(cached)
		log.Info("kb: index loaded from cache",
			slog.Int("chunks", cached.Len()),
			slog.Int("dimension", cached.Dimension()),
		)
		return s, nil
	}

	if err := s.Rebuild(ctx, log); err != nil {
		return nil, err
	}
	return s, nil
}

// Index returns the current index. The returned value is immutable and safe
// to use for the duration of a request even while a rebuild swaps in a
// successor.
func (s *Service) Index() *Index {
	return s.idx.Load()
}

// Rebuild re-reads the knowledge base, re-embeds every chunk, and atomically
// swaps the new index in. Concurrent Rebuild calls are serialized; readers
// keep using the previous index until the swap. A cache write failure is
// logged and ignored — the in-memory index is authoritative.
func (s *Service) Rebuild(ctx context.Context, log *slog.Logger) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	chunks, err := s.loadChunks(log)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		s.idx.Store(EmptyIndex())
		log.Info("kb: knowledge base is empty, index cleared", slog.String("path", s.cfg.Path))
		return nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("kb: embedding chunks %d..%d failed: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	ix, err := NewIndex(chunks, vectors)
	if err != nil {
		return err
	}

	s.idx.Store(ix)
	log.Info("kb: index rebuilt",
		slog.Int("chunks", ix.Len()),
		slog.Int("dimension", ix.Dimension()),
	)

	if err := s.cache.Save(ix); err != nil {
		log.Warn("kb: index cache write failed, continuing unpersisted", slog.Any("error", err))
	}
	return nil
}

// loadChunks reads every regular file in the knowledge-base directory in
// sorted name order and chunks its contents. A missing directory is treated
// as an empty knowledge base. Unreadable individual files are skipped with
// a warning.
func (s *Service) loadChunks(log *slog.Logger) ([]Chunk, error) {
	entries, err := os.ReadDir(s.cfg.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kb: read knowledge base dir %s: %w", s.cfg.Path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var chunks []Chunk
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.cfg.Path, name))
		if err != nil {
			log.Warn("kb: skipping unreadable file", slog.String("file", name), slog.Any("error", err))
			continue
		}
		chunks = append(chunks, s.chunker.Chunk(name, string(data))...)
	}
	return chunks, nil
}
