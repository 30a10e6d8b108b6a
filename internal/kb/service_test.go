package kb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calai/calai-go/internal/fault"
)

// keywordEmbedder is a deterministic test embedder: each text maps to a
// 3-dimensional vector counting the keywords "alpha", "beta", "gamma". Texts
// about the same keyword therefore score 1.0 against each other and 0
// against the others.
type keywordEmbedder struct {
	// err makes every Embed call fail when non-nil.
	err error
	// calls counts Embed invocations.
	calls int
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		out[i] = []float32{
			float32(strings.Count(lower, "alpha")),
			float32(strings.Count(lower, "beta")),
			float32(strings.Count(lower, "gamma")),
		}
		// Avoid zero vectors for keyword-free text.
		if out[i][0] == 0 && out[i][1] == 0 && out[i][2] == 0 {
			out[i] = []float32{0.01, 0.01, 0.01}
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeKB populates a temp knowledge-base directory and returns it.
func writeKB(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestService(t *testing.T, emb *keywordEmbedder, kbDir string) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), emb, Config{
		Path:      kbDir,
		CacheDir:  t.TempDir(),
		Model:     "test-model",
		ChunkSize: 10,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestService_BuildAndRetrieve(t *testing.T) {
	t.Parallel()

	dir := writeKB(t, map[string]string{
		"a.md": "alpha alpha policies and procedures",
		"b.md": "beta beta release schedule",
	})
	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, dir)

	if svc.Index().Len() != 2 {
		t.Fatalf("index size: got %d, want 2", svc.Index().Len())
	}

	r, err := NewRetriever(svc, emb, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := r.Retrieve(context.Background(), "alpha", 0, 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits: got %v, want the alpha chunk only", hits)
	}
	if hits[0].SourceID != ChunkID("a.md", 0) {
		t.Errorf("hit source: got %q", hits[0].SourceID)
	}
	if hits[0].Score < DefaultThreshold {
		t.Errorf("returned hit below threshold: %v", hits[0].Score)
	}
}

func TestRetriever_ThresholdGuarantee(t *testing.T) {
	t.Parallel()

	dir := writeKB(t, map[string]string{
		"a.md": "alpha notes",
		"b.md": "beta notes",
		"c.md": "gamma notes",
	})
	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, dir)
	r, err := NewRetriever(svc, emb, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// "alpha" is orthogonal to the beta and gamma chunks; only one chunk may
	// come back even though topK is 4.
	hits, err := r.Retrieve(context.Background(), "alpha", 4, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.Score < 0.5 {
			t.Errorf("hit %s below explicit threshold: %v", h.SourceID, h.Score)
		}
	}
	if len(hits) != 1 {
		t.Errorf("hits: got %d, want 1", len(hits))
	}
}

func TestRetriever_EmptyIndexSkipsEmbedder(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, t.TempDir())
	r, err := NewRetriever(svc, emb, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	before := emb.calls
	hits, err := r.Retrieve(context.Background(), "anything", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("expected no hits from an empty index, got %v", hits)
	}
	if emb.calls != before {
		t.Errorf("embedder called on empty index")
	}
}

func TestService_CacheRoundTrip(t *testing.T) {
	t.Parallel()

	kbDir := writeKB(t, map[string]string{"a.md": "alpha alpha", "b.md": "beta beta"})
	cacheDir := t.TempDir()

	emb := &keywordEmbedder{}
	svc1, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "test-model",
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	buildCalls := emb.calls

	// Second service must load from cache without re-embedding.
	svc2, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "test-model",
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if emb.calls != buildCalls {
		t.Errorf("cache load re-embedded: %d calls before, %d after", buildCalls, emb.calls)
	}

	// Ranking must be identical between the built and the loaded index.
	q, err := emb.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatal(err)
	}
	h1 := svc1.Index().Search(q[0], 2)
	h2 := svc2.Index().Search(q[0], 2)
	if len(h1) != len(h2) {
		t.Fatalf("hit counts differ: %d vs %d", len(h1), len(h2))
	}
	for i := range h1 {
		if h1[i].SourceID != h2[i].SourceID || h1[i].Score != h2[i].Score {
			t.Errorf("hit %d differs: %+v vs %+v", i, h1[i], h2[i])
		}
	}
}

func TestService_ModelChangeInvalidatesCache(t *testing.T) {
	t.Parallel()

	kbDir := writeKB(t, map[string]string{"a.md": "alpha"})
	cacheDir := t.TempDir()
	emb := &keywordEmbedder{}

	if _, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "model-v1",
	}, testLogger()); err != nil {
		t.Fatal(err)
	}
	before := emb.calls

	// Different model name: the cache must be rejected and the index rebuilt.
	if _, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "model-v2",
	}, testLogger()); err != nil {
		t.Fatal(err)
	}
	if emb.calls == before {
		t.Error("expected a rebuild after the embedding model changed")
	}
}

func TestCache_TruncatedVectorsRejected(t *testing.T) {
	t.Parallel()

	kbDir := writeKB(t, map[string]string{"a.md": "alpha beta gamma"})
	cacheDir := t.TempDir()
	emb := &keywordEmbedder{}

	if _, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "m",
	}, testLogger()); err != nil {
		t.Fatal(err)
	}

	// Truncate the vector file to simulate a crash mid-write.
	vecPath := filepath.Join(cacheDir, "kb_vectors.bin")
	if err := os.Truncate(vecPath, 3); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(cacheDir, "m")
	_, err := cache.Load()
	if !fault.IsKind(err, fault.CacheCorrupt) {
		t.Errorf("expected CacheCorrupt, got %v", err)
	}

	// NewService must recover by rebuilding rather than failing.
	before := emb.calls
	svc, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: cacheDir, Model: "m",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewService should recover from a corrupt cache: %v", err)
	}
	if emb.calls == before {
		t.Error("expected a rebuild")
	}
	if svc.Index().Len() == 0 {
		t.Error("expected a rebuilt index")
	}
}

func TestCache_MissingIsNotCorrupt(t *testing.T) {
	t.Parallel()

	cache := NewCache(t.TempDir(), "m")
	ix, err := cache.Load()
	if err != nil {
		t.Fatalf("missing cache must load as (nil, nil), got %v", err)
	}
	if ix != nil {
		t.Errorf("expected nil index, got %v", ix)
	}
}

func TestService_RebuildSwapsAtomically(t *testing.T) {
	t.Parallel()

	kbDir := writeKB(t, map[string]string{"a.md": "alpha"})
	emb := &keywordEmbedder{}
	svc := newTestService(t, emb, kbDir)

	old := svc.Index()

	// Add a file and rebuild; the old snapshot must remain intact.
	if err := os.WriteFile(filepath.Join(kbDir, "b.md"), []byte("beta"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := svc.Rebuild(context.Background(), testLogger()); err != nil {
		t.Fatal(err)
	}

	if old.Len() != 1 {
		t.Errorf("previous snapshot mutated: len %d", old.Len())
	}
	if svc.Index().Len() != 2 {
		t.Errorf("new index: len %d, want 2", svc.Index().Len())
	}
}

func TestService_EmbedderFailureIsFatalAtStartup(t *testing.T) {
	t.Parallel()

	kbDir := writeKB(t, map[string]string{"a.md": "alpha"})
	emb := &keywordEmbedder{err: errors.New("backend down")}

	_, err := NewService(context.Background(), emb, Config{
		Path: kbDir, CacheDir: t.TempDir(), Model: "m",
	}, testLogger())
	if err == nil {
		t.Fatal("expected startup failure when the embedder is down")
	}
}

func TestService_MissingKBDirIsEmpty(t *testing.T) {
	t.Parallel()

	emb := &keywordEmbedder{}
	svc, err := NewService(context.Background(), emb, Config{
		Path: filepath.Join(t.TempDir(), "does-not-exist"), CacheDir: t.TempDir(), Model: "m",
	}, testLogger())
	if err != nil {
		t.Fatalf("missing KB dir must not be fatal: %v", err)
	}
	if svc.Index().Len() != 0 {
		t.Errorf("expected empty index, got %d chunks", svc.Index().Len())
	}
}
