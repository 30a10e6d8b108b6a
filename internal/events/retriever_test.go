package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calai/calai-go/internal/calendar"
)

// vecEmbedder maps each exact text to a preset vector. Unknown texts get a
// near-zero vector so they score ~0 against everything.
type vecEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (v *vecEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if vec, ok := v.vectors[t]; ok {
			out[i] = vec
		} else {
			out[i] = []float32{0.001, 0.001}
		}
	}
	return out, nil
}

// listProvider returns a fixed event list.
type listProvider struct {
	calendar.Provider
	events []calendar.NormalizedEvent
	err    error
}

func (p *listProvider) ListEvents(_ context.Context, _, _ time.Time) ([]calendar.NormalizedEvent, error) {
	return p.events, p.err
}

func ev(id, title string) calendar.NormalizedEvent {
	return calendar.NormalizedEvent{ID: id, Title: title, Start: "2026-08-30T10:00:00Z"}
}

func TestScore_BestBelowFloorReturnsEmpty(t *testing.T) {
	t.Parallel()

	evs := []calendar.NormalizedEvent{ev("1", "standup"), ev("2", "retro")}
	emb := &vecEmbedder{vectors: map[string][]float32{
		"deploy pipeline":         {1, 0},
		evs[0].CanonicalText():    {0.1, 1},
		evs[1].CanonicalText():    {0.05, 1},
	}}
	r, err := NewRetriever(&listProvider{events: evs}, emb)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := r.Score(context.Background(), "deploy pipeline", evs)
	if err != nil {
		t.Fatal(err)
	}
	// Best cosine ≈ 0.10, under the 0.18 floor: the query is not about the
	// calendar, so nothing comes back at all.
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

func TestScore_RelativeCutDropsStragglers(t *testing.T) {
	t.Parallel()

	evs := []calendar.NormalizedEvent{ev("good", "team sync"), ev("weak", "team lunch")}
	emb := &vecEmbedder{vectors: map[string][]float32{
		"team sync":             {1, 0},
		evs[0].CanonicalText():  {1, 0},       // cosine 1.0
		evs[1].CanonicalText():  {0.3, 1},     // cosine ≈ 0.287 — above floor, below 0.5
	}}
	r, err := NewRetriever(&listProvider{events: evs}, emb)
	if err != nil {
		t.Fatal(err)
	}

	hits, err := r.Score(context.Background(), "team sync", evs)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected only the competitive hit, got %v", hits)
	}
	if hits[0].SourceID != "good" {
		t.Errorf("hit: got %q", hits[0].SourceID)
	}
}

func TestScore_SortedAndCapped(t *testing.T) {
	t.Parallel()

	evs := make([]calendar.NormalizedEvent, 0, 7)
	vectors := map[string][]float32{"q": {1, 0}}
	for i := 0; i < 7; i++ {
		e := ev(string(rune('a'+i)), "meeting")
		e.Description = string(rune('a' + i)) // make canonical texts distinct
		evs = append(evs, e)
		// Scores descend with i but all stay competitive with the best.
		vectors[e.CanonicalText()] = []float32{1, float32(i) * 0.1}
	}
	r, err := NewRetriever(&listProvider{events: evs}, &vecEmbedder{vectors: vectors})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := r.Score(context.Background(), "q", evs)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != DefaultTopK {
		t.Fatalf("expected cap at %d, got %d", DefaultTopK, len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("hits not in descending order at %d: %v > %v", i, hits[i].Score, hits[i-1].Score)
		}
	}
	if hits[0].SourceID != "a" {
		t.Errorf("best hit: got %q, want a", hits[0].SourceID)
	}
}

func TestScore_EmptyEventSet(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&listProvider{}, &vecEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	hits, err := r.Score(context.Background(), "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if hits != nil {
		t.Errorf("expected nil hits, got %v", hits)
	}
}

func TestRetrieve_ReturnsMatchingEvents(t *testing.T) {
	t.Parallel()

	evs := []calendar.NormalizedEvent{ev("1", "design review"), ev("2", "dentist")}
	emb := &vecEmbedder{vectors: map[string][]float32{
		"design review":          {1, 0},
		evs[0].CanonicalText():   {1, 0},
		evs[1].CanonicalText():   {0, 1},
	}}
	r, err := NewRetriever(&listProvider{events: evs}, emb)
	if err != nil {
		t.Fatal(err)
	}

	hits, matched, err := r.Retrieve(context.Background(), "design review")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || len(matched) != 1 {
		t.Fatalf("got %d hits, %d events", len(hits), len(matched))
	}
	if matched[0].ID != hits[0].SourceID {
		t.Errorf("event/hit mismatch: %q vs %q", matched[0].ID, hits[0].SourceID)
	}
	if matched[0].Title != "design review" {
		t.Errorf("matched event: %+v", matched[0])
	}
}

func TestRetrieve_ProviderErrorPropagates(t *testing.T) {
	t.Parallel()

	r, err := NewRetriever(&listProvider{err: errors.New("provider down")}, &vecEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestScore_EmbedderErrorPropagates(t *testing.T) {
	t.Parallel()

	evs := []calendar.NormalizedEvent{ev("1", "x")}
	r, err := NewRetriever(&listProvider{events: evs}, &vecEmbedder{err: errors.New("embed down")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Score(context.Background(), "q", evs); err == nil {
		t.Fatal("expected embedder error to propagate")
	}
}
