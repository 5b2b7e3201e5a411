package matching

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/efebarandurmaz/kindred/internal/store/memory"
)

// mapEmbedder returns a fixed vector per known text and fails on
// anything else, so tests control the geometry of every search.
type mapEmbedder struct {
	vectors map[string][]float32
	dim     int
	failErr error
}

func (e *mapEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.failErr != nil {
		return nil, e.failErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := e.vectors[text]
		if !ok {
			return nil, errors.New("no vector registered for: " + text)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *mapEmbedder) Name() string   { return "test-model" }
func (e *mapEmbedder) Dimension() int { return e.dim }

func newTestService(t *testing.T, vectors map[string][]float32) *Service {
	t.Helper()
	dim := 0
	for _, v := range vectors {
		dim = len(v)
		break
	}
	embedder := &mapEmbedder{vectors: vectors, dim: dim}
	return NewService(embedder, memory.New(dim), "person_profiles")
}

func TestCreateProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{
		"Loves hiking and philosophy": {1, 0, 0},
	})

	p, err := s.CreateProfile(ctx, CreateRequest{
		Name:        "  Alex  ",
		Description: "Loves hiking and philosophy",
		Age:         29,
		Location:    "Berlin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected generated id")
	}
	if p.Name != "Alex" {
		t.Fatalf("expected trimmed name, got %q", p.Name)
	}
	if p.CreatedAt.IsZero() {
		t.Fatal("expected creation timestamp")
	}
	if p.CreatedAt.Location() != p.CreatedAt.UTC().Location() {
		t.Fatal("expected UTC timestamp")
	}

	got, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Alex" || got.Age != 29 || got.Location != "Berlin" {
		t.Fatalf("stored profile mismatch: %+v", got)
	}
}

func TestCreateProfile_FreshIDPerCall(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"same text": {1, 0, 0}})

	a, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "same text"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateProfile(ctx, CreateRequest{Name: "B", Description: "same text"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct ids for identical descriptions")
	}
}

func TestCreateProfile_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"empty name", CreateRequest{Description: "fine"}, "name"},
		{"blank name", CreateRequest{Name: "   ", Description: "fine"}, "name"},
		{"long name", CreateRequest{Name: strings.Repeat("x", 101), Description: "fine"}, "name"},
		{"empty description", CreateRequest{Name: "A"}, "description"},
		{"long description", CreateRequest{Name: "A", Description: strings.Repeat("x", 2001)}, "description"},
		{"age too low", CreateRequest{Name: "A", Description: "fine", Age: 17}, "age"},
		{"age too high", CreateRequest{Name: "A", Description: "fine", Age: 101}, "age"},
		{"long location", CreateRequest{Name: "A", Description: "fine", Location: strings.Repeat("x", 101)}, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, map[string][]float32{"fine": {1, 0}})
			_, err := s.CreateProfile(ctx, tt.req)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestCreateProfile_ShortDescriptionAccepted(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"hi": {1, 0}})

	if _, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "hi"}); err != nil {
		t.Fatalf("short description must be accepted: %v", err)
	}
}

func TestCreateProfile_AgeOptional(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"fine": {1, 0}})

	p, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "fine"})
	if err != nil {
		t.Fatalf("create without age: %v", err)
	}
	if p.Age != 0 {
		t.Fatalf("expected zero age, got %d", p.Age)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := newTestService(t, map[string][]float32{"x": {1, 0}})

	_, err := s.GetProfile(context.Background(), "missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != "missing" {
		t.Fatalf("expected id in error, got %s", nf.ID)
	}
}

func TestDeleteProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"fine": {1, 0}})

	p, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "fine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var nf *NotFoundError
	if err := s.DeleteProfile(ctx, p.ID); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError on second delete, got %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProfiles != 0 {
		t.Fatalf("expected 0 profiles after delete, got %d", stats.TotalProfiles)
	}
}

func TestListProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"fine": {1, 0}})

	for i := 0; i < 3; i++ {
		if _, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "fine"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	t.Run("default limit", func(t *testing.T) {
		out, err := s.ListProfiles(ctx, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(out) != 3 {
			t.Fatalf("expected 3 profiles, got %d", len(out))
		}
	})

	t.Run("explicit limit", func(t *testing.T) {
		out, err := s.ListProfiles(ctx, 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("expected 2 profiles, got %d", len(out))
		}
	})

	t.Run("invalid limits", func(t *testing.T) {
		var verr *ValidationError
		if _, err := s.ListProfiles(ctx, -1); !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for negative limit, got %v", err)
		}
		if _, err := s.ListProfiles(ctx, MaxListLimit+1); !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError above max, got %v", err)
		}
	})
}

func TestSearchProfiles_Ranking(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{
		"Loves hiking and philosophy":       {0.9, 0.1, 0},
		"Enjoys loud parties and fast cars": {0, 0.2, 0.9},
		"Outdoor adventures and deep ideas": {1, 0, 0},
	})

	hiker, err := s.CreateProfile(ctx, CreateRequest{Name: "Hiker", Description: "Loves hiking and philosophy"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateProfile(ctx, CreateRequest{Name: "Racer", Description: "Enjoys loud parties and fast cars"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	matches, err := s.SearchProfiles(ctx, "Outdoor adventures and deep ideas", 5, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != hiker.ID {
		t.Fatalf("expected hiker ranked first, got %s", matches[0].Name)
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Fatalf("expected descending similarity: %f then %f",
			matches[0].Similarity, matches[1].Similarity)
	}
	for _, m := range matches {
		if m.Similarity < 0 || m.Similarity > 1 {
			t.Fatalf("similarity out of range: %f", m.Similarity)
		}
	}
}

func TestSearchProfiles_SelfMatchIsMaximal(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"same words": {0.6, 0.8, 0}})

	if _, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "same words"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	matches, err := s.SearchProfiles(ctx, "same words", 1, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Similarity < 0.999 {
		t.Fatalf("expected similarity ~1 for identical text, got %f", matches[0].Similarity)
	}
}

func TestSearchProfiles_ExcludeID(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{
		"identical interests": {1, 0, 0},
		"nearby interests":    {0.9, 0.1, 0},
	})

	self, err := s.CreateProfile(ctx, CreateRequest{Name: "Self", Description: "identical interests"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := s.CreateProfile(ctx, CreateRequest{Name: "Other", Description: "nearby interests"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	matches, err := s.SearchProfiles(ctx, "identical interests", 1, self.ID)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ID != other.ID {
		t.Fatalf("expected excluded id to be skipped, got %s", matches[0].ID)
	}
}

func TestSearchProfiles_EmptyStore(t *testing.T) {
	s := newTestService(t, map[string][]float32{"anything": {1, 0}})

	matches, err := s.SearchProfiles(context.Background(), "anything", 5, "")
	if err != nil {
		t.Fatalf("search on empty store: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestSearchProfiles_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"fine": {1, 0}})

	var verr *ValidationError
	if _, err := s.SearchProfiles(ctx, "   ", 5, ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for blank query, got %v", err)
	}
	if _, err := s.SearchProfiles(ctx, "fine", -1, ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for negative limit, got %v", err)
	}
	if _, err := s.SearchProfiles(ctx, "fine", MaxSearchLimit+1, ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError above max limit, got %v", err)
	}
}

func TestSearchProfiles_EmbeddingFailure(t *testing.T) {
	embedder := &mapEmbedder{failErr: errors.New("provider down"), dim: 2}
	s := NewService(embedder, memory.New(2), "person_profiles")

	_, err := s.SearchProfiles(context.Background(), "anything", 5, "")
	var eerr *EmbeddingError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

func TestCreateProfile_EmbeddingFailure(t *testing.T) {
	embedder := &mapEmbedder{failErr: errors.New("provider down"), dim: 2}
	s := NewService(embedder, memory.New(2), "person_profiles")

	_, err := s.CreateProfile(context.Background(), CreateRequest{Name: "A", Description: "fine"})
	var eerr *EmbeddingError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}

	n, err := s.store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing persisted after embedding failure, got %d", n)
	}
}

func TestOperationSpanRecordsFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	s := newTestService(t, map[string][]float32{"fine": {1, 0}})
	if _, err := s.GetProfile(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	if len(spans) == 0 {
		t.Fatal("expected a recorded span")
	}
	span := spans[len(spans)-1]
	if span.Name() != "matching.get_profile" {
		t.Fatalf("unexpected span name %s", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status on span, got %v", span.Status().Code)
	}
	if len(span.Events()) == 0 {
		t.Fatal("expected recorded error event on span")
	}
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, map[string][]float32{"fine": {1, 0, 0}})

	if _, err := s.CreateProfile(ctx, CreateRequest{Name: "A", Description: "fine"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProfiles != 1 {
		t.Fatalf("expected 1 profile, got %d", stats.TotalProfiles)
	}
	if stats.Collection != "person_profiles" {
		t.Fatalf("unexpected collection: %s", stats.Collection)
	}
	if stats.EmbeddingModel != "test-model" {
		t.Fatalf("unexpected model: %s", stats.EmbeddingModel)
	}
	if stats.Dimension != 3 {
		t.Fatalf("unexpected dimension: %d", stats.Dimension)
	}
}
