package canon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockStore implements Store in memory with injectable failures.
type mockStore struct {
	mu        sync.Mutex
	rows      map[string]Result
	readErr   error
	writeErr  error
	bumpErr   error
	upserts   [][]Result
	bumped    chan []string
}

func newMockStore() *mockStore {
	return &mockStore{rows: map[string]Result{}, bumped: make(chan []string, 8)}
}

func (m *mockStore) GetMany(_ context.Context, keys []string) (map[string]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := map[string]Result{}
	for _, k := range keys {
		if r, ok := m.rows[k]; ok {
			out[k] = r
		}
	}
	return out, nil
}

func (m *mockStore) UpsertMany(_ context.Context, rows []Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.upserts = append(m.upserts, rows)
	for _, r := range rows {
		m.rows[r.Key] = r
	}
	return nil
}

func (m *mockStore) BumpHits(_ context.Context, keys []string) error {
	m.mu.Lock()
	err := m.bumpErr
	m.mu.Unlock()
	m.bumped <- keys
	return err
}

func (m *mockStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, batch := range m.upserts {
		n += len(batch)
	}
	return n
}

// mockClassifier records batches and answers from a canned function.
type mockClassifier struct {
	mu      sync.Mutex
	batches [][]BatchRow
	err     error
	answer  func(r BatchRow) Result
}

func (m *mockClassifier) ClassifyBatch(_ context.Context, rows []BatchRow) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, rows)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, m.answer(r))
	}
	return out, nil
}

func (m *mockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// mockLimiter allows or rejects every check.
type mockLimiter struct {
	ok        bool
	remaining int
	checks    int
}

func (m *mockLimiter) Check(string, int) (bool, int) {
	m.checks++
	return m.ok, m.remaining
}

func itemAnswer(r BatchRow) Result {
	return Result{
		Key:            r.Key,
		CanonicalName:  r.Text,
		Status:         StatusItem,
		Kind:           KindFood,
		IngredientType: TypeProduct,
		Confidence:     0.9,
		UpdatedAt:      time.Now().UTC(),
		Source:         SourceLLM,
	}
}

func allBudget(texts []string, _, _ int) (int, int) {
	n := 0
	for _, t := range texts {
		n += len(t)
	}
	return len(texts), n
}

func newTestService(store Store, cls Classifier, lim Limiter) *Service {
	return NewService(store, cls, lim, allBudget, ServiceConfig{MaxPerDay: 5})
}

func req(device string, texts ...string) Request {
	items := make([]RequestItem, len(texts))
	for i, t := range texts {
		items[i] = RequestItem{ID: fmt.Sprintf("id-%d", i), Text: t}
	}
	return Request{DeviceID: device, Items: items}
}

func TestCanonizeOrderAndLengthPreserved(t *testing.T) {
	store := newMockStore()
	store.rows[Key("Whole Milk")] = Result{
		Key: Key("Whole Milk"), CanonicalName: "Whole Milk",
		Status: StatusItem, Kind: KindFood, IngredientType: TypeProduct,
		Confidence: 0.92, Source: SourceLLM,
	}
	cls := &mockClassifier{answer: itemAnswer}
	s := newTestService(store, cls, &mockLimiter{ok: true, remaining: 4})

	request := req("device-123", "Sourdough Bread", "Whole Milk", "Cheddar Cheese")
	resp, err := s.Canonize(context.Background(), request)
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}

	if len(resp.Merged) != len(request.Items) {
		t.Fatalf("merged length %d != items %d", len(resp.Merged), len(request.Items))
	}
	for i := range request.Items {
		if resp.Merged[i].ID != request.Items[i].ID {
			t.Errorf("merged[%d].ID = %s, want %s", i, resp.Merged[i].ID, request.Items[i].ID)
		}
		if resp.Merged[i].Result == nil {
			t.Errorf("merged[%d] missing result", i)
		}
	}

	// Cache hit must be marked source=cache; fresh rows keep source=llm.
	if got := resp.Merged[1].Result.Source; got != SourceCache {
		t.Errorf("cached row source = %s, want cache", got)
	}
	if got := resp.Merged[0].Result.Source; got != SourceLLM {
		t.Errorf("fresh row source = %s, want llm", got)
	}
	if !resp.LLMUsed {
		t.Error("llmUsed = false with a real batch")
	}
}

func TestCanonizeCacheOnlyShortCircuit(t *testing.T) {
	store := newMockStore()
	for _, text := range []string{"Eggs Large", "Butter"} {
		store.rows[Key(text)] = Result{Key: Key(text), Status: StatusItem, Kind: KindFood,
			IngredientType: TypeProduct, Confidence: 0.9, Source: SourceLLM}
	}
	cls := &mockClassifier{answer: itemAnswer}
	lim := &mockLimiter{ok: true, remaining: 4}
	s := newTestService(store, cls, lim)

	resp, err := s.Canonize(context.Background(), req("device-123", "Eggs Large", "Butter"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}
	if resp.LLMUsed {
		t.Error("llmUsed = true on full cache hit")
	}
	if cls.callCount() != 0 {
		t.Error("classifier called on full cache hit")
	}
	if lim.checks != 0 {
		t.Error("limiter consumed on full cache hit")
	}
	if resp.LLMRemaining != nil {
		t.Errorf("llmRemaining = %v, want nil", *resp.LLMRemaining)
	}
}

func TestCanonizeFullBatchFallback(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{err: errors.New("boom")}
	s := newTestService(store, cls, &mockLimiter{ok: true, remaining: 4})

	resp, err := s.Canonize(context.Background(), req("device-123", "Itema", "Itemb", "Itemc"))
	if err != nil {
		t.Fatalf("canonize must not fail on classifier error: %v", err)
	}
	for i, m := range resp.Merged {
		r := m.Result
		if r == nil {
			t.Fatalf("merged[%d] missing result", i)
		}
		if r.Status != StatusUnknown || r.Confidence != 0 || r.Source != SourceNone {
			t.Errorf("merged[%d] = %+v, want full fallback", i, r)
		}
	}
	if store.upsertCount() != 0 {
		t.Error("fallback rows were persisted")
	}
}

func TestCanonizeGuardedRejection(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{answer: itemAnswer}
	s := newTestService(store, cls, &mockLimiter{ok: false, remaining: 0})

	resp, err := s.Canonize(context.Background(), req("device-123", "Fresh Salmon"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}
	if resp.LLMUsed {
		t.Error("llmUsed = true under rate limit")
	}
	if resp.LLMRemaining == nil || *resp.LLMRemaining != 0 {
		t.Errorf("llmRemaining = %v, want 0", resp.LLMRemaining)
	}
	if resp.Merged[0].Result != nil {
		t.Errorf("result = %+v, want nil for guarded item", resp.Merged[0].Result)
	}
	if cls.callCount() != 0 {
		t.Error("classifier called despite rate limit")
	}
}

func TestCanonizeAdmissionPolicy(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{answer: func(r BatchRow) Result {
		res := itemAnswer(r)
		switch {
		case strings.Contains(r.Text, "Low"):
			res.Confidence = 0.5 // item below threshold: not cached
		case strings.Contains(r.Text, "Edge"):
			res.Confidence = 0.75 // at threshold: cached
		}
		return res
	}}
	s := newTestService(store, cls, &mockLimiter{ok: true, remaining: 4})

	_, err := s.Canonize(context.Background(), req("device-123", "Low Conf Thing", "Edge Item", "Sure Item"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}

	if _, ok := store.rows[Key("Low Conf Thing")]; ok {
		t.Error("low-confidence item was cached")
	}
	if _, ok := store.rows[Key("Edge Item")]; !ok {
		t.Error("threshold item was not cached")
	}
	if _, ok := store.rows[Key("Sure Item")]; !ok {
		t.Error("high-confidence item was not cached")
	}
}

func TestCanonizePrefilterBypassesLLM(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{answer: itemAnswer}
	s := newTestService(store, cls, &mockLimiter{ok: true, remaining: 4})

	resp, err := s.Canonize(context.Background(), req("device-123", "12345", "Gift Card"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}
	if cls.callCount() != 0 {
		t.Error("classifier called for prefilter-only batch")
	}
	if resp.LLMUsed {
		t.Error("llmUsed = true for prefilter-only batch")
	}
	for i, m := range resp.Merged {
		if m.Result == nil || m.Result.Status != StatusNotItem {
			t.Errorf("merged[%d] = %+v, want prefiltered not_item", i, m.Result)
		}
	}
	// Prefilter results pass admission (not_item) and land in the cache.
	if store.upsertCount() != 2 {
		t.Errorf("upserted %d rows, want 2", store.upsertCount())
	}
}

func TestCanonizeDuplicateTextsShareOneClassification(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{answer: itemAnswer}
	s := newTestService(store, cls, &mockLimiter{ok: true, remaining: 4})

	resp, err := s.Canonize(context.Background(), req("device-123", "Oat Milk", "OAT  MILK"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}
	if n := len(cls.batches[0]); n != 1 {
		t.Errorf("classifier saw %d rows, want 1 (dedup by key)", n)
	}
	if resp.Merged[0].Result == nil || resp.Merged[1].Result == nil {
		t.Fatal("both occurrences must receive the shared result")
	}
	if resp.Merged[0].Key != resp.Merged[1].Key {
		t.Error("equivalent texts produced different keys")
	}
}

func TestCanonizeBudgetExcess(t *testing.T) {
	store := newMockStore()
	cls := &mockClassifier{answer: itemAnswer}
	firstOnly := func(texts []string, _, _ int) (int, int) {
		if len(texts) == 0 {
			return 0, 0
		}
		return 1, len(texts[0])
	}
	s := NewService(store, cls, &mockLimiter{ok: true, remaining: 4}, firstOnly, ServiceConfig{})

	resp, err := s.Canonize(context.Background(), req("device-123", "First Item", "Second Item"))
	if err != nil {
		t.Fatalf("canonize: %v", err)
	}
	if resp.Merged[0].Result == nil {
		t.Error("budgeted item missing result")
	}
	if resp.Merged[1].Result != nil {
		t.Errorf("over-budget item got result %+v, want nil", resp.Merged[1].Result)
	}
}

func TestCanonizeValidation(t *testing.T) {
	s := newTestService(newMockStore(), &mockClassifier{answer: itemAnswer}, &mockLimiter{ok: true})

	tests := []struct {
		name string
		req  Request
	}{
		{"short device id", req("abc", "Milk")},
		{"no items", Request{DeviceID: "device-123"}},
		{"missing text", Request{DeviceID: "device-123", Items: []RequestItem{{ID: "a", Text: "  "}}}},
		{"missing id", Request{DeviceID: "device-123", Items: []RequestItem{{Text: "Milk"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Canonize(context.Background(), tt.req)
			if !errors.Is(err, ErrBadRequest) {
				t.Errorf("error = %v, want ErrBadRequest", err)
			}
		})
	}
}

func TestCanonizeCacheReadErrorPropagates(t *testing.T) {
	store := newMockStore()
	store.readErr = errors.New("disk on fire")
	s := newTestService(store, &mockClassifier{answer: itemAnswer}, &mockLimiter{ok: true})

	_, err := s.Canonize(context.Background(), req("device-123", "Milk"))
	if err == nil {
		t.Fatal("cache read failure must propagate")
	}
}

func TestCanonizeHitBumpBestEffort(t *testing.T) {
	store := newMockStore()
	store.rows[Key("Butter")] = Result{Key: Key("Butter"), Status: StatusItem,
		Kind: KindFood, IngredientType: TypeProduct, Confidence: 0.9, Source: SourceLLM}
	store.bumpErr = errors.New("bump failed")

	s := newTestService(store, &mockClassifier{answer: itemAnswer}, &mockLimiter{ok: true})

	resp, err := s.Canonize(context.Background(), req("device-123", "Butter"))
	if err != nil {
		t.Fatalf("bump failure must not fail the read: %v", err)
	}
	if resp.Merged[0].Result == nil {
		t.Fatal("cached result missing")
	}

	select {
	case keys := <-store.bumped:
		if len(keys) != 1 || keys[0] != Key("Butter") {
			t.Errorf("bumped keys = %v", keys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hit bump never issued")
	}
}

func TestCanonizeWriteErrorSwallowed(t *testing.T) {
	store := newMockStore()
	store.writeErr = errors.New("read-only fs")
	s := newTestService(store, &mockClassifier{answer: itemAnswer}, &mockLimiter{ok: true, remaining: 4})

	resp, err := s.Canonize(context.Background(), req("device-123", "Cheddar Cheese"))
	if err != nil {
		t.Fatalf("cache write failure must be swallowed: %v", err)
	}
	if resp.Merged[0].Result == nil || resp.Merged[0].Result.Status != StatusItem {
		t.Errorf("result lost on write failure: %+v", resp.Merged[0].Result)
	}
}
