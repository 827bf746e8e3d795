package canon

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MinDeviceIDLength is the shortest accepted device identifier.
const MinDeviceIDLength = 6

// Default request limits. All overridable via ServiceConfig.
const (
	DefaultMaxPerDay = 20
	DefaultMaxItems  = 40
	DefaultMaxChars  = 4000
)

// RequestItem is one candidate text to canonicalize.
type RequestItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Request is a canonicalization request for one device.
type Request struct {
	DeviceID string        `json:"deviceId"`
	Items    []RequestItem `json:"items"`
}

// MergedItem is the per-item answer. Result is nil when the item was
// uncached and the rate limiter rejected the batch; the caller should retry
// later rather than receive a fabricated guess.
type MergedItem struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Key    string  `json:"key"`
	Result *Result `json:"result"`
}

// Response preserves request item order and count exactly.
type Response struct {
	OK           bool         `json:"ok"`
	LLMUsed      bool         `json:"llmUsed"`
	LLMRemaining *int         `json:"llmRemaining"`
	Merged       []MergedItem `json:"merged"`
}

// Store is the persistent classification cache the service consumes. GetMany
// returns only present keys; a missing key is not an error. BumpHits is
// best-effort and its failure must never fail a read.
type Store interface {
	GetMany(ctx context.Context, keys []string) (map[string]Result, error)
	UpsertMany(ctx context.Context, rows []Result) error
	BumpHits(ctx context.Context, keys []string) error
}

// Limiter gates classifier invocations per device per calendar day.
type Limiter interface {
	Check(deviceID string, maxPerDay int) (ok bool, remaining int)
}

// Budget trims an ordered text list to the per-request item/char caps,
// returning how many leading texts fit and the characters they use.
type Budget func(texts []string, maxItems, maxChars int) (n, charsUsed int)

// ServiceConfig carries the guard limits and logging hook.
type ServiceConfig struct {
	MaxPerDay int
	MaxItems  int
	MaxChars  int

	// Logf receives swallowed-failure notices (cache writes, hit bumps,
	// classifier fallbacks). Nil means silent.
	Logf func(format string, args ...any)
}

// Service canonicalizes candidate texts: cache lookup, guard checks,
// deterministic prefilter, batched LLM classification, selective cache
// admission, and order-preserving merge.
type Service struct {
	store      Store
	classifier Classifier
	limiter    Limiter
	budget     Budget
	cfg        ServiceConfig
}

// NewService wires a Service. classifier may be nil only if every request is
// expected to be answered from cache or guard-rejected.
func NewService(store Store, classifier Classifier, limiter Limiter, budget Budget, cfg ServiceConfig) *Service {
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = DefaultMaxPerDay
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	return &Service{store: store, classifier: classifier, limiter: limiter, budget: budget, cfg: cfg}
}

func (s *Service) logf(format string, args ...any) {
	if s.cfg.Logf != nil {
		s.cfg.Logf(format, args...)
	}
}

// validateRequest rejects malformed requests before any pipeline work.
func validateRequest(req Request) error {
	if len(strings.TrimSpace(req.DeviceID)) < MinDeviceIDLength {
		return badRequestf("deviceId must be at least %d characters", MinDeviceIDLength)
	}
	if len(req.Items) == 0 {
		return badRequestf("items must not be empty")
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.ID) == "" {
			return badRequestf("items[%d] missing id", i)
		}
		if strings.TrimSpace(it.Text) == "" {
			return badRequestf("items[%d] missing text", i)
		}
	}
	return nil
}

// Canonize runs one request through the full pipeline. It returns an error
// only for malformed requests and cache-read outages; every classifier-path
// failure degrades to fallback or nil results inside a successful response.
func (s *Service) Canonize(ctx context.Context, req Request) (Response, error) {
	if err := validateRequest(req); err != nil {
		return Response{}, err
	}

	keys := make([]string, len(req.Items))
	for i, it := range req.Items {
		keys[i] = Key(it.Text)
	}

	cached, err := s.store.GetMany(ctx, uniqueKeys(keys))
	if err != nil {
		return Response{}, fmt.Errorf("cache read: %w", err)
	}
	if len(cached) > 0 {
		s.bumpHits(mapKeys(cached))
	}

	// Cache misses, deduplicated by key in first-appearance order.
	var missKeys []string
	missText := make(map[string]string)
	for i, k := range keys {
		if _, hit := cached[k]; hit {
			continue
		}
		if _, seen := missText[k]; seen {
			continue
		}
		missKeys = append(missKeys, k)
		missText[k] = req.Items[i].Text
	}

	resp := Response{OK: true, Merged: make([]MergedItem, len(req.Items))}
	fresh := make(map[string]Result)

	if len(missKeys) > 0 {
		ok, remaining := s.limiter.Check(req.DeviceID, s.cfg.MaxPerDay)
		resp.LLMRemaining = &remaining

		if ok {
			texts := make([]string, len(missKeys))
			for i, k := range missKeys {
				texts[i] = missText[k]
			}
			admitted, _ := s.budget(texts, s.cfg.MaxItems, s.cfg.MaxChars)

			var llmUsed bool
			fresh, llmUsed = s.classifyMisses(ctx, missKeys[:admitted], missText)
			resp.LLMUsed = llmUsed
			s.persistAdmitted(fresh)
		}
	}

	for i, it := range req.Items {
		m := MergedItem{ID: it.ID, Text: it.Text, Key: keys[i]}
		if r, ok := fresh[keys[i]]; ok {
			res := r
			m.Result = &res
		} else if r, ok := cached[keys[i]]; ok {
			res := r
			res.Source = SourceCache
			m.Result = &res
		}
		resp.Merged[i] = m
	}
	return resp, nil
}

// classifyMisses applies the prefilter, batches the remainder through the
// classifier, and guarantees one result per admitted key. Classifier failure
// collapses the whole batch to fallback placeholders. llmUsed reports whether
// the batch actually reached the LLM; prefilter-only rounds do not count.
func (s *Service) classifyMisses(ctx context.Context, keys []string, text map[string]string) (out map[string]Result, llmUsed bool) {
	out = make(map[string]Result, len(keys))

	var batch []BatchRow
	for _, k := range keys {
		if pf := Prefilter(k, text[k]); pf != nil {
			pf.UpdatedAt = time.Now().UTC()
			out[k] = *pf
			continue
		}
		batch = append(batch, BatchRow{Key: k, Text: text[k]})
	}

	if len(batch) == 0 {
		return out, false
	}

	rows, err := s.classifier.ClassifyBatch(ctx, batch)
	if err != nil {
		s.logf("classifier batch of %d failed, falling back: %v", len(batch), err)
		for _, b := range batch {
			out[b.Key] = Fallback(b.Key)
		}
		return out, true
	}

	for _, r := range rows {
		r.Confidence = ClampConfidence(r.Confidence)
		out[r.Key] = r
	}

	// Defensive: a validated response always covers every key, but a row
	// must never be lost past this point.
	for _, b := range batch {
		if _, ok := out[b.Key]; !ok {
			out[b.Key] = Fallback(b.Key)
		}
	}
	return out, true
}

// persistAdmitted upserts the admission-policy survivors. Write failure is
// logged and swallowed; caching is an optimization, not a requirement.
func (s *Service) persistAdmitted(fresh map[string]Result) {
	var rows []Result
	for _, r := range fresh {
		if ShouldCache(r) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpsertMany(ctx, rows); err != nil {
		s.logf("cache write of %d rows failed: %v", len(rows), err)
	}
}

// bumpHits fires the best-effort hit-count increment without blocking the
// request. Lost increments under races are tolerated.
func (s *Service) bumpHits(keys []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.BumpHits(ctx, keys); err != nil {
			s.logf("hit bump for %d keys failed: %v", len(keys), err)
		}
	}()
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func mapKeys(m map[string]Result) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
