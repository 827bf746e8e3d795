package canon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/llm"
)

// DefaultBatchTimeout bounds one whole batch call, network plus parsing.
const DefaultBatchTimeout = 20 * time.Second

const classifySystemPrompt = `You are a grocery receipt item classifier for a pantry app. For each input row decide whether the text names a real pantry item, produce a clean canonical name, and categorize it.

FIELDS per row:
- key: echo the input key EXACTLY, unchanged
- canonicalName: short, presentable item name ("Boneless Chicken Breast", "Whole Milk")
- status: "item" (belongs in a pantry), "not_item" (fees, bags, services, non-grocery goods), or "unknown" (cannot tell)
- kind: "food", "household" (cleaning, paper goods), or "other"
- ingredientType: "ingredient" (raw cooking ingredient), "product" (packaged/ready-made), or "ambiguous"
- confidence: 0.0-1.0

RULES:
- One output row per input row, same keys, no extras and no omissions
- Never invent items: if the text is garbled receipt residue, use status "unknown" with low confidence
- Return ONLY a JSON object: {"rows":[{"key":"...","canonicalName":"...","status":"...","kind":"...","ingredientType":"...","confidence":0.9}]}`

// BatchRow is one classifier input: the cache key plus the candidate text.
type BatchRow struct {
	Key  string
	Text string
}

// Classifier is the capability interface the service consumes. Implementations
// must return either one validated Result per input row or an error; partial
// output is a contract violation.
type Classifier interface {
	ClassifyBatch(ctx context.Context, rows []BatchRow) ([]Result, error)
}

// LLMClassifier implements Classifier over an llm.Provider with strict
// response validation. All failure modes — transport, timeout, malformed or
// contract-violating JSON — surface as errors; the caller owns fallback.
type LLMClassifier struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewLLMClassifier wraps provider with the default batch timeout.
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider, timeout: DefaultBatchTimeout}
}

// WithTimeout overrides the per-batch deadline. Zero keeps the default.
func (c *LLMClassifier) WithTimeout(d time.Duration) *LLMClassifier {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// wireRow mirrors the JSON contract of the classifier response.
type wireRow struct {
	Key            string  `json:"key"`
	CanonicalName  string  `json:"canonicalName"`
	Status         string  `json:"status"`
	Kind           string  `json:"kind"`
	IngredientType string  `json:"ingredientType"`
	Confidence     float64 `json:"confidence"`
}

type wireResponse struct {
	Rows []wireRow `json:"rows"`
}

// ClassifyBatch sends one batched request under a single deadline and
// validates the response against the row contract.
func (c *LLMClassifier) ClassifyBatch(ctx context.Context, rows []BatchRow) ([]Result, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.provider.Complete(callCtx, buildBatchPrompt(rows), llm.CompletionOpts{
		Temperature: 0.1,
		MaxTokens:   4096,
		Format:      "json",
		System:      classifySystemPrompt,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrClassifierTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrClassifierResponse, err)
	}

	return validateBatchResponse(rows, raw)
}

func buildBatchPrompt(rows []BatchRow) string {
	var sb strings.Builder
	sb.WriteString("Classify each row. Return JSON only.\n\nROWS:\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, "- key:%s | text:%s\n", r.Key, r.Text)
	}
	return sb.String()
}

// validateBatchResponse enforces the full contract: parseable JSON, exactly
// one row per input, recognized keys, closed enums, confidence in range.
// Any violation fails the whole batch.
func validateBatchResponse(input []BatchRow, raw string) ([]Result, error) {
	var resp wireResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, responsef("invalid JSON: %v", err)
	}

	if len(resp.Rows) != len(input) {
		return nil, responsef("row count %d != input %d", len(resp.Rows), len(input))
	}

	expected := make(map[string]int, len(input))
	for _, r := range input {
		expected[r.Key]++
	}

	now := time.Now().UTC()
	out := make([]Result, 0, len(resp.Rows))
	for _, w := range resp.Rows {
		if n := expected[w.Key]; n == 0 {
			return nil, responsef("unrecognized or duplicated key %q", w.Key)
		}
		expected[w.Key]--

		if !ValidStatus(w.Status) {
			return nil, responsef("invalid status %q for key %q", w.Status, w.Key)
		}
		if !ValidKind(w.Kind) {
			return nil, responsef("invalid kind %q for key %q", w.Kind, w.Key)
		}
		if !ValidIngredientType(w.IngredientType) {
			return nil, responsef("invalid ingredientType %q for key %q", w.IngredientType, w.Key)
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			return nil, responsef("confidence %v out of range for key %q", w.Confidence, w.Key)
		}

		out = append(out, Result{
			Key:            w.Key,
			CanonicalName:  strings.TrimSpace(w.CanonicalName),
			Status:         Status(w.Status),
			Kind:           Kind(w.Kind),
			IngredientType: IngredientType(w.IngredientType),
			Confidence:     ClampConfidence(w.Confidence),
			UpdatedAt:      now,
			Source:         SourceLLM,
		})
	}
	return out, nil
}

// stripFences removes a wrapping markdown code fence, which some models emit
// even when asked for bare JSON.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}
	return cleaned
}
