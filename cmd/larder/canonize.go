package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/larderhq/larder/internal/cache"
	"github.com/larderhq/larder/internal/canon"
	"github.com/larderhq/larder/internal/config"
	"github.com/larderhq/larder/internal/guard"
	"github.com/larderhq/larder/internal/llm"
	"github.com/larderhq/larder/internal/parse"
)

func runCanonize(args []string) error {
	var (
		device  string
		llmFlag string
		dbFlag  string
		receipt string
		asJSON  bool
		texts   []string
	)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--device" && i+1 < len(args):
			i++
			device = args[i]
		case args[i] == "--llm" && i+1 < len(args):
			i++
			llmFlag = args[i]
		case args[i] == "--db" && i+1 < len(args):
			i++
			dbFlag = args[i]
		case args[i] == "--receipt" && i+1 < len(args):
			i++
			receipt = args[i]
		case args[i] == "--json":
			asJSON = true
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			texts = append(texts, args[i])
		}
	}

	if device == "" {
		device = strings.TrimSpace(os.Getenv("LARDER_DEVICE_ID"))
	}
	if device == "" {
		return fmt.Errorf("--device (or LARDER_DEVICE_ID) is required")
	}

	// --receipt runs the parse pipeline first, classifying its candidates.
	if receipt != "" {
		raw, err := readInput([]string{receipt})
		if err != nil {
			return err
		}
		texts = append(texts, parse.Names(parse.Receipt(raw))...)
	}
	if len(texts) == 0 {
		return fmt.Errorf("usage: larder canonize --device <id> [--receipt <file>] <text>...")
	}

	resolved, err := config.ResolveConfig(config.ResolveOptions{
		CLILLM:    llmFlag,
		CLIDBPath: dbFlag,
	})
	if err != nil {
		return err
	}

	st, svc, err := buildService(resolved)
	if err != nil {
		return err
	}
	defer st.Close()

	items := make([]canon.RequestItem, len(texts))
	for i, t := range texts {
		items[i] = canon.RequestItem{ID: uuid.NewString(), Text: t}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := svc.Canonize(ctx, canon.Request{DeviceID: device, Items: items})
	if err != nil {
		return err
	}

	if asJSON {
		return emitJSON(resp)
	}
	for _, m := range resp.Merged {
		if m.Result == nil {
			fmt.Printf("%-30s  (rate limited, retry later)\n", m.Text)
			continue
		}
		r := m.Result
		name := r.CanonicalName
		if name == "" {
			name = m.Text
		}
		fmt.Printf("%-30s  %-8s  %-9s  %-10s  %.2f  [%s]\n",
			name, r.Status, r.Kind, r.IngredientType, r.Confidence, r.Source)
	}
	if resp.LLMRemaining != nil {
		fmt.Printf("\nLLM calls remaining today: %d\n", *resp.LLMRemaining)
	}
	return nil
}

// buildService wires the full pipeline from resolved config: SQLite cache,
// rate-limited LLM provider, batch classifier, and daily guard.
func buildService(resolved config.ResolvedConfig) (cache.Store, *canon.Service, error) {
	st, err := cache.NewStore(cache.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache: %w", err)
	}

	llmCfg, err := llm.ParseFlag(resolved.LLMModel.Value)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if k := resolved.APIKeyForProvider(llmCfg.Provider); k.Value != "" {
		llmCfg.APIKey = k.Value
	}

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if qps := resolved.LLMQPS.Float(0); qps > 0 {
		provider = llm.Limited(provider, qps, 1)
	}

	classifier := canon.NewLLMClassifier(provider)
	if secs := resolved.BatchTimeout.Int(0); secs > 0 {
		classifier = classifier.WithTimeout(time.Duration(secs) * time.Second)
	}

	svc := canon.NewService(st, classifier, guard.NewDailyLimiter(guard.SystemClock()), guard.Trim,
		canon.ServiceConfig{
			MaxPerDay: resolved.MaxPerDay.Int(0),
			MaxItems:  resolved.MaxItems.Int(0),
			MaxChars:  resolved.MaxChars.Int(0),
			Logf: func(format string, args ...any) {
				fmt.Fprintf(os.Stderr, "warn: "+format+"\n", args...)
			},
		})
	return st, svc, nil
}
