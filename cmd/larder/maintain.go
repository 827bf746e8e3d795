package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/cache"
	"github.com/larderhq/larder/internal/canon"
	"github.com/larderhq/larder/internal/config"
)

func runStats(args []string) error {
	var (
		dbFlag string
		top    = 10
		asJSON bool
	)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			dbFlag = args[i]
		case args[i] == "--top" && i+1 < len(args):
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return fmt.Errorf("--top expects a positive integer")
			}
			top = n
		case args[i] == "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	st, err := openStore(dbFlag)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	hits, err := st.TopHits(ctx, top)
	if err != nil {
		return err
	}

	if asJSON {
		return emitJSON(map[string]interface{}{
			"stats":    stats,
			"top_hits": hits,
			"version":  canon.PipelineVersion,
		})
	}

	fmt.Printf("Cache: %s\n", stats.DBPath)
	fmt.Printf("Rows: %d   Total hits: %d   Pipeline: %s\n\n", stats.Rows, stats.TotalHits, canon.PipelineVersion)
	for status, n := range stats.ByStatus {
		fmt.Printf("  %-10s %d\n", status, n)
	}
	if len(hits) > 0 {
		fmt.Printf("\nTop hits:\n")
		for _, h := range hits {
			name := h.CanonicalName
			if name == "" {
				name = h.Key
			}
			fmt.Printf("  %6d  %-10s  %s\n", h.Hits, h.Status, name)
		}
	}
	return nil
}

func runPurge(args []string) error {
	var (
		dbFlag      string
		olderDays   int
		oldVersions bool
		dryRun      bool
	)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			i++
			dbFlag = args[i]
		case args[i] == "--older-than" && i+1 < len(args):
			i++
			n, err := strconv.Atoi(strings.TrimSuffix(args[i], "d"))
			if err != nil || n <= 0 {
				return fmt.Errorf("--older-than expects days, e.g. --older-than 90")
			}
			olderDays = n
		case args[i] == "--versions":
			oldVersions = true
		case args[i] == "--dry-run" || args[i] == "-n":
			dryRun = true
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	if olderDays == 0 && !oldVersions {
		return fmt.Errorf("usage: larder purge [--older-than <days>] [--versions]")
	}
	if dryRun {
		fmt.Println("Dry run mode — no changes will be written")
	}

	st, err := openStore(dbFlag)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if olderDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -olderDays)
		if dryRun {
			fmt.Printf("Would purge rows not updated since %s\n", cutoff.Format("2006-01-02"))
		} else {
			n, err := st.PurgeBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d row(s) older than %d day(s)\n", n, olderDays)
		}
	}
	if oldVersions {
		if dryRun {
			fmt.Printf("Would purge rows outside pipeline version %s\n", canon.PipelineVersion)
		} else {
			n, err := st.PurgeOtherVersions(ctx, canon.PipelineVersion)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d row(s) from other pipeline versions\n", n)
		}
	}
	return nil
}

func openStore(dbFlag string) (cache.Store, error) {
	resolved, err := config.ResolveConfig(config.ResolveOptions{CLIDBPath: dbFlag})
	if err != nil {
		return nil, err
	}
	st, err := cache.NewStore(cache.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return st, nil
}
