package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/larderhq/larder/internal/parse"
)

func runParse(args []string) error {
	var (
		asJSON  bool
		explain bool
		paths   []string
	)
	for _, arg := range args {
		switch {
		case arg == "--json":
			asJSON = true
		case arg == "--explain":
			explain = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			paths = append(paths, arg)
		}
	}

	raw, err := readInput(paths)
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("no receipt text provided")
	}

	if explain {
		items, trail := parse.Explain(raw)
		if asJSON {
			return emitJSON(map[string]interface{}{"items": items, "trail": trail})
		}
		for _, d := range trail {
			mark := "drop"
			if d.Verdict.Keep {
				mark = "keep"
			}
			fmt.Printf("%-4s  %-16s  %s\n", mark, d.Verdict.Rule, d.Line)
			if d.Stopped {
				fmt.Println("----  totals section, remaining lines ignored")
				break
			}
		}
		fmt.Printf("\n%d candidate item(s)\n", len(items))
		return nil
	}

	items := parse.Receipt(raw)
	if asJSON {
		return emitJSON(map[string]interface{}{"items": items, "count": len(items)})
	}
	for _, it := range items {
		fmt.Println(it.Name)
	}
	return nil
}

// readInput concatenates the named files, or reads stdin when none given.
func readInput(paths []string) (string, error) {
	if len(paths) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	var sb strings.Builder
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", p, err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func emitJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
