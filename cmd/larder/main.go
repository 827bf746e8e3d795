package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const version = "0.1.0"

func main() {
	// API keys may live in a local .env during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "parse":
		err = runParse(os.Args[2:])
	case "canonize":
		err = runCanonize(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "purge":
		err = runPurge(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("larder %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`larder %s — Receipt-to-pantry candidate engine

Usage:
  larder <command> [arguments]

Commands:
  parse [file]        Parse raw receipt text into candidate items (stdin if no file)
  canonize <text>...  Classify candidate texts (or --receipt <file>) into pantry results
  stats               Show classification cache statistics
  purge               Remove old or stale-version cache rows
  serve               Run the MCP server on stdio
  version             Print version

Parse Flags:
  --json              Emit JSON instead of a plain list
  --explain           Include the per-line keep/drop decision trail

Canonize Flags:
  --device <id>       Device identifier for rate limiting (or LARDER_DEVICE_ID)
  --llm <prov/model>  LLM selection, e.g. google/gemini-2.5-flash
  --db <path>         Cache database path

Flags:
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
