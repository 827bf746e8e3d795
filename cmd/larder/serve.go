package main

import (
	"fmt"
	"strings"

	"github.com/larderhq/larder/internal/config"
	larderMCP "github.com/larderhq/larder/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func runServe(args []string) error {
	var (
		llmFlag string
		dbFlag  string
	)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--llm" && i+1 < len(args):
			i++
			llmFlag = args[i]
		case args[i] == "--db" && i+1 < len(args):
			i++
			dbFlag = args[i]
		case strings.HasPrefix(args[i], "-"):
			return fmt.Errorf("unknown flag: %s", args[i])
		default:
			return fmt.Errorf("unexpected argument: %s", args[i])
		}
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

	srv := larderMCP.NewServer(larderMCP.ServerConfig{
		Service: svc,
		Store:   st,
		Version: version,
	})
	return server.ServeStdio(srv)
}
