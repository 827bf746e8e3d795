// Package mcp provides a Model Context Protocol server for Larder.
//
// It exposes the receipt pipeline (parse, canonize, cache stats) as MCP
// tools over stdio transport, so assistant clients can turn raw receipt
// text into pantry candidates without shelling out to the CLI.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/larderhq/larder/internal/cache"
	"github.com/larderhq/larder/internal/canon"
	"github.com/larderhq/larder/internal/parse"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds the wired pipeline pieces the tools delegate to.
type ServerConfig struct {
	Service *canon.Service
	Store   cache.Store
	Version string
}

// dbMu serializes tool calls that touch the SQLite cache. The mcp-go
// library dispatches handlers concurrently via goroutines, and SQLite
// supports only one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Larder tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Larder",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerParseTool(s)
	registerCanonizeTool(s, cfg.Service)
	registerStatsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerParseTool(s *server.MCPServer) {
	tool := mcp.NewTool("larder_parse",
		mcp.WithDescription("Parse raw receipt OCR text into deduplicated pantry candidate items. Drops receipt noise (prices, store metadata, barcodes) and cleans item names."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("raw",
			mcp.Required(),
			mcp.Description("Raw receipt text, one line per OCR line"),
		),
		mcp.WithBoolean("explain",
			mcp.Description("Include the per-line decision trail (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("raw")
		if err != nil || strings.TrimSpace(raw) == "" {
			return mcp.NewToolResultError("raw is required"), nil
		}

		explain := req.GetBool("explain", false)

		if explain {
			items, trail := parse.Explain(raw)
			data, _ := json.MarshalIndent(map[string]interface{}{
				"items": items,
				"trail": trail,
			}, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}

		items := parse.Receipt(raw)
		data, _ := json.MarshalIndent(map[string]interface{}{
			"items": items,
			"count": len(items),
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCanonizeTool(s *server.MCPServer, svc *canon.Service) {
	tool := mcp.NewTool("larder_canonize",
		mcp.WithDescription("Classify candidate item texts into pantry results (item / not_item / unknown with kind and ingredient type). Cache-first; uncached items go through the batch LLM classifier, subject to the per-device daily limit."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Stable device identifier used for rate limiting (min 6 chars)"),
		),
		mcp.WithString("items",
			mcp.Required(),
			mcp.Description(`JSON array of item texts ["oat milk", ...] or objects [{"id":"a","text":"oat milk"}, ...]`),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		deviceID, err := req.RequireString("device_id")
		if err != nil {
			return mcp.NewToolResultError("device_id is required"), nil
		}
		itemsRaw, err := req.RequireString("items")
		if err != nil {
			return mcp.NewToolResultError("items is required"), nil
		}

		items, perr := parseItemsArg(itemsRaw)
		if perr != nil {
			return mcp.NewToolResultError(perr.Error()), nil
		}

		resp, err := svc.Canonize(ctx, canon.Request{DeviceID: deviceID, Items: items})
		if err != nil {
			if errors.Is(err, canon.ErrBadRequest) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("canonize error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(resp, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st cache.Store) {
	tool := mcp.NewTool("larder_stats",
		mcp.WithDescription("Classification cache statistics: row counts by status, current pipeline version coverage, and the most-hit cache entries."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("top",
			mcp.Description("How many top-hit entries to include (default: 10, max: 50)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		top := 10
		if v, err := req.RequireFloat("top"); err == nil {
			n := int(v)
			if n > 50 {
				n = 50
			}
			if n > 0 {
				top = n
			}
		}

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}
		hits, err := st.TopHits(ctx, top)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("top hits error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(map[string]interface{}{
			"stats":    stats,
			"top_hits": hits,
			"version":  canon.PipelineVersion,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerStatsResource(s *server.MCPServer, st cache.Store) {
	resource := mcp.NewResource(
		"larder://cache/stats",
		"Cache Stats",
		mcp.WithResourceDescription("Classification cache row counts by status and pipeline version coverage."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying cache stats: %w", err)
		}
		data, _ := json.MarshalIndent(stats, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// parseItemsArg accepts either a JSON array of strings or of {id, text}
// objects. Strings get generated IDs.
func parseItemsArg(raw string) ([]canon.RequestItem, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("items must be a non-empty JSON array")
	}

	var objs []canon.RequestItem
	if err := json.Unmarshal([]byte(raw), &objs); err == nil && len(objs) > 0 && objs[0].Text != "" {
		return objs, nil
	}

	var texts []string
	if err := json.Unmarshal([]byte(raw), &texts); err != nil {
		return nil, fmt.Errorf("items must be a JSON array of strings or {id,text} objects: %w", err)
	}
	items := make([]canon.RequestItem, len(texts))
	for i, t := range texts {
		items[i] = canon.RequestItem{ID: uuid.NewString(), Text: t}
	}
	return items, nil
}
