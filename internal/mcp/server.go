package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"ledger", "food", "chat"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"ledger_add": {
		def:     ledgerAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerAdd },
	},
	"ledger_delete": {
		def:     ledgerDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerDelete },
	},
	"ledger_entries": {
		def:     ledgerEntriesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerEntries },
	},
	"ledger_summary": {
		def:     ledgerSummaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerSummary },
	},
	"food_analyze": {
		def:     foodAnalyzeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFoodAnalyze },
	},
	"chat_send": {
		def:     chatSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatSend },
	},
	"chat_list": {
		def:     chatListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatList },
	},
	"chat_get": {
		def:     chatGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatGet },
	},
	"chat_create": {
		def:     chatCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatCreate },
	},
	"chat_delete": {
		def:     chatDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChatDelete },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name
// ("ledger_add" → "ledger").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// Deps are the collaborators the tools call into.
type Deps struct {
	State    *ops.State
	Analyzer ops.Analyzer
	Chatter  ops.Chatter
}

// NewServer creates an MCP server with the DNAI tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(deps Deps, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"dnai",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(deps Deps, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(deps, cfg, version))
}
