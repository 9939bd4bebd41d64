package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zzeiidann/DNAI/internal/config"
	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st       *ops.State
	analyzer ops.Analyzer
	chatter  ops.Chatter
	cfg      *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, cfg *config.Config) *Handlers {
	return &Handlers{st: deps.State, analyzer: deps.Analyzer, chatter: deps.Chatter, cfg: cfg}
}

// Request types for each tool

// LedgerAddRequest represents the arguments for ledger_add.
type LedgerAddRequest struct {
	Name     string  `json:"name"`
	Calories numText `json:"calories,omitempty"`
	Protein  numText `json:"protein,omitempty"`
	Carbs    numText `json:"carbs,omitempty"`
	Fat      numText `json:"fat,omitempty"`
	Date     string  `json:"date,omitempty"`
}

// IDRequest represents the arguments for tools addressing one record.
type IDRequest struct {
	ID string `json:"id,omitempty"`
}

// DateRequest represents the arguments for ledger_entries.
type DateRequest struct {
	Date string `json:"date,omitempty"`
}

// SummaryRequest represents the arguments for ledger_summary.
type SummaryRequest struct {
	Date   string `json:"date,omitempty"`
	Goal   int    `json:"goal,omitempty"`
	Recent int    `json:"recent,omitempty"`
}

// AnalyzeRequest represents the arguments for food_analyze.
type AnalyzeRequest struct {
	ImagePath   string `json:"image_path,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Track       bool   `json:"track,omitempty"`
}

// ChatSendRequest represents the arguments for chat_send.
type ChatSendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Handler implementations

// HandleLedgerAdd handles the ledger_add tool call.
func (h *Handlers) HandleLedgerAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LedgerAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AddEntry(ctx, h.st.Ledger, ops.AddEntryInput{
		Name:     input.Name,
		Calories: string(input.Calories),
		Protein:  string(input.Protein),
		Carbs:    string(input.Carbs),
		Fat:      string(input.Fat),
		Date:     input.Date,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLedgerDelete handles the ledger_delete tool call.
func (h *Handlers) HandleLedgerDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.DeleteEntry(ctx, h.st.Ledger, ops.DeleteEntryInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLedgerEntries handles the ledger_entries tool call.
func (h *Handlers) HandleLedgerEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ListEntries(h.st.Ledger, ops.ListEntriesInput{Date: input.Date})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleLedgerSummary handles the ledger_summary tool call.
func (h *Handlers) HandleLedgerSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SummaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Summary(h.st.Ledger, h.cfg, ops.SummaryInput{
		Date:   input.Date,
		Goal:   input.Goal,
		Recent: input.Recent,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFoodAnalyze handles the food_analyze tool call.
func (h *Handlers) HandleFoodAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	image, name, err := openImage(input)
	if err != nil {
		return errorResult(err), nil
	}
	defer image.Close()

	if input.Track {
		if err := h.st.Reload(ctx); err != nil {
			return errorResult(err), nil
		}
	}

	result, err := ops.AnalyzeFood(ctx, h.analyzer, h.st.Ledger, h.cfg, ops.AnalyzeFoodInput{
		Filename: name,
		Image:    image,
		Track:    input.Track,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// openImage resolves the image argument: exactly one of a local path or
// base64 bytes (a data: URL prefix is accepted).
func openImage(input AnalyzeRequest) (io.ReadCloser, string, error) {
	switch {
	case input.ImagePath != "" && input.ImageBase64 != "":
		return nil, "", errors.NewInvalidRequest("give either image_path or image_base64, not both")
	case input.ImagePath != "":
		f, err := os.Open(input.ImagePath)
		if os.IsNotExist(err) {
			return nil, "", errors.NewNotFound("file", input.ImagePath)
		}
		if err != nil {
			return nil, "", errors.NewInvalidRequest(err.Error())
		}
		return f, filepath.Base(input.ImagePath), nil
	case input.ImageBase64 != "":
		encoded := input.ImageBase64
		if strings.HasPrefix(encoded, "data:") {
			if i := strings.Index(encoded, ","); i >= 0 {
				encoded = encoded[i+1:]
			}
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, "", errors.NewInvalidRequest("image_base64 is not valid base64")
		}
		name := input.Filename
		if name == "" {
			name = "upload"
		}
		return io.NopCloser(bytes.NewReader(data)), name, nil
	default:
		return nil, "", errors.NewInvalidRequest("image_path or image_base64 is required")
	}
}

// HandleChatSend handles the chat_send tool call.
func (h *Handlers) HandleChatSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChatSendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.SendChat(ctx, h.st.Chat, h.chatter, ops.SendChatInput{
		Message:        input.Message,
		ConversationID: input.ConversationID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatList handles the chat_list tool call.
func (h *Handlers) HandleChatList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(ops.ListConversations(h.st.Chat))
}

// HandleChatGet handles the chat_get tool call.
func (h *Handlers) HandleChatGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.GetConversation(h.st.Chat, ops.ConversationInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatCreate handles the chat_create tool call.
func (h *Handlers) HandleChatCreate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}
	result, err := ops.CreateConversation(ctx, h.st.Chat)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleChatDelete handles the chat_delete tool call.
func (h *Handlers) HandleChatDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if err := h.st.Reload(ctx); err != nil {
		return errorResult(err), nil
	}

	result, err := ops.DeleteConversation(ctx, h.st.Chat, ops.ConversationInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error messages are replaced so paths and SQL errors stay local.
func errorResult(err error) *mcp.CallToolResult {
	dErr := errors.As(err)

	errorObj := map[string]any{
		"code":    dErr.Code,
		"message": dErr.Message,
		"status":  dErr.Status,
	}
	if dErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	} else if dErr.Details != nil {
		errorObj["details"] = dErr.Details
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
