package mcp

import "github.com/mark3labs/mcp-go/mcp"

var ledgerAddToolDef = mcp.NewTool("ledger_add",
	mcp.WithDescription("Record a food eaten. Unreadable or missing numbers count as zero; only the name is required."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Food name, e.g. \"Nasi Goreng\"")),
	mcp.WithNumber("calories", mcp.Description("Calories (kcal), whole number"), mcp.Min(0)),
	mcp.WithNumber("protein", mcp.Description("Protein in grams"), mcp.Min(0)),
	mcp.WithNumber("carbs", mcp.Description("Carbohydrates in grams"), mcp.Min(0)),
	mcp.WithNumber("fat", mcp.Description("Fat in grams"), mcp.Min(0)),
	mcp.WithString("date", mcp.Description("Day eaten as YYYY-MM-DD; default today")),
)

var ledgerDeleteToolDef = mcp.NewTool("ledger_delete",
	mcp.WithDescription("Delete a ledger entry by id. Deleting an unknown id reports deleted=false."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
	mcp.WithDestructiveHintAnnotation(true),
)

var ledgerEntriesToolDef = mcp.NewTool("ledger_entries",
	mcp.WithDescription("List one day's entries in the order they were recorded, with the day's totals."),
	mcp.WithString("date", mcp.Description("YYYY-MM-DD; default today")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var ledgerSummaryToolDef = mcp.NewTool("ledger_summary",
	mcp.WithDescription("Daily totals, progress toward the calorie goal, remaining calories, and the most recent entries."),
	mcp.WithString("date", mcp.Description("YYYY-MM-DD; default today")),
	mcp.WithNumber("goal", mcp.Description("Daily calorie goal; default from config (2000)"), mcp.Min(0)),
	mcp.WithNumber("recent", mcp.Description("How many recent entries to include (default 3, max 50)"), mcp.Min(0)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var foodAnalyzeToolDef = mcp.NewTool("food_analyze",
	mcp.WithDescription("Recognize the food in a photo and estimate its calories and macros. Give image_path or image_base64."),
	mcp.WithString("image_path", mcp.Description("Path to a local image file")),
	mcp.WithString("image_base64", mcp.Description("Base64-encoded image bytes")),
	mcp.WithString("filename", mcp.Description("File name sent with image_base64")),
	mcp.WithBoolean("track", mcp.Description("Also record the result in the ledger")),
	mcp.WithOpenWorldHintAnnotation(true),
)

var chatSendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a message to the nutrition assistant and get its reply. The exchange is saved to the conversation."),
	mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
	mcp.WithString("conversation_id", mcp.Description("Conversation to send to; default the active one")),
	mcp.WithOpenWorldHintAnnotation(true),
)

var chatListToolDef = mcp.NewTool("chat_list",
	mcp.WithDescription("List conversations, most recently updated first."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var chatGetToolDef = mcp.NewTool("chat_get",
	mcp.WithDescription("Get a conversation with all of its messages."),
	mcp.WithString("id", mcp.Description("Conversation id; default the active one")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var chatCreateToolDef = mcp.NewTool("chat_create",
	mcp.WithDescription("Start a new conversation and make it active."),
)

var chatDeleteToolDef = mcp.NewTool("chat_delete",
	mcp.WithDescription("Delete a conversation. Deleting the last one leaves a fresh greeting conversation."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Conversation id")),
	mcp.WithDestructiveHintAnnotation(true),
)
