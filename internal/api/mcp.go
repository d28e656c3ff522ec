package api

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP tool server.
type MCPDeps struct {
	Companion Companion
}

// NewMCPServer creates an MCP server exposing the companion as tools,
// so agent hosts can converse, pull reports, and log readings.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"glucomate",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("GlucoMate — a diabetes health companion with safety screening, personalized answers, and progress tracking."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_glucomate",
			mcp.WithDescription("Send a message to the diabetes companion on behalf of a patient and return the reply."),
			mcp.WithString("patient_id", mcp.Description("Stable patient identifier"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The patient's message"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("progress_report",
			mcp.WithDescription("Build the patient's progress report: check-ins, milestones, energy trend, and mood balance."),
			mcp.WithString("patient_id", mcp.Description("Stable patient identifier"), mcp.Required()),
		),
		mcpReport(deps),
	)

	s.AddTool(
		mcp.NewTool("log_glucose",
			mcp.WithDescription("Record a glucose reading in mg/dL for a patient."),
			mcp.WithString("patient_id", mcp.Description("Stable patient identifier"), mcp.Required()),
			mcp.WithNumber("value", mcp.Description("Glucose value in mg/dL"), mcp.Required()),
			mcp.WithString("meal_context", mcp.Description("Optional context, e.g. fasting or after lunch")),
		),
		mcpLogGlucose(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		patientID, err := req.RequireString("patient_id")
		if err != nil {
			return mcpError("patient_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Companion.Chat(ctx, patientID, message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(reply), nil
	}
}

func mcpReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		patientID, err := req.RequireString("patient_id")
		if err != nil {
			return mcpError("patient_id is required"), nil
		}

		report, err := deps.Companion.Report(ctx, patientID)
		if err != nil {
			return mcpError(fmt.Sprintf("report failed: %v", err)), nil
		}
		return mcpText(report), nil
	}
}

func mcpLogGlucose(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		patientID, err := req.RequireString("patient_id")
		if err != nil {
			return mcpError("patient_id is required"), nil
		}
		value := req.GetFloat("value", 0)
		if value < 10 || value > 900 {
			return mcpError("value must be a plausible mg/dL reading"), nil
		}
		mealContext := req.GetString("meal_context", "")

		ack, err := deps.Companion.LogReading(ctx, patientID, value, mealContext, "")
		if err != nil {
			return mcpError(fmt.Sprintf("logging reading failed: %v", err)), nil
		}
		return mcpText(ack), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
