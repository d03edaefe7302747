package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"maestro/internal/applications"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with tools over the application tracker
func NewServer(svc *applications.Service) *server.MCPServer {
	s := server.NewMCPServer(
		"Maestro",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Tool: list_applications - Search and filter applications
	s.AddTool(
		mcp.NewTool("list_applications",
			mcp.WithDescription("List tracked internship applications. Optionally filter by a case-insensitive text query over company, position and status, and by status."),
			mcp.WithString("query",
				mcp.Description("Optional: substring to match against company, position or status"),
			),
			mcp.WithString("status",
				mcp.Description("Optional: one of applied, interviewing, offered, rejected, or 'all' (default)"),
			),
		),
		handleListApplications(svc),
	)

	// Tool: status_counts - Applications per status
	s.AddTool(
		mcp.NewTool("status_counts",
			mcp.WithDescription("Count applications per status (applied, interviewing, offered, rejected). Unknown statuses are not counted."),
		),
		handleStatusCounts(svc),
	)

	// Tool: monthly_counts - Applications per month
	s.AddTool(
		mcp.NewTool("monthly_counts",
			mcp.WithDescription("Count applications per month of the applied date, in calendar order. Months without applications are omitted."),
		),
		handleMonthlyCounts(svc),
	)

	// Tool: application_flow - Estimated stage funnel
	s.AddTool(
		mcp.NewTool("application_flow",
			mcp.WithDescription("Estimate how applications moved between stages (applied, interviewing, offered, rejected). Rejections are split between stages heuristically, so edge weights are estimates."),
		),
		handleApplicationFlow(svc),
	)

	// Tool: summary - Headline numbers
	s.AddTool(
		mcp.NewTool("summary",
			mcp.WithDescription("Get the dashboard summary: total, interviewing, offered, rejected, pending and response rate in percent."),
		),
		handleSummary(svc),
	)

	// Tool: add_application - Record a new application
	s.AddTool(
		mcp.NewTool("add_application",
			mcp.WithDescription("Record a new internship application. Status defaults to applied and the applied date to today."),
			mcp.WithString("company",
				mcp.Required(),
				mcp.Description("Company name"),
			),
			mcp.WithString("position",
				mcp.Required(),
				mcp.Description("Position title"),
			),
			mcp.WithString("status",
				mcp.Description("Optional: applied, interviewing, offered or rejected"),
			),
			mcp.WithString("applied_date",
				mcp.Description("Optional: date applied (YYYY-MM-DD)"),
			),
			mcp.WithString("location",
				mcp.Description("Optional: job location"),
			),
			mcp.WithString("salary",
				mcp.Description("Optional: advertised salary or stipend"),
			),
			mcp.WithString("job_url",
				mcp.Description("Optional: link to the job posting"),
			),
			mcp.WithString("notes",
				mcp.Description("Optional: markdown notes"),
			),
		),
		handleAddApplication(svc),
	)

	return s
}

func textResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func handleListApplications(svc *applications.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		records, err := svc.List(ctx, req.GetString("query", ""), req.GetString("status", applications.StatusAll))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list applications: %v", err)), nil
		}
		return textResult(records), nil
	}
}

// snapshotTool runs one derived view over a fresh snapshot
func snapshotTool(svc *applications.Service, pick func(*applications.DashboardData) any) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := svc.Dashboard(ctx, "", applications.StatusAll)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load applications: %v", err)), nil
		}
		return textResult(pick(data)), nil
	}
}

func handleStatusCounts(svc *applications.Service) server.ToolHandlerFunc {
	return snapshotTool(svc, func(d *applications.DashboardData) any { return d.Counts })
}

func handleMonthlyCounts(svc *applications.Service) server.ToolHandlerFunc {
	return snapshotTool(svc, func(d *applications.DashboardData) any { return d.Months })
}

func handleApplicationFlow(svc *applications.Service) server.ToolHandlerFunc {
	return snapshotTool(svc, func(d *applications.DashboardData) any { return d.Flow })
}

func handleSummary(svc *applications.Service) server.ToolHandlerFunc {
	return snapshotTool(svc, func(d *applications.DashboardData) any { return d.Summary })
}

func handleAddApplication(svc *applications.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		company, err := req.RequireString("company")
		if err != nil {
			return mcp.NewToolResultError("company is required"), nil
		}
		position, err := req.RequireString("position")
		if err != nil {
			return mcp.NewToolResultError("position is required"), nil
		}

		rec, err := svc.Create(ctx, applications.CreateInput{
			Company:     company,
			Position:    position,
			Status:      req.GetString("status", ""),
			AppliedDate: req.GetString("applied_date", ""),
			Location:    req.GetString("location", ""),
			Salary:      req.GetString("salary", ""),
			JobURL:      req.GetString("job_url", ""),
			Notes:       req.GetString("notes", ""),
		})
		var invalid *applications.ValidationError
		if errors.As(err, &invalid) {
			return mcp.NewToolResultError(invalid.Error()), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to add application: %v", err)), nil
		}
		return textResult(rec), nil
	}
}
