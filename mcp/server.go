package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zhubert/handoff/config"
	"github.com/zhubert/handoff/interaction"
	"github.com/zhubert/handoff/logger"
)

// Version is the server version reported during MCP initialization.
const Version = "1.0.0"

// PromptArgs is the input schema shared by the prompt and prompt_sync tools.
type PromptArgs struct {
	Message           string   `json:"message" jsonschema:"the question or request to show the user"`
	PredefinedOptions []string `json:"predefined_options,omitempty" jsonschema:"optional choices to offer alongside free-form input"`
	IsMarkdown        *bool    `json:"is_markdown,omitempty" jsonschema:"render the message as markdown (default true)"`
	ProjectRootPath   string   `json:"project_root_path,omitempty" jsonschema:"absolute path of the project the question concerns"`
}

// GetResultArgs is the input schema for the get_result tool.
type GetResultArgs struct {
	TaskID string `json:"task_id" jsonschema:"the task id returned by prompt"`
}

// Server wires the interaction coordinator to MCP tools.
type Server struct {
	coord      *interaction.Coordinator
	loadConfig func() (*config.Config, error)
	log        *slog.Logger
	sdk        *sdk.Server
}

// NewServer builds the MCP server and registers its tools.
func NewServer(coord *interaction.Coordinator) *Server {
	s := &Server{
		coord:      coord,
		loadConfig: config.Load,
		log:        logger.WithComponent("mcp"),
	}

	s.sdk = sdk.NewServer(&sdk.Implementation{Name: "handoff", Version: Version}, nil)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name: config.ToolPrompt,
		Description: "Open an interactive dialog on the user's desktop and return a task id " +
			"immediately. The user answers in their own time; call get_result with the " +
			"task id to collect the response. If a dialog is already open, returns its " +
			"task id instead of opening a second one.",
	}, s.handlePrompt)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name: config.ToolPromptSync,
		Description: "Open an interactive dialog on the user's desktop and wait for the " +
			"response in one call. If the wait budget runs out before the user answers, " +
			"returns PENDING with a task id to poll via get_result.",
	}, s.handlePromptSync)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name: config.ToolGetResult,
		Description: "Collect the user's response for a task started by prompt. Waits up " +
			"to the configured budget, then returns PENDING if the user still has not " +
			"answered. The response is returned exactly once.",
	}, s.handleGetResult)

	return s
}

// Run serves MCP over stdio until the context is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("serving MCP over stdio")
	return s.sdk.Run(ctx, &sdk.StdioTransport{})
}

// toolEnabled checks the config gate for a tool. Unknown tools default to
// enabled; config is re-read on every call so edits apply without a restart.
func (s *Server) toolEnabled(name string) bool {
	cfg, err := s.loadConfig()
	if err != nil {
		s.log.Warn("failed to load config for tool gating", "tool", name, "error", err)
		return true
	}
	return cfg.ToolEnabled(name)
}

func disabledResult(name string) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: true,
		Content: []sdk.Content{&sdk.TextContent{
			Text: fmt.Sprintf("The %s tool is disabled in the handoff configuration.", name),
		}},
	}
}

// buildRequest converts tool arguments to an interaction request. Markdown
// rendering defaults to on.
func buildRequest(args PromptArgs) interaction.Request {
	isMarkdown := true
	if args.IsMarkdown != nil {
		isMarkdown = *args.IsMarkdown
	}
	return interaction.Request{
		Message:           args.Message,
		PredefinedOptions: args.PredefinedOptions,
		IsMarkdown:        isMarkdown,
		ProjectRootPath:   args.ProjectRootPath,
	}
}

func (s *Server) handlePrompt(ctx context.Context, req *sdk.CallToolRequest, args PromptArgs) (*sdk.CallToolResult, any, error) {
	if !s.toolEnabled(config.ToolPrompt) {
		return disabledResult(config.ToolPrompt), nil, nil
	}

	outcome, err := s.coord.Start(ctx, buildRequest(args))
	if err != nil {
		return nil, nil, err
	}
	return s.renderOutcome(outcome), nil, nil
}

func (s *Server) handlePromptSync(ctx context.Context, req *sdk.CallToolRequest, args PromptArgs) (*sdk.CallToolResult, any, error) {
	if !s.toolEnabled(config.ToolPromptSync) {
		return disabledResult(config.ToolPromptSync), nil, nil
	}

	outcome, err := s.coord.Sync(ctx, buildRequest(args))
	if err != nil {
		return nil, nil, err
	}
	return s.renderOutcome(outcome), nil, nil
}

func (s *Server) handleGetResult(ctx context.Context, req *sdk.CallToolRequest, args GetResultArgs) (*sdk.CallToolResult, any, error) {
	if !s.toolEnabled(config.ToolGetResult) {
		return disabledResult(config.ToolGetResult), nil, nil
	}
	if args.TaskID == "" {
		return nil, nil, fmt.Errorf("task_id must not be empty")
	}

	outcome, err := s.coord.Poll(ctx, args.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return s.renderOutcome(outcome), nil, nil
}

// renderOutcome converts a coordinator outcome into tool result content. Soft
// conditions (pending, abandoned, cancelled) become guidance text, not
// protocol errors: the calling agent needs instructions, not a stack trace.
func (s *Server) renderOutcome(o *interaction.Outcome) *sdk.CallToolResult {
	switch o.Kind {
	case interaction.OutcomeStarted:
		return textResult(fmt.Sprintf(
			"Interactive dialog opened. Task ID: %s\n\n"+
				"The user is being asked now. Call get_result with this task_id "+
				"exactly once to collect the response. Do NOT call it repeatedly. "+
				"You may continue other work in the meantime.",
			o.TaskID))

	case interaction.OutcomeExisting:
		return textResult(fmt.Sprintf(
			"An interactive dialog is already open. Task ID: %s\n\n"+
				"Only one dialog can be open at a time. Call get_result with this "+
				"task_id exactly once to collect the pending response before "+
				"asking anything new.",
			o.TaskID))

	case interaction.OutcomePending:
		budget := "no limit"
		if o.MaxWaitMS > 0 {
			budget = fmt.Sprintf("%d ms", o.MaxWaitMS)
		}
		return textResult(fmt.Sprintf(
			"Status: PENDING. Task ID: %s\n\n"+
				"The user has not responded yet (waited %s, budget %s). Do NOT "+
				"call get_result again immediately. Wait until the user says "+
				"they have responded, then call it once with this task_id.",
			o.TaskID, o.Waited.Round(time.Millisecond), budget))

	case interaction.OutcomeAbandoned:
		// Not a protocol error: the agent has to relay the log paths to the
		// human, which it can only do with a normal result.
		return textResult(fmt.Sprintf(
			"The dialog closed without a response (task %s). The user may have "+
				"dismissed the window, or the UI crashed.\n\n"+
				"UI log: %s\nServer log: %s\n\n"+
				"Share these log paths with the user so they can investigate, and "+
				"open a new dialog with prompt if you still need an answer.",
			o.TaskID, o.UILogFile, o.ServerLogFile))

	case interaction.OutcomeCancelled, interaction.OutcomeAnswered:
		return &sdk.CallToolResult{Content: partsToContent(o.Parts)}
	}

	return textResult("Unexpected outcome.")
}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

// partsToContent maps interaction parts to MCP content blocks.
func partsToContent(parts []interaction.Part) []sdk.Content {
	content := make([]sdk.Content, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			content = append(content, &sdk.ImageContent{Data: p.ImageData, MIMEType: p.MIMEType})
		} else {
			content = append(content, &sdk.TextContent{Text: p.Text})
		}
	}
	return content
}
