package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	gh "github.com/google/go-github/v66/github"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stackforge/layerbot/internal/comment"
	"github.com/stackforge/layerbot/internal/command"
	"github.com/stackforge/layerbot/internal/github"
)

// AppendCommentParams is the input for the append_bot_comment tool.
type AppendCommentParams struct {
	Body string `json:"body" jsonschema:"Text to append to the tracked comment"`
}

// HandleAppendComment appends text to the comment identified by the
// BOT_COMMENT_ID environment variable, through the same guarded update
// pipeline the webhook handlers use: text that would itself read as a
// bot command is refused.
func HandleAppendComment(
	ctx context.Context,
	req *mcp.CallToolRequest,
	params AppendCommentParams,
) (*mcp.CallToolResult, any, error) {
	owner := os.Getenv("REPO_OWNER")
	repo := os.Getenv("REPO_NAME")
	commentIDStr := os.Getenv("BOT_COMMENT_ID")
	token := os.Getenv("GITHUB_TOKEN")
	prefix := os.Getenv("BOT_COMMAND_PREFIX")
	if prefix == "" {
		prefix = "bot:"
	}

	if params.Body == "" {
		return nil, nil, fmt.Errorf("body parameter is required")
	}

	commentID, err := strconv.ParseInt(commentIDStr, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid BOT_COMMENT_ID: %w", err)
	}

	store := github.NewCommentStore(gh.NewClient(nil).WithAuthToken(token), owner, repo)
	result := appendToComment(ctx, store, command.NewMatcher(prefix), commentID, params.Body)
	if result.IsError {
		return result, nil, nil
	}

	resultText := fmt.Sprintf(`{"success": true, "owner": %q, "repo": %q, "comment_id": %d, "body_length": %d}`,
		owner, repo, commentID, len(params.Body))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: resultText},
		},
	}, nil, nil
}

// appendToComment runs the guarded update pipeline: refuse bodies that
// would read as bot commands, then append with retries.
func appendToComment(ctx context.Context, store comment.Store, matcher *command.Matcher, id int64, body string) *mcp.CallToolResult {
	if len(matcher.Scan(body)) > 0 {
		return toolError("refusing update: body contains a bot command")
	}

	updater := comment.NewUpdater(store, comment.DefaultRetryPolicy, slog.Default())
	if err := updater.Append(ctx, id, body); err != nil {
		return toolError(fmt.Sprintf("Error: %v", err))
	}
	return &mcp.CallToolResult{}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
