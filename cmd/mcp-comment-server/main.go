// mcp-comment-server exposes the bot's tracked-comment update as an
// MCP tool over stdio, so external tooling can report progress into a
// PR comment without talking to the GitHub API directly.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	requiredEnv := []string{"GITHUB_TOKEN", "REPO_OWNER", "REPO_NAME", "BOT_COMMENT_ID"}
	for _, env := range requiredEnv {
		if os.Getenv(env) == "" {
			log.Fatalf("[MCP Comment Server] Missing required environment variable: %s", env)
		}
	}

	log.Printf("[MCP Comment Server] Repository: %s/%s, comment %s",
		os.Getenv("REPO_OWNER"), os.Getenv("REPO_NAME"), os.Getenv("BOT_COMMENT_ID"))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "layerbot-comment-server",
		Version: "v1.0.0",
	}, nil)

	tool := &mcp.Tool{
		Name:        "append_bot_comment",
		Description: "Append progress text to the bot's tracked PR comment",
	}
	mcp.AddTool(server, tool, HandleAppendComment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("[MCP Comment Server] Server error: %v", err)
	}
}
