package main

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stackforge/layerbot/internal/command"
	"github.com/stackforge/layerbot/internal/comment"
)

type fakeStore struct {
	comments map[int64]*comment.Comment
	editErr  error
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*comment.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) Edit(ctx context.Context, id int64, body string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.comments[id].Body = body
	return nil
}

func TestAppendToComment(t *testing.T) {
	store := &fakeStore{comments: map[int64]*comment.Comment{
		77: {ID: 77, Body: "status:"},
	}}

	result := appendToComment(context.Background(), store, command.NewMatcher("bot:"), 77, "\n- build finished")
	if result.IsError {
		t.Fatalf("append failed: %+v", result.Content)
	}
	if got := store.comments[77].Body; got != "status:\n- build finished" {
		t.Errorf("body = %q", got)
	}
}

func TestAppendToCommentRefusesCommands(t *testing.T) {
	store := &fakeStore{comments: map[int64]*comment.Comment{
		77: {ID: 77, Body: "status:"},
	}}

	result := appendToComment(context.Background(), store, command.NewMatcher("bot:"), 77, "done\nbot: deploy")
	if !result.IsError {
		t.Fatal("append accepted a body containing a bot command")
	}
	if store.comments[77].Body != "status:" {
		t.Error("comment was updated despite the refused body")
	}
}

func TestAppendToCommentMissingCommentIsBenign(t *testing.T) {
	store := &fakeStore{comments: map[int64]*comment.Comment{}}

	result := appendToComment(context.Background(), store, command.NewMatcher("bot:"), 77, "text")
	if result.IsError {
		t.Errorf("a deleted comment must not be a tool error: %+v", result.Content)
	}
}

func TestAppendToCommentReportsStoreErrors(t *testing.T) {
	store := &fakeStore{
		comments: map[int64]*comment.Comment{77: {ID: 77, Body: "status:"}},
		editErr:  errors.New("remote error"),
	}

	result := appendToComment(context.Background(), store, command.NewMatcher("bot:"), 77, "text")
	if !result.IsError {
		t.Fatal("store failure not surfaced as a tool error")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok || text.Text == "" {
		t.Errorf("error content = %+v", result.Content)
	}
}

func TestHandleAppendCommentValidation(t *testing.T) {
	t.Setenv("REPO_OWNER", "acme")
	t.Setenv("REPO_NAME", "stack")
	t.Setenv("GITHUB_TOKEN", "token")

	t.Setenv("BOT_COMMENT_ID", "77")
	if _, _, err := HandleAppendComment(context.Background(), nil, AppendCommentParams{}); err == nil {
		t.Error("empty body accepted")
	}

	t.Setenv("BOT_COMMENT_ID", "not-a-number")
	if _, _, err := HandleAppendComment(context.Background(), nil, AppendCommentParams{Body: "x"}); err == nil {
		t.Error("malformed BOT_COMMENT_ID accepted")
	}
}
