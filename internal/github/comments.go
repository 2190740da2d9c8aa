package github

import (
	"context"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v66/github"

	"github.com/stackforge/layerbot/internal/comment"
)

// CommentStore adapts the go-github Issues API to the comment.Store
// interface for one repository.
type CommentStore struct {
	client *gh.Client
	owner  string
	repo   string
}

// NewCommentStore creates a comment store for owner/repo.
func NewCommentStore(client *gh.Client, owner, repo string) *CommentStore {
	return &CommentStore{client: client, owner: owner, repo: repo}
}

// Get fetches a comment by id. A 404 maps to (nil, nil): the comment
// was deleted between discovery and update, which is a benign race.
func (s *CommentStore) Get(ctx context.Context, id int64) (*comment.Comment, error) {
	cmnt, resp, err := s.client.Issues.GetComment(ctx, s.owner, s.repo, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get comment %d: %w", id, err)
	}

	return &comment.Comment{
		ID:    cmnt.GetID(),
		Body:  cmnt.GetBody(),
		Login: cmnt.GetUser().GetLogin(),
	}, nil
}

// Edit overwrites the comment body.
func (s *CommentStore) Edit(ctx context.Context, id int64, body string) error {
	_, _, err := s.client.Issues.EditComment(ctx, s.owner, s.repo, id, &gh.IssueComment{
		Body: gh.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to edit comment %d: %w", id, err)
	}
	return nil
}

// Create posts a new comment on the issue or PR and returns its id.
func (s *CommentStore) Create(ctx context.Context, number int, body string) (int64, error) {
	cmnt, _, err := s.client.Issues.CreateComment(ctx, s.owner, s.repo, number, &gh.IssueComment{
		Body: gh.String(body),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create comment on #%d: %w", number, err)
	}
	return cmnt.GetID(), nil
}
