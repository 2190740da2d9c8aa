package bot

import (
	"context"

	"github.com/stackforge/layerbot/internal/github"
)

// appGitHub is the production GitHubService, minting an
// installation-scoped client per repository.
type appGitHub struct {
	auth *github.AppAuth
}

// NewGitHubService wraps GitHub App credentials as a GitHubService.
func NewGitHubService(auth *github.AppAuth) GitHubService {
	return &appGitHub{auth: auth}
}

func (g *appGitHub) NewCommentStore(ctx context.Context, owner, repo string) (CommentStore, error) {
	client, err := g.auth.NewClient(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return github.NewCommentStore(client, owner, repo), nil
}

func (g *appGitHub) HasBuildPermission(ctx context.Context, owner, repo, user string) (bool, error) {
	client, err := g.auth.NewClient(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	return github.CheckWritePermission(ctx, client, owner, repo, user)
}
