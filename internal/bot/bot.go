// Package bot implements the event handlers: reacting to comment
// commands, PR labels and app installation events.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/stackforge/layerbot/internal/command"
	"github.com/stackforge/layerbot/internal/comment"
	"github.com/stackforge/layerbot/internal/config"
	"github.com/stackforge/layerbot/internal/scheduler"
	"github.com/stackforge/layerbot/internal/webhook"
)

// Labels that trigger build and deploy paths on pull requests.
const (
	LabelBuild  = "bot:build"
	LabelDeploy = "bot:deploy"
)

// CommentStore is the per-repository remote comment store.
type CommentStore interface {
	comment.Store
	Create(ctx context.Context, number int, body string) (int64, error)
}

// GitHubService creates repository-scoped GitHub collaborators.
type GitHubService interface {
	NewCommentStore(ctx context.Context, owner, repo string) (CommentStore, error)
	HasBuildPermission(ctx context.Context, owner, repo, user string) (bool, error)
}

// BuildDispatcher submits build and deploy jobs to the external job
// system. The bot invokes it; it never interprets what a build does.
type BuildDispatcher interface {
	SubmitBuild(ctx context.Context, repo string, prNumber int, sender string, targets []scheduler.Target) error
	DeployArtifacts(ctx context.Context, repo string, prNumber int, sender string) error
}

// Bot holds the collaborators the event handlers need. All state is
// per-event; the Bot itself is safe for concurrent dispatch.
type Bot struct {
	cfg     *config.Config
	targets *config.Targets
	matcher *command.Matcher
	github  GitHubService
	builds  BuildDispatcher
	policy  comment.RetryPolicy
	logger  *slog.Logger
}

// New creates a bot with the given collaborators.
func New(cfg *config.Config, targets *config.Targets, github GitHubService, builds BuildDispatcher, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:     cfg,
		targets: targets,
		matcher: command.NewMatcher(cfg.CommandPrefix),
		github:  github,
		builds:  builds,
		policy:  comment.RetryPolicy{MaxAttempts: cfg.UpdateMaxAttempts},
		logger:  logger.With("component", "bot"),
	}
}

// RegisterRoutes installs the bot's handlers into the router.
func (b *Bot) RegisterRoutes(r *webhook.Router) {
	r.Register("issue_comment", "created", b.handleIssueComment)
	r.Register("issue_comment", "edited", b.handleIssueComment)
	r.Register("pull_request", "opened", b.handlePullRequestOpened)
	r.RegisterLabeled("pull_request", "labeled", LabelBuild, b.handleBuildLabel)
	r.RegisterLabeled("pull_request", "labeled", LabelDeploy, b.handleDeployLabel)
	r.Register("installation", "", b.handleInstallation)
}

// handleIssueComment reacts to comments created or edited on a PR.
// Only text added by this event is scanned for commands; recognized
// commands are acknowledged by appending a receipt to the comment.
func (b *Bot) handleIssueComment(ctx context.Context, evt *webhook.Event) error {
	event, err := decode[webhook.IssueCommentEvent](evt.Payload)
	if err != nil {
		return err
	}

	b.logger.Info("comment event",
		"issue", event.Issue.URL,
		"owner", event.Comment.User.Login,
		"action", event.Action,
		"sender", event.Sender.Login)

	oldBody := ""
	if event.Action == comment.ActionEdited && event.Changes != nil {
		oldBody = event.Changes.Body.From
	}
	diff := comment.Diff(event.Action, oldBody, event.Comment.Body)

	var update strings.Builder
	for _, token := range b.matcher.Scan(diff) {
		b.logger.Info("found bot command", "command", token.Normalized)
		fmt.Fprintf(&update, "\n- received bot command `%s` from `%s`",
			token.Normalized, event.Sender.Login)
	}

	if update.Len() == 0 {
		b.logger.Info("update to comment is empty")
		return nil
	}

	if b.updateContainsCommand(update.String()) {
		b.logger.Warn("update is considered to contain a bot command, not updating PR comment",
			"update", update.String())
		return nil
	}

	owner, repo := splitRepo(event.Repository.FullName)
	store, err := b.github.NewCommentStore(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("failed to create comment store for %s: %w", event.Repository.FullName, err)
	}

	updater := comment.NewUpdater(store, b.policy, b.logger)
	return updater.Append(ctx, event.Comment.ID, update.String())
}

// updateContainsCommand is the self-command guard: the bot must never
// post text it would itself read as a command in a later diff.
func (b *Bot) updateContainsCommand(update string) bool {
	return len(b.matcher.Scan(update)) > 0
}

// handleBuildLabel submits build jobs for every configured target when
// the bot:build label is added by a sender with build permission.
func (b *Bot) handleBuildLabel(ctx context.Context, evt *webhook.Event) error {
	event, err := decode[webhook.PullRequestEvent](evt.Payload)
	if err != nil {
		return err
	}

	owner, repo := splitRepo(event.Repository.FullName)
	ok, err := b.github.HasBuildPermission(ctx, owner, repo, event.Sender.Login)
	if err != nil {
		return fmt.Errorf("failed to check build permission for %s: %w", event.Sender.Login, err)
	}
	if !ok {
		b.logger.Info("sender lacks build permission, not submitting builds",
			"sender", event.Sender.Login, "repo", event.Repository.FullName)
		return nil
	}

	targets := b.buildTargets()
	b.logger.Info("submitting build jobs",
		"repo", event.Repository.FullName,
		"pr", event.PullRequest.Number,
		"targets", len(targets))

	return b.builds.SubmitBuild(ctx, event.Repository.FullName, event.PullRequest.Number, event.Sender.Login, targets)
}

// handleDeployLabel deploys the PR's built artifacts when the
// bot:deploy label is added.
func (b *Bot) handleDeployLabel(ctx context.Context, evt *webhook.Event) error {
	event, err := decode[webhook.PullRequestEvent](evt.Payload)
	if err != nil {
		return err
	}

	b.logger.Info("deploying built artifacts",
		"repo", event.Repository.FullName,
		"pr", event.PullRequest.Number)

	return b.builds.DeployArtifacts(ctx, event.Repository.FullName, event.PullRequest.Number, event.Sender.Login)
}

// handlePullRequestOpened posts a comment listing the build targets
// this instance is configured for.
func (b *Bot) handlePullRequestOpened(ctx context.Context, evt *webhook.Event) error {
	event, err := decode[webhook.PullRequestEvent](evt.Payload)
	if err != nil {
		return err
	}

	body := b.targetsComment()
	b.logger.Info("PR opened, posting configured targets",
		"repo", event.Repository.FullName, "pr", event.PullRequest.Number)

	owner, repo := splitRepo(event.Repository.FullName)
	store, err := b.github.NewCommentStore(ctx, owner, repo)
	if err != nil {
		return fmt.Errorf("failed to create comment store for %s: %w", event.Repository.FullName, err)
	}

	if _, err := store.Create(ctx, event.PullRequest.Number, body); err != nil {
		return err
	}
	return nil
}

// handleInstallation only records app (un)installations.
func (b *Bot) handleInstallation(ctx context.Context, evt *webhook.Event) error {
	event, err := decode[webhook.InstallationEvent](evt.Payload)
	if err != nil {
		return err
	}
	b.logger.Info("app installation event",
		"sender", event.Sender.Login, "action", event.Action)
	return nil
}

// buildTargets flattens the configured repo_target_map, sorted for
// stable job ordering.
func (b *Bot) buildTargets() []scheduler.Target {
	archs := make([]string, 0, len(b.targets.RepoTargetMap))
	for arch := range b.targets.RepoTargetMap {
		archs = append(archs, arch)
	}
	sort.Strings(archs)

	var targets []scheduler.Target
	for _, arch := range archs {
		for _, repoID := range b.targets.RepoTargetMap[arch] {
			targets = append(targets, scheduler.Target{Arch: arch, RepoID: repoID})
		}
	}
	return targets
}

// targetsComment renders the "configured to build" comment. The first
// path component of each arch names the OS and is dropped for display.
func (b *Bot) targetsComment() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Instance `%s` is configured to build:", b.cfg.AppName)
	for _, target := range b.buildTargets() {
		arch := target.Arch
		if parts := strings.SplitN(arch, "/", 2); len(parts) == 2 {
			arch = parts[1]
		}
		fmt.Fprintf(&sb, "\n- arch `%s` for repo `%s`", arch, target.RepoID)
	}
	return sb.String()
}

func decode[T any](payload []byte) (*T, error) {
	event := new(T)
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return event, nil
}

func splitRepo(full string) (string, string) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return full, ""
}
