package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v66/github"
)

// CheckWritePermission reports whether the user has write or admin
// permission on the repository. Build submissions require it.
func CheckWritePermission(ctx context.Context, client *gh.Client, owner, repo, user string) (bool, error) {
	perm, _, err := client.Repositories.GetPermissionLevel(ctx, owner, repo, user)
	if err != nil {
		return false, fmt.Errorf("failed to get permission level: %w", err)
	}

	permission := perm.GetPermission()
	return permission == "write" || permission == "admin", nil
}
