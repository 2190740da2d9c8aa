// Package github implements the remote collaborators the bot consumes:
// GitHub App authentication, the comment store and permission checks.
package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v66/github"
)

// AppAuth holds GitHub App credentials and mints installation-scoped
// API clients from them.
type AppAuth struct {
	AppID      string
	PrivateKey string
}

// GenerateJWT creates the short-lived app JWT used to call the
// installation endpoints.
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signedToken, nil
}

// InstallationToken is a GitHub App installation access token.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// GetInstallationToken exchanges the app JWT for an installation
// access token scoped to the repository's installation.
func (a *AppAuth) GetInstallationToken(ctx context.Context, owner, repo string) (*InstallationToken, error) {
	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}

	appClient := gh.NewClient(nil).WithAuthToken(jwtToken)

	installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to find installation for %s/%s: %w", owner, repo, err)
	}

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installation.GetID(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token: %w", err)
	}

	return &InstallationToken{
		Token:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// NewClient builds a go-github client authenticated as the
// repository's installation.
func (a *AppAuth) NewClient(ctx context.Context, owner, repo string) (*gh.Client, error) {
	token, err := a.GetInstallationToken(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return gh.NewClient(nil).WithAuthToken(token.Token), nil
}
