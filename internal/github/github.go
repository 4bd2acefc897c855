// Package github adapts spec.md §4.4's GitHub operations onto go-github:
// remote branch + open-PR listing, default branch lookup, branch deletion,
// PR creation, collaborator permission lookup, and GitHub App
// installation-token minting. Non-2xx responses are logged and downgraded
// to benign zero values everywhere except InstallationToken, which a
// caller cannot proceed without.
package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

// RemoteBranch mirrors spec.md §3's "Remote branch record".
type RemoteBranch struct {
	Name          string
	DefaultBranch bool
	PullRequest   string // open PR URL, or empty
}

// Permissions mirrors spec.md §4.4's get-project-permissions result.
type Permissions struct {
	Level string // "admin" | "write" | "read" | "" (absent)
}

// Adapter is the GitHub REST adapter. LocalMode short-circuits
// InstallationToken to a configured personal access token.
type Adapter struct {
	LocalMode      bool
	PersonalToken  string
	AppID          int64
	PrivateKeyPath string

	httpClient *http.Client // override for tests
	baseURL    *url.URL     // override for tests
}

// New creates an Adapter. privateKeyPath may be empty in local mode.
func New(localMode bool, personalToken string, appID int64, privateKeyPath string) *Adapter {
	return &Adapter{
		LocalMode:      localMode,
		PersonalToken:  personalToken,
		AppID:          appID,
		PrivateKeyPath: privateKeyPath,
	}
}

func (a *Adapter) clientWithToken(token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	var tc *http.Client
	if a.httpClient != nil {
		tc = a.httpClient
	} else {
		tc = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(tc)
	if a.baseURL != nil {
		client.BaseURL = a.baseURL
	}
	return client
}

// GetRemoteBranches lists branches, annotating any with an open PR, capped
// at 100 results (spec.md §4.4).
func (a *Adapter) GetRemoteBranches(ctx context.Context, org, repo, token string) ([]RemoteBranch, error) {
	client := a.clientWithToken(token)

	branches, resp, err := client.Repositories.ListBranches(ctx, org, repo, &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		logUpstreamError(resp, err, "list branches")
		return nil, nil
	}

	prs, resp, err := client.PullRequests.List(ctx, org, repo, &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		logUpstreamError(resp, err, "list open pulls")
		prs = nil
	}

	prByBranch := map[string]string{}
	for _, pr := range prs {
		if pr.Head != nil && pr.Head.Ref != nil && pr.HTMLURL != nil {
			prByBranch[pr.Head.GetRef()] = pr.GetHTMLURL()
		}
	}

	defaultBranch, _ := a.GetDefaultBranch(ctx, org, repo, token)

	var result []RemoteBranch
	for _, b := range branches {
		name := b.GetName()
		result = append(result, RemoteBranch{
			Name:          name,
			DefaultBranch: name == defaultBranch,
			PullRequest:   prByBranch[name],
		})
	}
	return result, nil
}

// GetDefaultBranch returns the repository's default branch name.
func (a *Adapter) GetDefaultBranch(ctx context.Context, org, repo, token string) (string, error) {
	client := a.clientWithToken(token)
	r, resp, err := client.Repositories.Get(ctx, org, repo)
	if err != nil {
		logUpstreamError(resp, err, "get repository")
		return "", nil
	}
	return r.GetDefaultBranch(), nil
}

// DeleteBranch deletes a remote branch, returning true on 2xx.
func (a *Adapter) DeleteBranch(ctx context.Context, org, repo, branch, token string) (bool, error) {
	client := a.clientWithToken(token)
	resp, err := client.Git.DeleteRef(ctx, org, repo, "heads/"+branch)
	if err != nil {
		logUpstreamError(resp, err, "delete branch")
		return false, nil
	}
	return true, nil
}

// CreatePull creates a pull request, returning its URL, or "" on failure.
func (a *Adapter) CreatePull(ctx context.Context, org, repo, from, to, title string, draft bool, token string) (string, error) {
	client := a.clientWithToken(token)
	pr, resp, err := client.PullRequests.Create(ctx, org, repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(from),
		Base:  github.Ptr(to),
		Draft: github.Ptr(draft),
	})
	if err != nil {
		logUpstreamError(resp, err, "create pull request")
		return "", nil
	}
	return pr.GetHTMLURL(), nil
}

// GetProjectPermissions looks up login's permission level on org/repo.
func (a *Adapter) GetProjectPermissions(ctx context.Context, org, repo, login, token string) (Permissions, error) {
	client := a.clientWithToken(token)
	perm, resp, err := client.Repositories.GetPermissionLevel(ctx, org, repo, login)
	if err != nil {
		logUpstreamError(resp, err, "get collaborator permission")
		return Permissions{}, nil
	}
	return Permissions{Level: perm.GetPermission()}, nil
}

// InstallationToken mints a short-lived GitHub App installation token for
// the installation whose account login matches org. In local mode it
// returns the configured personal access token instead. Unlike every other
// adapter method, failures here are returned as errors: callers cannot
// proceed without a token (spec.md §4.4, §7).
func (a *Adapter) InstallationToken(ctx context.Context, org string) (string, error) {
	if a.LocalMode {
		return a.PersonalToken, nil
	}

	appJWT, err := a.signAppJWT()
	if err != nil {
		return "", fmt.Errorf("installation-token: signing app jwt: %w", err)
	}

	client := a.clientWithToken(appJWT)
	installations, resp, err := client.Apps.ListInstallations(ctx, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("installation-token: listing installations: %w", describeResponse(resp, err))
	}

	var installationID int64
	for _, inst := range installations {
		if inst.Account != nil && inst.Account.GetLogin() == org {
			installationID = inst.GetID()
			break
		}
	}
	if installationID == 0 {
		return "", fmt.Errorf("installation-token: no installation found for org %q", org)
	}

	token, resp, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("installation-token: minting token: %w", describeResponse(resp, err))
	}
	return token.GetToken(), nil
}

// signAppJWT builds and signs the RS256 JWT GitHub's App authentication
// flow requires: iss=<app-id>, iat=now, exp=now+10min (spec.md §6).
func (a *Adapter) signAppJWT() (string, error) {
	keyData, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}
	key, err := parseRSAPrivateKey(keyData)
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", a.AppID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

func parseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func logUpstreamError(resp *github.Response, err error, op string) {
	if resp != nil && resp.Response != nil {
		log.Printf("[github] %s failed: %v (documentation_url=%s)", op, err, documentationURL(err))
		return
	}
	log.Printf("[github] %s failed: %v", op, err)
}

func describeResponse(resp *github.Response, err error) error {
	if resp != nil && resp.Response != nil {
		return fmt.Errorf("%w (documentation_url=%s)", err, documentationURL(err))
	}
	return err
}

func documentationURL(err error) string {
	if ge, ok := err.(*github.ErrorResponse); ok {
		return ge.DocumentationURL
	}
	return ""
}
