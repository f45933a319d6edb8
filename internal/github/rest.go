package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

const defaultUserAgent = "rancher-rollback-action"

// NewRESTFactory returns a GitHub client factory backed by the go-github REST
// client. A non-empty baseURL targets a GitHub Enterprise instance; uploadURL
// defaults to baseURL.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(baseURL),
		uploadURL: strings.TrimSpace(uploadURL),
	}
}

// APIBaseURL derives the REST API base for a git host URL. github.com maps to
// the public API, signalled by an empty result; any other host is treated as
// GitHub Enterprise.
func APIBaseURL(hostURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(hostURL))
	if err != nil {
		return "", fmt.Errorf("parse host url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("host url %q must include scheme and host", hostURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "github.com" || host == "www.github.com" || host == "api.github.com" {
		return "", nil
	}
	return fmt.Sprintf("%s://%s/api/v3/", parsed.Scheme, parsed.Host), nil
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
}

type restClient struct {
	client *github.Client
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	var ghClient *github.Client
	if f.baseURL != "" {
		baseURLNormalized, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		uploadURL := f.uploadURL
		if uploadURL == "" {
			uploadURL = f.baseURL
		}
		uploadURLNormalized, err := normalizeGitHubURL(uploadURL)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = github.NewClient(tc).WithEnterpriseURLs(baseURLNormalized, uploadURLNormalized)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	} else {
		ghClient = github.NewClient(tc)
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	return &restClient{client: ghClient}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func (c *restClient) EnsureBranchExists(ctx context.Context, owner, repo, branch string) error {
	_, resp, err := c.client.Repositories.GetBranch(ctx, owner, repo, branch, false)
	if err != nil {
		if isNotFound(resp, err) {
			return ErrBranchNotFound
		}
		err = classifyGitHubError(err)
		return fmt.Errorf("get branch %s: %w", branch, err)
	}
	return nil
}

// CommitExistsOnBranch reports whether commitSHA is reachable from branch. An
// unknown commit is reported as false rather than an error.
func (c *restClient) CommitExistsOnBranch(ctx context.Context, owner, repo, commitSHA, branch string) (bool, error) {
	comp, resp, err := c.client.Repositories.CompareCommits(ctx, owner, repo, branch, commitSHA, nil)
	if err != nil {
		if isNotFound(resp, err) {
			return false, nil
		}
		err = classifyGitHubError(err)
		return false, fmt.Errorf("compare commits %s..%s: %w", branch, commitSHA, err)
	}

	switch comp.GetStatus() {
	case "behind", "identical":
		return true, nil
	default:
		return false, nil
	}
}

// CanPush reports whether the authenticated token has push access to the
// repository. Installation tokens, including the Actions GITHUB_TOKEN, get a
// repository payload without a permissions object; access is unknown then and
// CanPush reports true, leaving the push itself to enforce it.
func (c *restClient) CanPush(ctx context.Context, owner, repo string) (bool, error) {
	repository, _, err := c.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		err = classifyGitHubError(err)
		return false, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}

	permissions := repository.Permissions
	if permissions == nil {
		return true, nil
	}
	return permissions["push"] || permissions["admin"], nil
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		if githubErr.Response != nil && githubErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response != nil {
			code := respErr.Response.StatusCode
			if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
				return true
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	return false
}
