package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/ports/adapter"
)

var _ adapter.RepoFetcher = (*Client)(nil)

const (
	maxSampledFiles   = 60
	maxReadmeExcerpt  = 2000
	defaultAPIBase    = "https://api.github.com"
	defaultHTTPWindow = 20 * time.Second
)

// Client fetches repository snapshots through the GitHub REST API.
// Secondary rate limits and 5xx responses come back transient so the
// worker retries them; an unknown repository is a plain not-found.
type Client struct {
	base   string
	token  string
	client *http.Client
}

func NewClient(apiBase, token string) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		base:   strings.TrimRight(apiBase, "/"),
		token:  token,
		client: &http.Client{Timeout: defaultHTTPWindow},
	}
}

func (c *Client) Fetch(ctx context.Context, repoURL string) (*adapter.RepoSnapshot, error) {
	owner, repo, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	var meta struct {
		FullName      string `json:"full_name"`
		Description   string `json:"description"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), &meta); err != nil {
		return nil, err
	}

	snap := &adapter.RepoSnapshot{
		FullName:      meta.FullName,
		Description:   meta.Description,
		DefaultBranch: meta.DefaultBranch,
	}

	// The remaining requests enrich the snapshot; a partial snapshot is
	// still analyzable, so their failures are not fatal.
	var langs map[string]int
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/languages", owner, repo), &langs); err == nil {
		snap.Languages = langs
	}

	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	branch := meta.DefaultBranch
	if branch == "" {
		branch = "HEAD"
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", owner, repo, branch), &tree); err == nil {
		for _, entry := range tree.Tree {
			if entry.Type != "blob" {
				continue
			}
			snap.Files = append(snap.Files, entry.Path)
			if len(snap.Files) >= maxSampledFiles {
				break
			}
		}
	}

	if readme, err := c.getRaw(ctx, fmt.Sprintf("/repos/%s/%s/readme", owner, repo)); err == nil {
		if len(readme) > maxReadmeExcerpt {
			readme = readme[:maxReadmeExcerpt]
		}
		snap.ReadmeExcerpt = readme
	}

	return snap, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(out)
}

func (c *Client) getRaw(ctx context.Context, path string) (string, error) {
	body, err := c.get(ctx, path, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	defer body.Close()
	b, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) get(ctx context.Context, path, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Transient(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, domain.Transient(fmt.Errorf("github %s: http %d", path, resp.StatusCode))
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("github %s: http %d", path, resp.StatusCode)
	}
}

// splitRepoURL accepts either a full https URL or a bare owner/repo pair.
func splitRepoURL(repoURL string) (owner, repo string, err error) {
	s := repoURL
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", "", errors.Join(domain.ErrInvalidArgument, err)
		}
		s = strings.TrimPrefix(u.Path, "/")
	}
	s = strings.TrimSuffix(s, ".git")
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: repository url %q", domain.ErrInvalidArgument, repoURL)
	}
	return parts[0], parts[1], nil
}
