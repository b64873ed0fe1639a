package gitprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GiteaProvider implements GitProvider against the Gitea REST API.
type GiteaProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGiteaProvider creates a GiteaProvider for the instance at baseURL.
func NewGiteaProvider(baseURL, token string) *GiteaProvider {
	return &GiteaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *GiteaProvider) Name() string { return "gitea" }

func (g *GiteaProvider) CreatePR(ctx context.Context, repo RepoRef, pr PRRequest) (*PRResult, error) {
	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/pulls", g.baseURL, repo.Owner, repo.Name)
	body := map[string]string{
		"title": pr.Title,
		"body":  pr.Body,
		"head":  pr.HeadBranch,
		"base":  pr.BaseBranch,
	}
	resp, err := g.doJSON(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("gitea: create pr: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gitea: create pr: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var result struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gitea: create pr: decode response: %w", err)
	}

	// Gitea labels are addressed by numeric ID; PRRequest.Labels is ignored
	// until a name lookup is added.
	return &PRResult{Number: result.Number, URL: result.HTMLURL}, nil
}

func (g *GiteaProvider) doJSON(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.client.Do(req)
}
