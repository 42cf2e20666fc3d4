// Package github implements the source.Repository collaborator against the
// GitHub REST API: commit resolution, revision compare, recursive trees and
// raw blob content.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/source"
)

const (
	// DefaultBaseURL is the GitHub REST API endpoint.
	DefaultBaseURL = "https://api.github.com"

	// sourceName identifies this collaborator in API errors.
	sourceName = "github"
)

// Compile-time interface check to ensure proper implementation.
var _ source.Repository = (*Client)(nil)

// Client talks to one GitHub repository.
type Client struct {
	BaseURL string
	Owner   string
	Repo    string
	Token   string

	http *http.Client
}

// New creates a client for owner/repo. The token may be empty for public
// repositories, at the cost of a much lower rate limit.
func New(owner, repo, token string) (*Client, error) {
	if owner == "" || repo == "" {
		return nil, &errors.ValidationError{Field: "repository", Message: "owner and repo are required"}
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		Owner:   owner,
		Repo:    repo,
		Token:   token,
		http:    &http.Client{Timeout: constants.DefaultHTTPTimeout},
	}, nil
}

// commitResponse is the subset of the commits endpoint we read.
type commitResponse struct {
	SHA string `json:"sha"`
}

// LatestRevision resolves a symbolic ref to a commit SHA.
func (c *Client) LatestRevision(ctx context.Context, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.BaseURL, c.Owner, c.Repo, ref)

	var commit commitResponse
	if err := c.getJSON(ctx, url, &commit); err != nil {
		return "", err
	}
	if commit.SHA == "" {
		return "", &errors.NotFoundError{Resource: "revision", ID: ref}
	}
	return commit.SHA, nil
}

// compareResponse is the subset of the compare endpoint we read.
type compareResponse struct {
	Files []compareFile `json:"files"`
}

type compareFile struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	SHA              string `json:"sha"`
	PreviousFilename string `json:"previous_filename"`
}

// Diff lists the paths changed between two revisions via the compare API.
// Statuses outside the add/modify/remove/rename set (GitHub also reports
// "changed", "copied" and "unchanged") are folded into modifications or
// additions so no content change is ever lost.
func (c *Client) Diff(ctx context.Context, from, to string) ([]source.DiffEntry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", c.BaseURL, c.Owner, c.Repo, from, to)

	var compare compareResponse
	if err := c.getJSON(ctx, url, &compare); err != nil {
		return nil, err
	}

	entries := make([]source.DiffEntry, 0, len(compare.Files))
	for _, file := range compare.Files {
		entry := source.DiffEntry{
			Path:         file.Filename,
			VersionToken: file.SHA,
		}
		switch file.Status {
		case "added", "copied":
			entry.Status = source.DiffAdded
		case "removed":
			entry.Status = source.DiffRemoved
		case "renamed":
			entry.Status = source.DiffRenamed
			entry.PreviousPath = file.PreviousFilename
		case "modified", "changed":
			entry.Status = source.DiffModified
		default:
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// treeResponse is the subset of the git trees endpoint we read.
type treeResponse struct {
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// Tree enumerates the repository tree at a revision.
func (c *Client) Tree(ctx context.Context, revision string, recursive bool) ([]source.TreeEntry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s", c.BaseURL, c.Owner, c.Repo, revision)
	if recursive {
		url += "?recursive=1"
	}

	var tree treeResponse
	if err := c.getJSON(ctx, url, &tree); err != nil {
		return nil, err
	}
	if tree.Truncated {
		// A truncated listing would silently drop documents; treat it as a
		// hard failure rather than reconciling against a partial tree.
		return nil, &errors.APIError{
			Source:   sourceName,
			Endpoint: url,
			Message:  "tree listing truncated by the API",
		}
	}

	entries := make([]source.TreeEntry, 0, len(tree.Tree))
	for _, item := range tree.Tree {
		kind := source.KindFile
		if item.Type == "tree" {
			kind = source.KindDir
		}
		entries = append(entries, source.TreeEntry{
			Path:         item.Path,
			Kind:         kind,
			VersionToken: item.SHA,
		})
	}
	return entries, nil
}

// Content fetches the raw bytes of a blob by its SHA.
func (c *Client) Content(ctx context.Context, versionToken string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/blobs/%s", c.BaseURL, c.Owner, c.Repo, versionToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapResource("create", "request", url, err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")
	c.addHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapIO("read", url, err)
	}
	return body, nil
}
