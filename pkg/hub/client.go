/*
 *     Copyright 2025 The CNAI Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	retry "github.com/avast/retry-go/v4"
)

const (
	HuggingFaceBaseURL = "https://huggingface.co"
)

// FileInfo describes a single file in a model repository at a fixed revision.
type FileInfo struct {
	// Path is the repository-relative file path.
	Path string
	// Size is the file size in bytes.
	Size int64
	// SHA256 is the hex encoded content digest for LFS-tracked files,
	// empty for files stored directly in git.
	SHA256 string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Hugging Face endpoint, mainly for tests and
// private mirrors.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithToken sets the Bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is a minimal Hugging Face Hub API client covering the calls the
// provisioning flow needs: commit resolution, file listing and file download.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new Hub client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    HuggingFaceBaseURL,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type repoCommit struct {
	ID string `json:"id"`
}

// ResolveCommit resolves a revision (branch, tag or commit id) of a model
// repository to the commit id it points at.
func (c *Client) ResolveCommit(ctx context.Context, repoID, revision string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s/commits/%s", c.baseURL, repoID, revision)

	var commits []repoCommit
	if err := retry.Do(func() error {
		commits = commits[:0]
		return c.getJSON(ctx, endpoint, &commits)
	}, append(defaultRetryOpts, retry.Context(ctx))...); err != nil {
		return "", fmt.Errorf("failed to list commits of %s: %w", repoID, err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for %s at revision %s", repoID, revision)
	}

	return commits[0].ID, nil
}

type repoSibling struct {
	Rfilename string `json:"rfilename"`
	Size      int64  `json:"size"`
	LFS       *struct {
		OID  string `json:"oid"`
		Size int64  `json:"size"`
	} `json:"lfs"`
}

type repoInfo struct {
	SHA      string        `json:"sha"`
	Siblings []repoSibling `json:"siblings"`
}

// ListFiles returns the files of a model repository at the given revision,
// including sizes and LFS content digests.
func (c *Client) ListFiles(ctx context.Context, repoID, revision string) ([]FileInfo, error) {
	endpoint := fmt.Sprintf("%s/api/models/%s/revision/%s?blobs=true", c.baseURL, repoID, revision)

	var info repoInfo
	if err := retry.Do(func() error {
		info = repoInfo{}
		return c.getJSON(ctx, endpoint, &info)
	}, append(defaultRetryOpts, retry.Context(ctx))...); err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", repoID, err)
	}

	files := make([]FileInfo, 0, len(info.Siblings))
	for _, sibling := range info.Siblings {
		file := FileInfo{Path: sibling.Rfilename, Size: sibling.Size}
		if sibling.LFS != nil {
			file.SHA256 = sibling.LFS.OID
			if sibling.LFS.Size > 0 {
				file.Size = sibling.LFS.Size
			}
		}

		files = append(files, file)
	}

	return files, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, endpoint)
	}

	return resp, nil
}
