// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package clientes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/jcodagnone/visor/utils/httputils"
	"github.com/jcodagnone/visor/utils/textutils"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubConfig tells GitHubSource where the customer list lives.
type GitHubConfig struct {
	// Owner of the repository (user or organization)
	Owner string

	// Repository name
	Repo string

	// Path of the JSON file inside the repository
	Path string

	// Branch to read from and commit to. Empty means the default branch.
	Branch string

	// Token with contents read/write permission. Optional for public
	// repositories when only reading.
	Token string

	// BaseURL of the API, for GitHub Enterprise or tests
	BaseURL string

	// CommitMessage used when saving
	CommitMessage string

	// HTTP client settings
	HTTP httputils.ClientOptions
}

// Validate checks that the repository coordinates are present.
func (c *GitHubConfig) Validate() error {
	if c.Owner == "" {
		return errors.New("github source: owner must not be empty")
	}

	if c.Repo == "" {
		return errors.New("github source: repo must not be empty")
	}

	if c.Path == "" {
		return errors.New("github source: path must not be empty")
	}

	return nil
}

// GitHubSource reads and writes the customer list through the GitHub
// contents API.
type GitHubSource struct {
	cfg    GitHubConfig
	client *http.Client
	logger zerolog.Logger

	mu  sync.Mutex
	sha string // blob sha of the last loaded or saved version
}

// NewGitHubSource validates cfg and prepares an authenticated client.
func NewGitHubSource(cfg GitHubConfig, logger zerolog.Logger) (*GitHubSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGitHubAPI
	}

	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Actualiza coordenadas de clientes"
	}

	opts := cfg.HTTP
	opts.Headers = map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}

	client := httputils.NewClient(&opts)
	if cfg.Token != "" {
		client.Transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})),
			Base:   client.Transport,
		}
	}

	return &GitHubSource{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("source", "github").Str("repo", cfg.Owner+"/"+cfg.Repo).Logger(),
	}, nil
}

func (s *GitHubSource) String() string {
	ref := s.cfg.Branch
	if ref == "" {
		ref = "HEAD"
	}

	return fmt.Sprintf("github:%s/%s@%s:%s", s.cfg.Owner, s.cfg.Repo, ref, s.cfg.Path)
}

func (s *GitHubSource) contentsURL(withRef bool) string {
	segments := strings.Split(strings.Trim(s.cfg.Path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(s.cfg.BaseURL, "/"),
		url.PathEscape(s.cfg.Owner),
		url.PathEscape(s.cfg.Repo),
		strings.Join(segments, "/"),
	)

	if withRef && s.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(s.cfg.Branch)
	}

	return u
}

type contentResponse struct {
	Type        string `json:"type"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
	SHA         string `json:"sha"`
	DownloadURL string `json:"download_url"`
}

// Load fetches the file. Files above the API inline limit are fetched from
// their download URL.
func (s *GitHubSource) Load(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.contentsURL(true), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: github returned status %d", s, resp.StatusCode)
	}

	var content contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding contents response: %w", err)
	}

	if content.Type != "" && content.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", s, content.Type)
	}

	var data []byte

	if content.Encoding == "base64" {
		data, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decoding file content: %w", err)
		}
	} else {
		if data, err = s.download(ctx, content.DownloadURL); err != nil {
			return nil, err
		}
	}

	doc, err := ParseDocument(data, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sha = content.SHA
	s.mu.Unlock()

	s.logger.Debug().Str("sha", content.SHA).Int("entries", doc.Len()).Msg("customers loaded")

	return doc, nil
}

func (s *GitHubSource) download(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%s has no inline content nor download url", s)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github.raw")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", s, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: status %d", s, resp.StatusCode)
	}

	r, err := textutils.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s, err)
	}

	return data, nil
}

type updateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type updateResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// ErrRemoteChanged is returned when the file was modified on GitHub after
// it was loaded.
var ErrRemoteChanged = errors.New("remote customer list changed since it was loaded")

// Save commits the document. It must follow a Load so GitHub can detect
// concurrent edits.
func (s *GitHubSource) Save(ctx context.Context, doc *Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	sha := s.sha
	s.mu.Unlock()

	body, err := json.Marshal(updateRequest{
		Message: s.cfg.CommitMessage,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     sha,
		Branch:  s.cfg.Branch,
	})
	if err != nil {
		return fmt.Errorf("encoding update request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.contentsURL(false), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("saving %s: %w", s, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("saving %s: %w (status %d)", s, ErrRemoteChanged, resp.StatusCode)
	default:
		return fmt.Errorf("saving %s: github returned status %d", s, resp.StatusCode)
	}

	var updated updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return fmt.Errorf("decoding update response: %w", err)
	}

	s.mu.Lock()
	s.sha = updated.Content.SHA
	s.mu.Unlock()

	s.logger.Info().Str("sha", updated.Content.SHA).Msg("customers committed")

	return nil
}
