// Package githubhost publishes documents to a GitHub repository through the contents API.
// Pages are served by GitHub Pages (or any PUBLIC_BASE_URL fronting the repository).
package githubhost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v66/github"
	"github.com/pkg/errors"

	"github.com/niat-ops/opsboard/core"
)

const serviceName = "github"

var (
	ErrNotConfigured = errors.New("content host is not configured")
	ErrNotFound      = core.NewNotFoundError("document")
)

type Host struct {
	conf    core.ContentHostConfig
	client  *github.Client
	logger  core.Logger
	missing []string
}

var _ core.ContentHost = (*Host)(nil)

// New builds the host. An incomplete configuration is not an error here:
// every call then fails with ErrNotConfigured naming the missing keys.
func New(conf core.ContentHostConfig, logger core.Logger, httpClient ...*http.Client) (*Host, error) {
	var hc *http.Client
	if len(httpClient) > 0 {
		hc = httpClient[0]
	}
	client := github.NewClient(hc)
	if conf.Token != "" {
		client = client.WithAuthToken(conf.Token)
	}
	if conf.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(conf.APIURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrap(err, "parsing CONTENT_HOST_API_URL")
		}
		client.BaseURL = base
	}
	if conf.Branch == "" {
		conf.Branch = "main"
	}

	var missing []string
	if conf.Token == "" {
		missing = append(missing, "CONTENT_HOST_TOKEN")
	}
	if conf.Owner == "" {
		missing = append(missing, "CONTENT_HOST_OWNER")
	}
	if conf.Repo == "" {
		missing = append(missing, "CONTENT_HOST_REPO")
	}
	return &Host{conf: conf, client: client, logger: logger, missing: missing}, nil
}

// Configured reports whether the host has the credentials it needs.
func (h *Host) Configured() bool { return len(h.missing) == 0 }

func (h *Host) checkConfig() error {
	if h.Configured() {
		return nil
	}
	return errors.Wrapf(ErrNotConfigured, "missing %s", strings.Join(h.missing, ", "))
}

func (h *Host) filePath(filename string) string {
	if h.conf.PathPrefix == "" {
		return filename
	}
	return path.Join(h.conf.PathPrefix, filename)
}

// PublicURL is where filename is served once published.
func (h *Host) PublicURL(filename string) string {
	return h.conf.BaseURL() + "/" + filename
}

// Publish creates or overwrites filename. An existing file is updated with its current blob SHA.
func (h *Host) Publish(ctx context.Context, filename, content, description string) (core.PublishResult, error) {
	if err := h.checkConfig(); err != nil {
		return core.PublishResult{}, err
	}
	fp := h.filePath(filename)

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(description),
		Content: []byte(content),
		Branch:  github.String(h.conf.Branch),
	}

	var (
		res *github.RepositoryContentResponse
		err error
	)
	if sha := h.currentSHA(ctx, fp); sha != "" {
		opts.SHA = github.String(sha)
		res, _, err = h.client.Repositories.UpdateFile(ctx, h.conf.Owner, h.conf.Repo, fp, opts)
	} else {
		res, _, err = h.client.Repositories.CreateFile(ctx, h.conf.Owner, h.conf.Repo, fp, opts)
	}
	if err != nil {
		return core.PublishResult{}, hostError(fmt.Sprintf("publishing %s", filename), err)
	}

	result := core.PublishResult{PublishedURL: h.PublicURL(filename), Filename: filename}
	if res != nil && res.Content != nil {
		result.Revision = res.Content.GetSHA()
	}
	return result, nil
}

// currentSHA returns the blob SHA of fp, or "" when it does not exist.
// Lookup failures other than 404 are logged and treated the same way.
func (h *Host) currentSHA(ctx context.Context, fp string) string {
	file, _, resp, err := h.client.Repositories.GetContents(ctx, h.conf.Owner, h.conf.Repo, fp,
		&github.RepositoryContentGetOptions{Ref: h.conf.Branch})
	if err != nil {
		if resp == nil || resp.StatusCode != http.StatusNotFound {
			h.logger.Warn(fmt.Sprintf("checking %s on content host: %v", fp, err), err)
		}
		return ""
	}
	if file == nil {
		return ""
	}
	return file.GetSHA()
}

func (h *Host) Fetch(ctx context.Context, filename string) ([]byte, error) {
	if err := h.checkConfig(); err != nil {
		return nil, err
	}
	fp := h.filePath(filename)
	opts := &github.RepositoryContentGetOptions{Ref: h.conf.Branch}

	file, _, resp, err := h.client.Repositories.GetContents(ctx, h.conf.Owner, h.conf.Repo, fp, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, hostError(fmt.Sprintf("fetching %s", filename), err)
	}
	if file == nil {
		return nil, ErrNotFound
	}

	content, err := file.GetContent()
	if err == nil && content != "" {
		return []byte(content), nil
	}

	// files over 1MB come without inline content
	rc, _, err := h.client.Repositories.DownloadContents(ctx, h.conf.Owner, h.conf.Repo, fp, opts)
	if err != nil {
		return nil, hostError(fmt.Sprintf("downloading %s", filename), err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func hostError(msg string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Message != "" {
		return core.NewExternalError(serviceName, ghErr.Message, err)
	}
	return core.NewExternalError(serviceName, msg, err)
}
