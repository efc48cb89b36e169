// Package memhost is a core.ContentHost keeping published documents in memory.
package memhost

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/niat-ops/opsboard/core"
)

var ErrNotFound = core.NewNotFoundError("document")

// Publication records one Publish call.
type Publication struct {
	Filename    string
	Content     string
	Description string
}

type Host struct {
	mu           sync.RWMutex
	baseURL      string
	files        map[string]string
	publications []Publication
	failWith     error
}

var _ core.ContentHost = (*Host)(nil)

func New(baseURL string) *Host {
	return &Host{baseURL: strings.TrimRight(baseURL, "/"), files: make(map[string]string)}
}

func (h *Host) Publish(ctx context.Context, filename, content, description string) (core.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return core.PublishResult{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failWith != nil {
		return core.PublishResult{}, h.failWith
	}
	h.files[filename] = content
	h.publications = append(h.publications, Publication{Filename: filename, Content: content, Description: description})
	return core.PublishResult{
		PublishedURL: h.baseURL + "/" + filename,
		Filename:     filename,
		Revision:     strconv.Itoa(len(h.publications)),
	}, nil
}

func (h *Host) Fetch(ctx context.Context, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	content, ok := h.files[filename]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(content), nil
}

// Publications lists every Publish call in order.
func (h *Host) Publications() []Publication {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Publication(nil), h.publications...)
}

// PublishedFilenames lists the filenames of every Publish call in order.
func (h *Host) PublishedFilenames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.publications))
	for _, p := range h.publications {
		names = append(names, p.Filename)
	}
	return names
}

// Reset forgets the publication log but keeps the files.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publications = nil
}

// SetFailure makes every following Publish call fail with err. nil restores success.
func (h *Host) SetFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failWith = err
}
