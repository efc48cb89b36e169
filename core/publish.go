package core

import "context"

// PublishResult describes a document stored on the content host.
type PublishResult struct {
	PublishedURL string
	Filename     string
	Revision     string // the host's revision id (blob SHA) after the write
}

// ContentHost stores static documents under a filename and serves them from a public URL.
// Publishing the same filename twice overwrites the first document.
type ContentHost interface {
	Publish(ctx context.Context, filename, content, description string) (PublishResult, error)
	Fetch(ctx context.Context, filename string) ([]byte, error)
}
