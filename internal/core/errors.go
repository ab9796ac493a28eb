package core

import "errors"

var (
	// ErrEmptyMessage rejects blank chat input before anything is persisted.
	ErrEmptyMessage = errors.New("message content cannot be empty")

	// ErrNoFilename is reported when an upload carries no usable file name.
	ErrNoFilename = errors.New("no selected file")

	// ErrBadExtension is reported when an upload's extension is not allowed.
	ErrBadExtension = errors.New("file type not allowed")

	// ErrIndexing means the file was written to disk but the provider-side
	// indexing did not complete, so the document may not be searchable yet.
	ErrIndexing = errors.New("file stored but not indexed")

	// ErrPollTimeout means a provider job did not reach a terminal state
	// within the polling budget. Distinct from the provider failing the job.
	ErrPollTimeout = errors.New("timed out waiting for provider")
)
