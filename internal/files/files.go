// Package files provides the document upload adapter for LoanFlow.
//
// File-typed answers (e.g. payslips) are uploaded at the boundary; the flow
// engine only ever stores the retrieval URL returned here, never the bytes.
package files

import (
	"context"
	"io"
)

// Uploader stores an uploaded document and returns its retrieval URL.
type Uploader interface {
	Upload(ctx context.Context, sessionID, fileName, mediaType string, content io.Reader, size int64) (string, error)
}
