package pdfops

import "io"

// Engine opens documents and creates empty output documents.
type Engine interface {
	// Open parses data; failures wrap apperrors.ErrCorruptDocument.
	Open(data []byte) (Document, error)
	NewWriter() Writer
}

// Document is an open source document. Page indices are 0-based.
type Document interface {
	PageCount() int
	PageText(index int) (string, error)
	Close() error
}

// Writer accumulates pages copied from open documents. Pages appended by
// AppendPages are materialized immediately, so the source may be closed
// before Serialize is called.
type Writer interface {
	AppendPages(src Document, indices ...int) error
	PageCount() int
	Serialize(w io.Writer) error
	Close() error
}
