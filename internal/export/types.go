// Package export provides board export functionality for PDF and CSV formats.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Request contains parameters for an export operation
type Request struct {
	BoardID string
	Format  Format
}

// BoardData is the full board snapshot rendered into an export.
type BoardData struct {
	ID               string
	Name             string
	OrganizationName string
	Lists            []ListData
	ExportedAt       time.Time
}

// ListData is one list with its cards in position order.
type ListData struct {
	Title string
	Cards []CardData
}

// CardData is one card as it appears in an export.
type CardData struct {
	Title       string
	Description string
	IsComplete  bool
	Position    int
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrBoardUnavailable indicates board content could not be loaded for export.
	ErrBoardUnavailable = errors.New("export board unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
