package dto

import (
	"time"

	"github.com/noah-isme/demandes-api/internal/models"
)

// ArchiveQuery captures archive listing query parameters.
type ArchiveQuery struct {
	Type       string `form:"type"`
	Reference  string `form:"reference"`
	ClosedFrom string `form:"closed_from"`
	ClosedTo   string `form:"closed_to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// ArchiveDownloadResponse enriches archive metadata with a signed download URL.
type ArchiveDownloadResponse struct {
	models.ArchiveRecord
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"download_expires_at"`
}

// Document is a rendered or stored file ready to stream.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PreviewRequest selects whose signature a preview is rendered with. SignerID
// defaults to the caller; Upload, when present, wins over the stored signature.
type PreviewRequest struct {
	SignerID string
	Upload   *models.SignatureUpload
}
