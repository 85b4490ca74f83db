package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/dto"
	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/export"
)

const (
	archiveDocumentScope = "archive-document"
	archiveExportLimit   = 5000
)

// Export formats accepted by ArchiveService.Export.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type archiveStore interface {
	GetByDemande(ctx context.Context, demandeID string) (*models.ArchiveRecord, error)
	GetByID(ctx context.Context, id string) (*models.ArchiveRecord, error)
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveRecord, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, opts export.TableOptions) ([]byte, error)
}

// ArchiveServiceConfig holds link settings.
type ArchiveServiceConfig struct {
	APIPrefix string
}

// ArchiveService exposes the read side of closed requests.
type ArchiveService struct {
	repo    archiveStore
	links   downloadSigner
	csv     csvRenderer
	pdf     pdfRenderer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ArchiveServiceConfig
	now     func() time.Time
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(repo archiveStore, links downloadSigner, csv csvRenderer, pdf pdfRenderer, metrics *MetricsService, logger *zap.Logger, cfg ArchiveServiceConfig) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ArchiveService{
		repo:    repo,
		links:   links,
		csv:     csv,
		pdf:     pdf,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// GetByDemande returns the archive of a request with a signed download link.
func (s *ArchiveService) GetByDemande(ctx context.Context, actor models.Actor, demandeID string) (*dto.ArchiveDownloadResponse, error) {
	record, err := s.repo.GetByDemande(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "archive record not found", "failed to load archive record")
	}
	if actor.Role == models.RoleRequester {
		requester, err := record.Requester()
		if err != nil || requester.ID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "archive belongs to another requester")
		}
	}
	token, expiresAt, err := s.links.Generate(record.ID, archiveDocumentScope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.ArchiveDownloadResponse{
		ArchiveRecord: *record,
		DownloadURL:   fmt.Sprintf("%s/archives/%s/download?token=%s", s.cfg.APIPrefix, record.ID, token),
		ExpiresAt:     expiresAt,
	}, nil
}

// List returns archive metadata matching the query.
func (s *ArchiveService) List(ctx context.Context, actor models.Actor, query dto.ArchiveQuery) ([]models.ArchiveRecord, *models.Pagination, error) {
	if actor.Role == models.RoleRequester {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "archive register is reserved to staff")
	}
	filter, err := archiveFilter(query)
	if err != nil {
		return nil, nil, err
	}
	limit, offset, pagination := paginate(query.Page, query.PageSize, 200)
	filter.Limit = limit
	filter.Offset = offset
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archives")
	}
	if records == nil {
		records = []models.ArchiveRecord{}
	}
	pagination.TotalCount = total
	return records, &pagination, nil
}

// Download returns the archived document for a valid token.
func (s *ArchiveService) Download(ctx context.Context, archiveID, token string) (*dto.Document, error) {
	subject, scope, _, err := s.links.Parse(token)
	if err != nil || subject != archiveID || scope != archiveDocumentScope {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	record, err := s.repo.GetByID(ctx, archiveID)
	if err != nil {
		return nil, notFoundOr(err, "archive record not found", "failed to load archive record")
	}
	return &dto.Document{
		Filename:    record.Reference + ".pdf",
		ContentType: documentContentType,
		Data:        record.Document,
	}, nil
}

// Export renders the archive register as CSV or PDF.
func (s *ArchiveService) Export(ctx context.Context, actor models.Actor, query dto.ArchiveQuery, format string) (*dto.Document, error) {
	if actor.Role == models.RoleRequester {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "archive register is reserved to staff")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	filter, err := archiveFilter(query)
	if err != nil {
		return nil, err
	}
	filter.Limit = archiveExportLimit
	records, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archives")
	}

	dataset := archiveDataset(records)
	generatedAt := s.now().UTC()
	start := time.Now()
	var (
		payload     []byte
		contentType string
	)
	switch format {
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, export.TableOptions{
			Title:       "Archive register",
			Subtitle:    fmt.Sprintf("%d closed requests", len(records)),
			GeneratedAt: generatedAt,
			Landscape:   true,
		})
		contentType = documentContentType
	default:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "failed to render archive register")
	}
	s.metrics.ObserveRender("archive-"+format, time.Since(start))
	s.logger.Info("archive register exported", zap.String("format", format), zap.Int("rows", len(records)))

	return &dto.Document{
		Filename:    fmt.Sprintf("archives-%s.%s", generatedAt.Format("20060102"), format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func archiveDataset(records []models.ArchiveRecord) export.Dataset {
	ds := export.Dataset{
		Columns: []export.Column{
			{Key: "reference", Title: "Reference", Width: 40},
			{Key: "type", Title: "Type", Width: 28},
			{Key: "requester", Title: "Requester", Width: 60},
			{Key: "closed_at", Title: "Closed at", Width: 40},
			{Key: "sha256", Title: "Document SHA-256", Width: 100},
		},
		Rows: make([]map[string]string, 0, len(records)),
	}
	for _, r := range records {
		requester, _ := r.Requester()
		name := requester.FullName
		if name == "" {
			name = requester.Email
		}
		ds.Rows = append(ds.Rows, map[string]string{
			"reference": r.Reference,
			"type":      string(r.Type),
			"requester": name,
			"closed_at": r.ClosedAt.UTC().Format(time.RFC3339),
			"sha256":    r.DocumentSHA256,
		})
	}
	return ds
}

func archiveFilter(query dto.ArchiveQuery) (models.ArchiveFilter, error) {
	filter := models.ArchiveFilter{Reference: strings.TrimSpace(query.Reference)}
	if raw := strings.TrimSpace(query.Type); raw != "" {
		t := models.DemandeType(strings.ToUpper(raw))
		if !t.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "unknown request type")
		}
		filter.Type = t
	}
	from, err := parseQueryTime(query.ClosedFrom, false)
	if err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "invalid closed_from")
	}
	to, err := parseQueryTime(query.ClosedTo, true)
	if err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, "invalid closed_to")
	}
	filter.ClosedFrom = from
	filter.ClosedTo = to
	return filter, nil
}

// parseQueryTime accepts RFC3339 or a plain date. A plain end date covers the whole day.
func parseQueryTime(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
