package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/dto"
	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/pkg/config"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/export"
)

const (
	documentContentType = "application/pdf"
	finalDocumentScope  = "demande-document"
)

type documentDemandeReader interface {
	GetByID(ctx context.Context, id string) (*models.Demande, error)
	GetByReference(ctx context.Context, reference string) (*models.Demande, error)
}

type documentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type authorizationRenderer interface {
	Render(doc export.AuthorizationDocument) ([]byte, error)
}

type signatureDecoder interface {
	Decode(upload models.SignatureUpload) (*export.SignatureAsset, error)
}

type downloadSigner interface {
	Generate(subjectID, resource string) (string, time.Time, error)
	Parse(token string) (subjectID, resource string, expiresAt time.Time, err error)
}

// DocumentServiceParams groups constructor dependencies.
type DocumentServiceParams struct {
	Demandes           documentDemandeReader
	Users              documentUserReader
	Renderer           authorizationRenderer
	Signatures         SignatureResolver
	Uploads            signatureDecoder
	Links              downloadSigner
	Letterhead         config.Letterhead
	VerificationSecret string
	APIPrefix          string
	Metrics            *MetricsService
	Logger             *zap.Logger
}

// DocumentService renders authorization letters. Previews are never stored;
// the final document is produced once, at signing.
type DocumentService struct {
	demandes   documentDemandeReader
	users      documentUserReader
	renderer   authorizationRenderer
	signatures SignatureResolver
	uploads    signatureDecoder
	links      downloadSigner
	letterhead config.Letterhead
	secret     []byte
	apiPrefix  string
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewDocumentService constructs the service.
func NewDocumentService(params DocumentServiceParams) *DocumentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := params.Renderer
	if renderer == nil {
		renderer = export.NewAuthorizationRenderer()
	}
	prefix := params.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &DocumentService{
		demandes:   params.Demandes,
		users:      params.Users,
		renderer:   renderer,
		signatures: params.Signatures,
		uploads:    params.Uploads,
		links:      params.Links,
		letterhead: params.Letterhead,
		secret:     []byte(params.VerificationSecret),
		apiPrefix:  prefix,
		metrics:    params.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Preview renders the authorization exactly as RenderFinal would sign it now.
// Requesters may only preview with their own upload; staff may name any signer.
func (s *DocumentService) Preview(ctx context.Context, actor models.Actor, demandeID string, req dto.PreviewRequest) (*dto.Document, error) {
	demande, err := s.load(ctx, actor, demandeID)
	if err != nil {
		return nil, err
	}
	signerID := actor.ID
	if req.SignerID != "" && req.SignerID != actor.ID {
		if actor.Role == models.RoleRequester {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "requesters cannot preview with another signature")
		}
		signerID = req.SignerID
	}
	issuedAt := s.now().UTC().Truncate(time.Second)
	asset, err := s.resolveAsset(ctx, signerID, req.Upload)
	if err != nil {
		return nil, err
	}
	data, err := s.render(ctx, demande, signerID, issuedAt, asset, "preview")
	if err != nil {
		return nil, err
	}
	return &dto.Document{
		Filename:    demande.Reference + "-preview.pdf",
		ContentType: documentContentType,
		Data:        data,
	}, nil
}

// RenderFinal produces the signed authorization. The upload takes precedence
// over the signer's stored signature. Any failure is a RENDER_ERROR.
func (s *DocumentService) RenderFinal(ctx context.Context, demande *models.Demande, signer models.Actor, upload *models.SignatureUpload, issuedAt time.Time) ([]byte, error) {
	asset, err := s.resolveAsset(ctx, signer.ID, upload)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, demande, signer.ID, issuedAt, asset, "final")
}

func (s *DocumentService) resolveAsset(ctx context.Context, signerID string, upload *models.SignatureUpload) (*export.SignatureAsset, error) {
	if upload != nil && len(upload.Data) > 0 {
		if s.uploads == nil {
			return nil, appErrors.Clone(appErrors.ErrRender, "signature uploads are not accepted")
		}
		return s.uploads.Decode(*upload)
	}
	return s.resolveStored(ctx, signerID)
}

func (s *DocumentService) resolveStored(ctx context.Context, signerID string) (*export.SignatureAsset, error) {
	if s.signatures == nil {
		return nil, appErrors.Clone(appErrors.ErrRender, "no signature on file for signer")
	}
	asset, err := s.signatures.Resolve(ctx, signerID)
	if err != nil {
		if errors.Is(err, ErrSignatureNotFound) {
			return nil, appErrors.Clone(appErrors.ErrRender, "no signature on file for signer")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "failed to load signature")
	}
	return asset, nil
}

func (s *DocumentService) render(ctx context.Context, demande *models.Demande, signerID string, issuedAt time.Time, asset *export.SignatureAsset, kind string) ([]byte, error) {
	doc, err := s.compose(ctx, demande, signerID, issuedAt, asset)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := s.renderer.Render(doc)
	s.metrics.ObserveRender(kind, time.Since(start))
	if err != nil {
		s.logger.Warn("authorization rendering failed", zap.String("reference", demande.Reference), zap.Error(err))
		if errors.Is(err, export.ErrSignatureAsset) {
			return nil, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "signature asset could not be decoded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, appErrors.ErrRender.Message)
	}
	return data, nil
}

func (s *DocumentService) compose(ctx context.Context, demande *models.Demande, signerID string, issuedAt time.Time, asset *export.SignatureAsset) (export.AuthorizationDocument, error) {
	payload, err := models.DecodePayload(demande.Type, demande.Payload)
	if err != nil {
		return export.AuthorizationDocument{}, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "stored payload cannot be rendered")
	}
	code, err := export.VerificationCode(s.secret, demande.Reference, issuedAt)
	if err != nil {
		return export.AuthorizationDocument{}, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "failed to compute verification code")
	}

	signerName := ""
	if signerID != "" && s.users != nil {
		if user, err := s.users.FindByID(ctx, signerID); err == nil {
			signerName = user.FullName
		} else {
			s.logger.Debug("signer lookup failed", zap.String("signer_id", signerID), zap.Error(err))
		}
	}

	fields := []export.Field{{Label: "Reference", Value: demande.Reference}}
	for _, f := range payload.Fields() {
		fields = append(fields, export.Field{Label: f.Label, Value: f.Value})
	}
	applicant := payload.Applicant()
	label := demande.Type.Label()

	return export.AuthorizationDocument{
		Letterhead: s.letterhead,
		Reference:  demande.Reference,
		Subject:    fmt.Sprintf("Authorization for installation of a %s unit", label),
		Addressee:  applicant,
		Paragraphs: []string{
			fmt.Sprintf("Having regard to the request registered under reference %s on %s by %s,", demande.Reference, demande.CreatedAt.UTC().Format("2 January 2006"), applicant),
			"Having regard to the opinions of the competent services,",
			fmt.Sprintf("%s is hereby authorized to install and operate a %s unit under the conditions set out below.", applicant, label),
			"This authorization may be withdrawn if any of these conditions ceases to be met.",
		},
		Fields:           fields,
		SignerName:       signerName,
		IssuedAt:         issuedAt,
		VerificationCode: code,
		Signature:        asset,
	}, nil
}

// DocumentLink issues a time-limited download URL for the signed authorization.
func (s *DocumentService) DocumentLink(ctx context.Context, actor models.Actor, demandeID string) (*models.DownloadLink, error) {
	demande, err := s.load(ctx, actor, demandeID)
	if err != nil {
		return nil, err
	}
	if !demande.HasFinalDocument() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no signed document")
	}
	token, expiresAt, err := s.links.Generate(demande.ID, finalDocumentScope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &models.DownloadLink{
		URL:       fmt.Sprintf("%s/demandes/%s/document/download?token=%s", s.apiPrefix, demande.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download returns the signed authorization for a valid download token.
func (s *DocumentService) Download(ctx context.Context, demandeID, token string) (*dto.Document, error) {
	subject, scope, _, err := s.links.Parse(token)
	if err != nil || subject != demandeID || scope != finalDocumentScope {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if !demande.HasFinalDocument() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no signed document")
	}
	return &dto.Document{
		Filename:    demande.Reference + ".pdf",
		ContentType: documentContentType,
		Data:        demande.FinalDocument,
	}, nil
}

// Verify checks a verification code printed on an authorization.
func (s *DocumentService) Verify(ctx context.Context, code string) (*dto.VerificationResult, error) {
	reference, issuedAt, err := export.ParseVerificationCode(s.secret, code)
	if err != nil {
		return &dto.VerificationResult{Valid: false, Reason: "code is not authentic"}, nil
	}
	demande, err := s.demandes.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.VerificationResult{Valid: false, Reference: reference, Reason: "unknown reference"}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	result := &dto.VerificationResult{
		Reference: demande.Reference,
		Type:      string(demande.Type),
		Status:    string(demande.Status),
		SignedAt:  demande.SignedAt,
	}
	if demande.SignedAt == nil || demande.SignedAt.Unix() != issuedAt.Unix() {
		result.Reason = "no signed authorization matches this code"
		return result, nil
	}
	result.Valid = true
	return result, nil
}

func (s *DocumentService) load(ctx context.Context, actor models.Actor, demandeID string) (*models.Demande, error) {
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if err := ensureReadable(actor, demande); err != nil {
		return nil, err
	}
	return demande, nil
}
