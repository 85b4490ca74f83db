package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
	"github.com/noah-isme/demandes-api/pkg/export"
	"github.com/noah-isme/demandes-api/pkg/storage"
)

// SignatureResolver returns the stored canonical signature of a signer.
type SignatureResolver interface {
	Resolve(ctx context.Context, signerID string) (*export.SignatureAsset, error)
}

// ErrSignatureNotFound is returned when a signer has no stored signature.
var ErrSignatureNotFound = errors.New("signature not found")

type signatureFileStorage interface {
	Save(filename string, data []byte) (string, error)
	Read(filename string, limit int64) ([]byte, error)
	FindFirst(candidates ...string) (string, error)
	Delete(filename string) error
}

var signatureExtensions = []struct {
	ext    string
	format string
}{
	{".png", export.SignaturePNG},
	{".jpg", export.SignatureJPEG},
	{".jpeg", export.SignatureJPEG},
	{".svg", export.SignatureSVG},
}

// SignatureService stores and resolves signer signatures kept as
// <dir>/<signerID>.{png,jpg,svg}.
type SignatureService struct {
	storage  signatureFileStorage
	maxBytes int64
	logger   *zap.Logger
}

// NewSignatureService constructs the service.
func NewSignatureService(store signatureFileStorage, maxBytes int64, logger *zap.Logger) *SignatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 2 * 1024 * 1024
	}
	return &SignatureService{storage: store, maxBytes: maxBytes, logger: logger}
}

// Resolve implements SignatureResolver.
func (s *SignatureService) Resolve(ctx context.Context, signerID string) (*export.SignatureAsset, error) {
	if s == nil || s.storage == nil {
		return nil, ErrSignatureNotFound
	}
	candidates := make([]string, 0, len(signatureExtensions))
	for _, candidate := range signatureExtensions {
		candidates = append(candidates, signerID+candidate.ext)
	}
	name, err := s.storage.FindFirst(candidates...)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSignatureNotFound
		}
		return nil, err
	}
	data, err := s.storage.Read(name, s.maxBytes)
	if err != nil {
		return nil, err
	}
	return &export.SignatureAsset{Format: formatForExtension(filepath.Ext(name)), Data: data}, nil
}

// Store replaces the caller's canonical signature.
func (s *SignatureService) Store(ctx context.Context, actor models.Actor, upload models.SignatureUpload) error {
	if actor.Role != models.RoleMinister {
		return appErrors.Clone(appErrors.ErrForbidden, "only signers may register a signature")
	}
	asset, err := s.Decode(upload)
	if err != nil {
		return err
	}
	for _, candidate := range signatureExtensions {
		if err := s.storage.Delete(actor.ID + candidate.ext); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace signature")
		}
	}
	if _, err := s.storage.Save(actor.ID+extensionForFormat(asset.Format), asset.Data); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signature")
	}
	s.logger.Info("signature stored", zap.String("signer_id", actor.ID), zap.String("format", asset.Format))
	return nil
}

// Decode checks an uploaded signature and determines its format from the
// declared content type or, failing that, from its leading bytes.
func (s *SignatureService) Decode(upload models.SignatureUpload) (*export.SignatureAsset, error) {
	if len(upload.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrRender, "signature upload is empty")
	}
	if int64(len(upload.Data)) > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrRender, fmt.Sprintf("signature exceeds %d bytes", s.maxBytes))
	}
	format := formatForContentType(upload.ContentType)
	if format == "" {
		format = sniffSignatureFormat(upload.Data)
	}
	if format == "" {
		return nil, appErrors.Clone(appErrors.ErrRender, "signature must be PNG, JPEG or SVG")
	}
	return &export.SignatureAsset{Format: format, Data: upload.Data}, nil
}

func formatForExtension(ext string) string {
	for _, candidate := range signatureExtensions {
		if strings.EqualFold(candidate.ext, ext) {
			return candidate.format
		}
	}
	return ""
}

func extensionForFormat(format string) string {
	for _, candidate := range signatureExtensions {
		if candidate.format == format {
			return candidate.ext
		}
	}
	return ""
}

func formatForContentType(contentType string) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case "image/png":
		return export.SignaturePNG
	case "image/jpeg", "image/jpg":
		return export.SignatureJPEG
	case "image/svg+xml":
		return export.SignatureSVG
	}
	return ""
}

func sniffSignatureFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return export.SignaturePNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return export.SignatureJPEG
	case bytes.Contains(bytes.ToLower(data[:min(len(data), 512)]), []byte("<svg")):
		return export.SignatureSVG
	}
	return ""
}
