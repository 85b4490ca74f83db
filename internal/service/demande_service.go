package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/dto"
	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/workflow"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

type demandeStore interface {
	Create(ctx context.Context, prefix string, demande *models.Demande) error
	GetByID(ctx context.Context, id string) (*models.Demande, error)
	List(ctx context.Context, filter models.DemandeFilter) ([]models.Demande, int, error)
	UpdatePayload(ctx context.Context, id string, payload []byte, at time.Time) error
}

// DemandeService ingests requests and serves their read side.
type DemandeService struct {
	repo      demandeStore
	prefix    string
	validator *validator.Validate
	listeners []TransitionListener
	logger    *zap.Logger
	now       func() time.Time
}

// NewDemandeService constructs a DemandeService. prefix is the reference prefix.
func NewDemandeService(repo demandeStore, prefix string, validate *validator.Validate, logger *zap.Logger, listeners ...TransitionListener) *DemandeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "AUT"
	}
	return &DemandeService{
		repo:      repo,
		prefix:    prefix,
		validator: validate,
		listeners: listeners,
		logger:    logger,
		now:       time.Now,
	}
}

// Create ingests a new request in SUBMITTED with the next reference of the day.
func (s *DemandeService) Create(ctx context.Context, actor models.Actor, req models.CreateDemandeRequest) (*models.Demande, error) {
	if actor.Role != models.RoleRequester && actor.Role != models.RoleAdministrator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not submit requests")
	}
	req.Type = models.DemandeType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request")
	}
	payload, err := normalizedPayload(req.Type, req.Payload)
	if err != nil {
		return nil, err
	}

	demande := &models.Demande{
		Type:        req.Type,
		Status:      models.StatusSubmitted,
		Payload:     payload,
		RequesterID: actor.ID,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
	}
	if err := s.repo.Create(ctx, s.prefix, demande); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	s.logger.Info("request submitted",
		zap.String("demande_id", demande.ID),
		zap.String("reference", demande.Reference),
		zap.String("type", string(demande.Type)),
	)

	event := models.TransitionEvent{
		DemandeID:   demande.ID,
		Reference:   demande.Reference,
		RequesterID: demande.RequesterID,
		Action:      "create",
		To:          models.StatusSubmitted,
		Actor:       actor,
		At:          demande.CreatedAt,
	}
	detached := context.WithoutCancel(ctx)
	for _, l := range s.listeners {
		l.OnTransition(detached, event)
	}
	return demande, nil
}

// Get returns a request with the actions the caller may fire next.
func (s *DemandeService) Get(ctx context.Context, actor models.Actor, id string) (*dto.DemandeDetail, error) {
	demande, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if err := ensureReadable(actor, demande); err != nil {
		return nil, err
	}
	return detail(actor, demande), nil
}

// List returns requests visible to the caller. Requesters only see their own.
func (s *DemandeService) List(ctx context.Context, actor models.Actor, query dto.DemandeQuery) ([]models.Demande, *models.Pagination, error) {
	filter := models.DemandeFilter{Search: strings.TrimSpace(query.Search)}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, alias, err := workflow.ParseStatus(part)
			if err != nil {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
			}
			if alias {
				s.logger.Info("legacy status spelling accepted", zap.String("raw", part), zap.String("status", string(status)))
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := strings.TrimSpace(query.Type); raw != "" {
		t := models.DemandeType(strings.ToUpper(raw))
		if !t.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown request type")
		}
		filter.Type = t
	}
	if actor.Role == models.RoleRequester {
		filter.RequesterID = actor.ID
	}
	limit, offset, pagination := paginate(query.Page, query.PageSize, 100)
	filter.Limit = limit
	filter.Offset = offset

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	if items == nil {
		items = []models.Demande{}
	}
	pagination.TotalCount = total
	return items, &pagination, nil
}

// UpdatePayload lets the requester amend a request that was sent back to them.
func (s *DemandeService) UpdatePayload(ctx context.Context, actor models.Actor, id string, req dto.UpdatePayloadRequest) (*dto.DemandeDetail, error) {
	if actor.Role != models.RoleRequester && actor.Role != models.RoleAdministrator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not edit requests")
	}
	demande, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if err := ensureReadable(actor, demande); err != nil {
		return nil, err
	}
	payload, err := normalizedPayload(demande.Type, req.Payload)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	if err := s.repo.UpdatePayload(ctx, demande.ID, payload, at); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request can only be edited while returned to its requester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}
	demande.Payload = payload
	demande.UpdatedAt = at
	return detail(actor, demande), nil
}

// normalizedPayload validates raw against the type's variant and re-encodes it.
func normalizedPayload(t models.DemandeType, raw json.RawMessage) (json.RawMessage, error) {
	decoded, err := models.DecodePayload(t, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}
	return encoded, nil
}

func detail(actor models.Actor, demande *models.Demande) *dto.DemandeDetail {
	actions := workflow.AvailableActions(actor.Role, demande.Status)
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return &dto.DemandeDetail{
		Demande:          *demande,
		AvailableActions: names,
		HasDocument:      demande.HasFinalDocument(),
	}
}

// AuditService serves the audit trail of a request.
type AuditService struct {
	demandes engineDemandeReader
	entries  auditLister
}

type auditLister interface {
	ListByDemande(ctx context.Context, demandeID string) ([]models.AuditEntry, error)
}

// NewAuditService constructs an AuditService.
func NewAuditService(demandes engineDemandeReader, entries auditLister) *AuditService {
	return &AuditService{demandes: demandes, entries: entries}
}

// Trail lists the audit entries of a request in commit order.
func (s *AuditService) Trail(ctx context.Context, actor models.Actor, demandeID string) ([]models.AuditEntry, error) {
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if err := ensureReadable(actor, demande); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListByDemande(ctx, demande.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit trail")
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}
