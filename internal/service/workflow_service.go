package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/workflow"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

const tracerName = "github.com/noah-isme/demandes-api/internal/service"

type engineDemandeReader interface {
	GetByID(ctx context.Context, id string) (*models.Demande, error)
}

type transitionCommitter interface {
	Commit(ctx context.Context, rec repository.TransitionRecord) (*repository.CommitResult, error)
}

type engineArchiveReader interface {
	GetByDemande(ctx context.Context, demandeID string) (*models.ArchiveRecord, error)
}

type engineUserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type finalDocumentRenderer interface {
	RenderFinal(ctx context.Context, demande *models.Demande, signer models.Actor, upload *models.SignatureUpload, issuedAt time.Time) ([]byte, error)
}

// TransitionListener observes committed transitions. Listeners run after the
// commit and cannot affect its outcome.
type TransitionListener interface {
	OnTransition(ctx context.Context, event models.TransitionEvent)
}

// WorkflowServiceParams groups constructor dependencies.
type WorkflowServiceParams struct {
	Demandes  engineDemandeReader
	Commits   transitionCommitter
	Archives  engineArchiveReader
	Users     engineUserDirectory
	Documents finalDocumentRenderer
	Listeners []TransitionListener
	Policy    workflow.AdvisoryPolicy
	Validator *validator.Validate
	Metrics   *MetricsService
	Tracer    trace.Tracer
	Logger    *zap.Logger
}

// WorkflowService is the lifecycle engine: it validates every action against
// the transition table and commits the status change, its audit entry and the
// action's side writes atomically.
type WorkflowService struct {
	demandes  engineDemandeReader
	commits   transitionCommitter
	archives  engineArchiveReader
	users     engineUserDirectory
	documents finalDocumentRenderer
	listeners []TransitionListener
	policy    workflow.AdvisoryPolicy
	validator *validator.Validate
	metrics   *MetricsService
	tracer    trace.Tracer
	logger    *zap.Logger
	now       func() time.Time
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(params WorkflowServiceParams) *WorkflowService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	tracer := params.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	policy := params.Policy
	if policy == "" {
		policy = workflow.DefaultAdvisoryPolicy
	}
	return &WorkflowService{
		demandes:  params.Demandes,
		commits:   params.Commits,
		archives:  params.Archives,
		users:     params.Users,
		documents: params.Documents,
		listeners: params.Listeners,
		policy:    policy,
		validator: validate,
		metrics:   params.Metrics,
		tracer:    tracer,
		logger:    logger,
		now:       time.Now,
	}
}

// AddListener registers a post-commit listener.
func (s *WorkflowService) AddListener(l TransitionListener) {
	s.listeners = append(s.listeners, l)
}

type transitionInput struct {
	req     models.ActionRequest
	upload  *models.SignatureUpload
	board   *models.AdvisoryBoard
	outcome models.AdvisoryOutcome
}

// Execute runs a caller-invoked action. Engine-only actions are refused.
func (s *WorkflowService) Execute(ctx context.Context, demandeID string, actor models.Actor, action workflow.Action, req models.ActionRequest, upload *models.SignatureUpload) (*models.TransitionResult, error) {
	if action.Internal() || actor.Role == models.RoleSystem {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s is reserved to the engine", action))
	}
	return s.execute(ctx, demandeID, actor, action, transitionInput{req: req, upload: upload})
}

// ConcludeAdvisory fires advisoryForward or advisoryReturn as the system actor
// and marks the board concluded in the same transaction.
func (s *WorkflowService) ConcludeAdvisory(ctx context.Context, demandeID string, board models.AdvisoryBoard, outcome models.AdvisoryOutcome) (*models.TransitionResult, error) {
	action := workflow.OutcomeAction(outcome)
	in := transitionInput{
		req:     models.ActionRequest{Comment: fmt.Sprintf("advisory round %d concluded: %s", board.Round, outcome)},
		board:   &board,
		outcome: outcome,
	}
	return s.execute(ctx, demandeID, models.SystemActor(), action, in)
}

func (s *WorkflowService) execute(ctx context.Context, demandeID string, actor models.Actor, action workflow.Action, in transitionInput) (result *models.TransitionResult, err error) {
	ctx, span := s.tracer.Start(ctx, "workflow."+string(action), trace.WithAttributes(
		attribute.String("demande.id", demandeID),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() {
		outcome := OutcomeCommitted
		if err != nil {
			outcome = appErrors.FromError(err).Code
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.RecordTransition(string(action), outcome)
		span.End()
	}()

	switch auth := workflow.Authorize(action, actor.Role); auth.Denial {
	case workflow.DenyUnknownAction:
		return nil, appErrors.Clone(appErrors.ErrValidation, auth.Reason)
	case workflow.DenyRole:
		return nil, appErrors.Clone(appErrors.ErrForbidden, auth.Reason)
	}
	if err := s.validateInput(action, in.req); err != nil {
		return nil, err
	}

	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	span.SetAttributes(attribute.String("demande.reference", demande.Reference))

	if action == workflow.ActionClose && demande.Status == models.StatusClosed {
		return s.alreadyClosed(ctx, demande)
	}
	if actor.Role == models.RoleRequester && demande.RequesterID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request belongs to another requester")
	}
	if demande.Status == models.StatusReassigned && actor.Role == models.RoleFieldAuthority &&
		demande.AssigneeID != nil && *demande.AssigneeID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is assigned to another field authority")
	}
	guard := workflow.Guard(action, actor.Role, demande.Status)
	if !guard.Allowed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, guard.Reason)
	}

	at := s.now().UTC().Truncate(time.Second)
	rec := repository.TransitionRecord{
		DemandeID: demande.ID,
		From:      demande.Status,
		To:        guard.Target,
		At:        at,
		Audit: models.AuditEntry{
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Action:    string(action),
			Note:      strings.TrimSpace(in.req.Comment),
		},
	}
	if err := s.prepare(ctx, demande, actor, action, in, &rec); err != nil {
		return nil, err
	}

	if _, err := s.commits.Commit(ctx, rec); err != nil {
		switch {
		case errors.Is(err, repository.ErrStatusConflict):
			if action == workflow.ActionClose {
				if current, getErr := s.demandes.GetByID(ctx, demande.ID); getErr == nil && current.Status == models.StatusClosed {
					return s.alreadyClosed(ctx, current)
				}
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request status changed concurrently")
		case errors.Is(err, repository.ErrArchiveExists):
			return nil, appErrors.Clone(appErrors.ErrArchiveConflict, "request already archived")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transition")
	}

	s.logger.Info("transition committed",
		zap.String("demande_id", demande.ID),
		zap.String("reference", demande.Reference),
		zap.String("action", string(action)),
		zap.String("from", string(rec.From)),
		zap.String("to", string(rec.To)),
		zap.String("actor_id", actor.ID),
	)
	s.publish(ctx, models.TransitionEvent{
		DemandeID:   demande.ID,
		Reference:   demande.Reference,
		RequesterID: demande.RequesterID,
		Action:      string(action),
		From:        rec.From,
		To:          rec.To,
		Actor:       actor,
		AssigneeID:  derefString(rec.AssigneeID),
		ReviewerIDs: rec.ReviewerIDs,
		At:          at,
	})

	return &models.TransitionResult{
		DemandeID: demande.ID,
		Reference: demande.Reference,
		Action:    string(action),
		From:      rec.From,
		Status:    rec.To,
		Archive:   rec.Archive,
	}, nil
}

func (s *WorkflowService) validateInput(action workflow.Action, req models.ActionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}
	switch action {
	case workflow.ActionReassign:
		if strings.TrimSpace(req.AssigneeID) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "assignee_id is required")
		}
	case workflow.ActionRequestAdvisory:
		if len(req.ReviewerIDs) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "at least one reviewer is required")
		}
	}
	return nil
}

func (s *WorkflowService) prepare(ctx context.Context, demande *models.Demande, actor models.Actor, action workflow.Action, in transitionInput, rec *repository.TransitionRecord) error {
	switch action {
	case workflow.ActionReassign:
		assigneeID := strings.TrimSpace(in.req.AssigneeID)
		user, err := s.users.FindByID(ctx, assigneeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "assignee not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
		}
		if !user.Active || user.Role != models.RoleFieldAuthority {
			return appErrors.Clone(appErrors.ErrValidation, "assignee must be an active field authority")
		}
		rec.AssigneeID = &user.ID

	case workflow.ActionRequestAdvisory:
		reviewers, err := s.reviewers(ctx, in.req.ReviewerIDs)
		if err != nil {
			return err
		}
		rec.ReviewerIDs = reviewers
		rec.Board = &models.AdvisoryBoard{
			DemandeID:   demande.ID,
			Policy:      string(s.policy),
			RequestedBy: actor.ID,
			CreatedAt:   rec.At,
		}

	case workflow.ActionAdvisoryForward, workflow.ActionAdvisoryReturn:
		if in.board == nil {
			return appErrors.Clone(appErrors.ErrInternal, "advisory conclusion without a board")
		}
		rec.ConcludeBoardID = in.board.ID
		rec.Outcome = in.outcome

	case workflow.ActionSign:
		document, err := s.documents.RenderFinal(ctx, demande, actor, in.upload, rec.At)
		if err != nil {
			return err
		}
		rec.FinalDocument = document
		rec.SignedBy = actor.ID

	case workflow.ActionClose:
		archive, err := s.archiveRecord(ctx, demande, actor, rec.At)
		if err != nil {
			return err
		}
		rec.Archive = archive
	}
	return nil
}

// reviewers de-duplicates ids and checks each is an active advisory board member.
func (s *WorkflowService) reviewers(ctx context.Context, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one reviewer is required")
	}
	users, err := s.users.FindByIDs(ctx, unique)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviewers")
	}
	eligible := make(map[string]bool, len(users))
	for _, u := range users {
		eligible[u.ID] = u.Active && u.Role == models.RoleAdvisoryBoardMember
	}
	for _, id := range unique {
		if !eligible[id] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("reviewer %s is not an active advisory board member", id))
		}
	}
	return unique, nil
}

func (s *WorkflowService) archiveRecord(ctx context.Context, demande *models.Demande, actor models.Actor, at time.Time) (*models.ArchiveRecord, error) {
	if !demande.HasFinalDocument() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "signed document missing")
	}
	requester, err := s.users.FindByID(ctx, demande.RequesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requester")
	}
	snapshot, err := json.Marshal(models.RequesterSnapshot{ID: requester.ID, Email: requester.Email, FullName: requester.FullName})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot requester")
	}
	sum := sha256.Sum256(demande.FinalDocument)
	return &models.ArchiveRecord{
		DemandeID:         demande.ID,
		Reference:         demande.Reference,
		Type:              demande.Type,
		RequesterSnapshot: snapshot,
		FinalStatus:       models.StatusClosed,
		PayloadSnapshot:   demande.Payload,
		Document:          demande.FinalDocument,
		DocumentSHA256:    hex.EncodeToString(sum[:]),
		ClosedBy:          actor.ID,
		ClosedAt:          at,
	}, nil
}

// alreadyClosed makes close idempotent: the existing archive is returned and nothing is written.
func (s *WorkflowService) alreadyClosed(ctx context.Context, demande *models.Demande) (*models.TransitionResult, error) {
	archive, err := s.archives.GetByDemande(ctx, demande.ID)
	if err != nil {
		return nil, notFoundOr(err, "archive record not found", "failed to load archive record")
	}
	return &models.TransitionResult{
		DemandeID: demande.ID,
		Reference: demande.Reference,
		Action:    string(workflow.ActionClose),
		From:      models.StatusClosed,
		Status:    models.StatusClosed,
		Archive:   archive,
	}, nil
}

func (s *WorkflowService) publish(ctx context.Context, event models.TransitionEvent) {
	detached := context.WithoutCancel(ctx)
	for _, l := range s.listeners {
		l.OnTransition(detached, event)
	}
}

func (s *WorkflowService) run(ctx context.Context, demandeID string, actor models.Actor, action workflow.Action, req models.ActionRequest, upload *models.SignatureUpload) (models.DemandeStatus, error) {
	result, err := s.Execute(ctx, demandeID, actor, action, req, upload)
	if err != nil {
		return "", err
	}
	return result.Status, nil
}

// Submit re-enters a returned or incomplete request into field review.
func (s *WorkflowService) Submit(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionSubmit, models.ActionRequest{Comment: comment}, nil)
}

// StartFieldReview marks a request as being examined on the ground.
func (s *WorkflowService) StartFieldReview(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionStartFieldReview, models.ActionRequest{Comment: comment}, nil)
}

// ValidateField records the field authority's approval.
func (s *WorkflowService) ValidateField(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionValidateField, models.ActionRequest{Comment: comment}, nil)
}

// TransmitToDirectorate forwards a field-validated request.
func (s *WorkflowService) TransmitToDirectorate(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionTransmitToDirectorate, models.ActionRequest{Comment: comment}, nil)
}

// StartDirectorateReview marks a request as under directorate review.
func (s *WorkflowService) StartDirectorateReview(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionStartDirectorateReview, models.ActionRequest{Comment: comment}, nil)
}

// ValidateDirectorate records the directorate's approval.
func (s *WorkflowService) ValidateDirectorate(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionValidateDirectorate, models.ActionRequest{Comment: comment}, nil)
}

// TransmitToMinister forwards a directorate-validated request for signature.
func (s *WorkflowService) TransmitToMinister(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionTransmitToMinister, models.ActionRequest{Comment: comment}, nil)
}

// RequestAdvisory opens an advisory round with the given reviewers.
func (s *WorkflowService) RequestAdvisory(ctx context.Context, demandeID string, actor models.Actor, reviewerIDs []string, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionRequestAdvisory, models.ActionRequest{Comment: comment, ReviewerIDs: reviewerIDs}, nil)
}

// Reassign hands the request to another field authority.
func (s *WorkflowService) Reassign(ctx context.Context, demandeID string, actor models.Actor, assigneeID, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionReassign, models.ActionRequest{Comment: comment, AssigneeID: assigneeID}, nil)
}

// RequestComplement asks the requester for more information.
func (s *WorkflowService) RequestComplement(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionRequestComplement, models.ActionRequest{Comment: comment}, nil)
}

// Return sends the request back to its requester.
func (s *WorkflowService) Return(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionReturn, models.ActionRequest{Comment: comment}, nil)
}

// Sign renders and stores the final authorization. upload may be nil to use
// the signer's stored signature.
func (s *WorkflowService) Sign(ctx context.Context, demandeID string, actor models.Actor, upload *models.SignatureUpload, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionSign, models.ActionRequest{Comment: comment}, upload)
}

// Close archives a signed request.
func (s *WorkflowService) Close(ctx context.Context, demandeID string, actor models.Actor, comment string) (models.DemandeStatus, error) {
	return s.run(ctx, demandeID, actor, workflow.ActionClose, models.ActionRequest{Comment: comment}, nil)
}
