package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/repository"
	"github.com/noah-isme/demandes-api/internal/workflow"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

type advisoryStore interface {
	OpenBoard(ctx context.Context, demandeID string) (*models.AdvisoryBoard, error)
	ListBoards(ctx context.Context, demandeID string) ([]models.AdvisoryBoard, error)
	ListOpinions(ctx context.Context, boardID string) ([]models.AdvisoryOpinion, error)
	FindOpinion(ctx context.Context, boardID, reviewerID string) (*models.AdvisoryOpinion, error)
	RecordOpinion(ctx context.Context, opinionID string, value models.OpinionValue, observations string, at time.Time) error
}

type advisoryConcluder interface {
	ConcludeAdvisory(ctx context.Context, demandeID string, board models.AdvisoryBoard, outcome models.AdvisoryOutcome) (*models.TransitionResult, error)
}

// AdvisoryService collects reviewer opinions and concludes boards once every
// reviewer has answered.
type AdvisoryService struct {
	demandes  engineDemandeReader
	store     advisoryStore
	engine    advisoryConcluder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdvisoryService constructs the advisory service.
func NewAdvisoryService(demandes engineDemandeReader, store advisoryStore, engine advisoryConcluder, validate *validator.Validate, logger *zap.Logger) *AdvisoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdvisoryService{
		demandes:  demandes,
		store:     store,
		engine:    engine,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordOpinion stores the calling reviewer's opinion on the open board. The
// last opinion of a round triggers the board conclusion.
func (s *AdvisoryService) RecordOpinion(ctx context.Context, demandeID string, actor models.Actor, req models.RecordOpinionRequest) (*models.OpinionResult, error) {
	if actor.Role != models.RoleAdvisoryBoardMember {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only advisory board members record opinions")
	}
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if demande.Status != models.StatusPendingAdvisory {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is not awaiting advisory opinions")
	}
	board, err := s.store.OpenBoard(ctx, demande.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no open advisory round")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advisory board")
	}
	slot, err := s.store.FindOpinion(ctx, board.ID, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "reviewer is not on this advisory board")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load opinion")
	}
	if slot.Opinion.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "opinion already recorded")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid opinion")
	}

	at := s.now().UTC()
	observations := strings.TrimSpace(req.Observations)
	if err := s.store.RecordOpinion(ctx, slot.ID, req.Opinion, observations, at); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "opinion already recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record opinion")
	}
	slot.Opinion = req.Opinion
	slot.Observations = observations
	slot.UpdatedAt = at

	result := &models.OpinionResult{Opinion: *slot, Status: demande.Status}
	concluded, outcome, status, err := s.concludeIfComplete(ctx, demande.ID, *board)
	if err != nil {
		return nil, err
	}
	result.Concluded = concluded
	result.Outcome = outcome
	if status != "" {
		result.Status = status
	}
	return result, nil
}

// Reconcile concludes an open board whose opinions are all recorded. It
// recovers rounds whose conclusion failed after the last opinion was stored.
func (s *AdvisoryService) Reconcile(ctx context.Context, demandeID string, actor models.Actor) (*models.OpinionResult, error) {
	if actor.Role != models.RoleAdministrator && actor.Role != models.RoleGeneralDirectorate {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not reconcile advisory rounds")
	}
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if demande.Status != models.StatusPendingAdvisory {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is not awaiting advisory opinions")
	}
	board, err := s.store.OpenBoard(ctx, demande.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "no open advisory round")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advisory board")
	}
	concluded, outcome, status, err := s.concludeIfComplete(ctx, demande.ID, *board)
	if err != nil {
		return nil, err
	}
	if !concluded {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "advisory round still has pending opinions")
	}
	return &models.OpinionResult{Concluded: true, Outcome: outcome, Status: status}, nil
}

func (s *AdvisoryService) concludeIfComplete(ctx context.Context, demandeID string, board models.AdvisoryBoard) (bool, *models.AdvisoryOutcome, models.DemandeStatus, error) {
	opinions, err := s.store.ListOpinions(ctx, board.ID)
	if err != nil {
		return false, nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opinions")
	}
	values := make([]models.OpinionValue, 0, len(opinions))
	for _, op := range opinions {
		values = append(values, op.Opinion)
	}
	tally := workflow.Count(values)
	if len(values) == 0 || !tally.Complete() {
		return false, nil, "", nil
	}

	policy, err := workflow.ParseAdvisoryPolicy(board.Policy)
	if err != nil {
		policy = workflow.DefaultAdvisoryPolicy
	}
	outcome := policy.Conclude(tally)
	result, err := s.engine.ConcludeAdvisory(ctx, demandeID, board, outcome)
	if err != nil {
		// A concurrent final opinion already concluded the round.
		if errors.Is(err, appErrors.ErrInvalidTransition) {
			current, loadErr := s.demandes.GetByID(ctx, demandeID)
			if loadErr != nil {
				return false, nil, "", notFoundOr(loadErr, "request not found", "failed to load request")
			}
			return true, &outcome, current.Status, nil
		}
		s.logger.Error("advisory conclusion failed",
			zap.String("demande_id", demandeID),
			zap.String("board_id", board.ID),
			zap.Error(err),
		)
		return false, nil, "", err
	}
	s.logger.Info("advisory round concluded",
		zap.String("demande_id", demandeID),
		zap.Int("round", board.Round),
		zap.String("policy", string(policy)),
		zap.String("outcome", string(outcome)),
	)
	return true, &outcome, result.Status, nil
}

// Rounds lists every advisory round of a request with its opinions.
func (s *AdvisoryService) Rounds(ctx context.Context, demandeID string, actor models.Actor) ([]models.AdvisoryRound, error) {
	demande, err := s.demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, notFoundOr(err, "request not found", "failed to load request")
	}
	if err := ensureReadable(actor, demande); err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoards(ctx, demande.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list advisory rounds")
	}
	rounds := make([]models.AdvisoryRound, 0, len(boards))
	for _, board := range boards {
		opinions, err := s.store.ListOpinions(ctx, board.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list opinions")
		}
		if opinions == nil {
			opinions = []models.AdvisoryOpinion{}
		}
		rounds = append(rounds, models.AdvisoryRound{Board: board, Opinions: opinions})
	}
	return rounds, nil
}
