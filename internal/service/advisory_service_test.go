package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/demandes-api/internal/models"
	"github.com/noah-isme/demandes-api/internal/workflow"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

func newAdvisoryFixture(t *testing.T, policy workflow.AdvisoryPolicy) (*memStore, *WorkflowService, *AdvisoryService, string) {
	t.Helper()
	store := newMemStore()
	engine := NewWorkflowService(WorkflowServiceParams{
		Demandes:  store,
		Commits:   store,
		Archives:  store,
		Users:     store,
		Documents: &stubRenderer{},
		Policy:    policy,
	})
	advisory := NewAdvisoryService(store, store, engine, nil, nil)
	d := store.seed(models.StatusTransmittedToMinister)
	_, err := engine.RequestAdvisory(context.Background(), d.ID, minister, []string{reviewerAID, reviewerBID}, "")
	require.NoError(t, err)
	return store, engine, advisory, d.ID
}

func TestAdvisoryFavorableRoundForwards(t *testing.T) {
	ctx := context.Background()
	store, _, advisory, id := newAdvisoryFixture(t, workflow.PolicyMajority)

	res, err := advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable, Observations: " ok "})
	require.NoError(t, err)
	assert.False(t, res.Concluded)
	assert.Equal(t, models.StatusPendingAdvisory, res.Status)
	assert.Equal(t, "ok", res.Opinion.Observations)

	res, err = advisory.RecordOpinion(ctx, id, reviewerB, models.RecordOpinionRequest{Opinion: models.OpinionReserved})
	require.NoError(t, err)
	assert.True(t, res.Concluded)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, models.AdvisoryOutcomeForward, *res.Outcome)
	assert.Equal(t, models.StatusPendingMinisterSignature, res.Status)
	assert.Equal(t, models.StatusPendingMinisterSignature, store.status(id))

	trail := store.trail(id)
	require.Len(t, trail, 2)
	assert.Equal(t, string(workflow.ActionAdvisoryForward), trail[1].Action)
	assert.Equal(t, models.RoleSystem, trail[1].ActorRole)

	rounds, err := advisory.Rounds(ctx, id, minister)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.False(t, rounds[0].Board.Open())
}

func TestAdvisoryTieReturnsUnderMajority(t *testing.T) {
	ctx := context.Background()
	store, _, advisory, id := newAdvisoryFixture(t, workflow.PolicyMajority)

	_, err := advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	require.NoError(t, err)
	res, err := advisory.RecordOpinion(ctx, id, reviewerB, models.RecordOpinionRequest{Opinion: models.OpinionUnfavorable})
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, models.AdvisoryOutcomeReturn, *res.Outcome)
	assert.Equal(t, models.StatusUnderDirectorateReview, store.status(id))
}

func TestAdvisoryAnyFavorablePolicyIsFrozenOnBoard(t *testing.T) {
	ctx := context.Background()
	store, _, advisory, id := newAdvisoryFixture(t, workflow.PolicyAnyFavorable)

	_, err := advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	require.NoError(t, err)
	_, err = advisory.RecordOpinion(ctx, id, reviewerB, models.RecordOpinionRequest{Opinion: models.OpinionUnfavorable})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingMinisterSignature, store.status(id))
}

func TestAdvisoryOpinionErrors(t *testing.T) {
	ctx := context.Background()
	store, _, advisory, id := newAdvisoryFixture(t, workflow.PolicyMajority)

	_, err := advisory.RecordOpinion(ctx, id, minister, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	outsider := models.Actor{ID: inactiveRvID, Role: models.RoleAdvisoryBoardMember}
	_, err = advisory.RecordOpinion(ctx, id, outsider, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionPending})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionDeferred})
	require.NoError(t, err)
	_, err = advisory.RecordOpinion(ctx, id, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = advisory.RecordOpinion(ctx, "00000000-0000-4000-8000-000000000000", reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	other := store.seed(models.StatusSubmitted)
	_, err = advisory.RecordOpinion(ctx, other.ID, reviewerA, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	// opinions are not transitions
	assert.Len(t, store.trail(id), 1)
}

func TestAdvisoryConcurrentLastOpinionsAdvanceOnce(t *testing.T) {
	ctx := context.Background()
	store, _, advisory, id := newAdvisoryFixture(t, workflow.PolicyMajority)

	var g errgroup.Group
	for _, reviewer := range []models.Actor{reviewerA, reviewerB} {
		g.Go(func() error {
			_, err := advisory.RecordOpinion(ctx, id, reviewer, models.RecordOpinionRequest{Opinion: models.OpinionFavorable})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, models.StatusPendingMinisterSignature, store.status(id))
	assert.Len(t, store.trail(id), 2)
}

func TestAdvisoryReconcile(t *testing.T) {
	ctx := context.Background()
	store, engine, advisory, id := newAdvisoryFixture(t, workflow.PolicyMajority)

	_, err := advisory.Reconcile(ctx, id, admin)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	// simulate opinions stored without a conclusion
	board, err := store.OpenBoard(ctx, id)
	require.NoError(t, err)
	opinions, err := store.ListOpinions(ctx, board.ID)
	require.NoError(t, err)
	for _, op := range opinions {
		require.NoError(t, store.RecordOpinion(ctx, op.ID, models.OpinionUnfavorable, "", board.CreatedAt))
	}

	_, err = advisory.Reconcile(ctx, id, reviewerA)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	res, err := advisory.Reconcile(ctx, id, director)
	require.NoError(t, err)
	assert.True(t, res.Concluded)
	assert.Equal(t, models.StatusUnderDirectorateReview, res.Status)

	_, err = engine.RequestAdvisory(ctx, id, director, []string{reviewerBID}, "second look")
	require.NoError(t, err)
	rounds, err := advisory.Rounds(ctx, id, director)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 2, rounds[1].Board.Round)
	assert.Len(t, rounds[1].Opinions, 1)
}
