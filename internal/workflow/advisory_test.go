package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/demandes-api/internal/models"
)

func TestParseAdvisoryPolicy(t *testing.T) {
	p, err := ParseAdvisoryPolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyMajority, p)

	p, err = ParseAdvisoryPolicy(" any_favorable ")
	require.NoError(t, err)
	require.Equal(t, PolicyAnyFavorable, p)

	_, err = ParseAdvisoryPolicy("quorum")
	require.Error(t, err)
}

func TestPolicyConclude(t *testing.T) {
	fav, unfav, res, def := models.OpinionFavorable, models.OpinionUnfavorable, models.OpinionReserved, models.OpinionDeferred

	cases := []struct {
		name     string
		opinions []models.OpinionValue
		policy   AdvisoryPolicy
		want     models.AdvisoryOutcome
	}{
		{"majority forward", []models.OpinionValue{fav, fav, unfav}, PolicyMajority, models.AdvisoryOutcomeForward},
		{"majority tie returns", []models.OpinionValue{fav, unfav}, PolicyMajority, models.AdvisoryOutcomeReturn},
		{"majority abstentions ignored", []models.OpinionValue{fav, res, def}, PolicyMajority, models.AdvisoryOutcomeForward},
		{"majority all abstain returns", []models.OpinionValue{res, def}, PolicyMajority, models.AdvisoryOutcomeReturn},
		{"unanimous blocked by one", []models.OpinionValue{fav, fav, unfav}, PolicyUnanimous, models.AdvisoryOutcomeReturn},
		{"unanimous with reserve", []models.OpinionValue{fav, res}, PolicyUnanimous, models.AdvisoryOutcomeForward},
		{"any favorable", []models.OpinionValue{unfav, unfav, fav}, PolicyAnyFavorable, models.AdvisoryOutcomeForward},
		{"any favorable none", []models.OpinionValue{unfav, def}, PolicyAnyFavorable, models.AdvisoryOutcomeReturn},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tally := Count(tc.opinions)
			require.True(t, tally.Complete())
			require.Equal(t, tc.want, tc.policy.Conclude(tally))
		})
	}
}

func TestCountTracksPending(t *testing.T) {
	tally := Count([]models.OpinionValue{models.OpinionPending, models.OpinionFavorable})
	require.False(t, tally.Complete())
	require.Equal(t, 1, tally.Pending)
}

func TestOutcomeAction(t *testing.T) {
	require.Equal(t, ActionAdvisoryForward, OutcomeAction(models.AdvisoryOutcomeForward))
	require.Equal(t, ActionAdvisoryReturn, OutcomeAction(models.AdvisoryOutcomeReturn))
}
