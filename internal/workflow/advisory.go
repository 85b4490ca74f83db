package workflow

import (
	"fmt"
	"strings"

	"github.com/noah-isme/demandes-api/internal/models"
)

// AdvisoryPolicy names an aggregation rule for a concluded board.
type AdvisoryPolicy string

const (
	PolicyMajority     AdvisoryPolicy = "MAJORITY"
	PolicyUnanimous    AdvisoryPolicy = "UNANIMOUS"
	PolicyAnyFavorable AdvisoryPolicy = "ANY_FAVORABLE"
)

// DefaultAdvisoryPolicy is used when configuration leaves the policy empty.
const DefaultAdvisoryPolicy = PolicyMajority

// ParseAdvisoryPolicy validates a configured policy name.
func ParseAdvisoryPolicy(raw string) (AdvisoryPolicy, error) {
	switch AdvisoryPolicy(strings.ToUpper(strings.TrimSpace(raw))) {
	case "":
		return DefaultAdvisoryPolicy, nil
	case PolicyMajority:
		return PolicyMajority, nil
	case PolicyUnanimous:
		return PolicyUnanimous, nil
	case PolicyAnyFavorable:
		return PolicyAnyFavorable, nil
	default:
		return "", fmt.Errorf("unknown advisory policy %q", raw)
	}
}

// Tally counts opinions on a board.
type Tally struct {
	Favorable   int
	Unfavorable int
	Reserved    int
	Deferred    int
	Pending     int
}

// Complete reports whether every reviewer has answered.
func (t Tally) Complete() bool {
	return t.Pending == 0
}

// Count builds a Tally from opinion values.
func Count(opinions []models.OpinionValue) Tally {
	var t Tally
	for _, op := range opinions {
		switch op {
		case models.OpinionFavorable:
			t.Favorable++
		case models.OpinionUnfavorable:
			t.Unfavorable++
		case models.OpinionReserved:
			t.Reserved++
		case models.OpinionDeferred:
			t.Deferred++
		default:
			t.Pending++
		}
	}
	return t
}

// Conclude applies the policy to a complete tally. Reserved and deferred
// opinions abstain under every policy.
func (p AdvisoryPolicy) Conclude(t Tally) models.AdvisoryOutcome {
	forward := false
	switch p {
	case PolicyUnanimous:
		forward = t.Unfavorable == 0 && t.Favorable > 0
	case PolicyAnyFavorable:
		forward = t.Favorable > 0
	default:
		forward = t.Favorable > t.Unfavorable
	}
	if forward {
		return models.AdvisoryOutcomeForward
	}
	return models.AdvisoryOutcomeReturn
}

// OutcomeAction maps a board outcome to the engine action it fires.
func OutcomeAction(outcome models.AdvisoryOutcome) Action {
	if outcome == models.AdvisoryOutcomeForward {
		return ActionAdvisoryForward
	}
	return ActionAdvisoryReturn
}
