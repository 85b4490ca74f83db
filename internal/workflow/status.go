package workflow

import (
	"fmt"
	"strings"

	"github.com/noah-isme/demandes-api/internal/models"
)

// legacyStatusAliases maps historical spellings found in imported data onto the
// canonical status. Keys are upper-cased with spaces and dashes folded to '_'.
var legacyStatusAliases = map[string]models.DemandeStatus{
	"TRANSMIS_DG":          models.StatusTransmittedToDirectorate,
	"TRANSMITTED_DG":       models.StatusTransmittedToDirectorate,
	"TRANSMISE_DIRECTION":  models.StatusTransmittedToDirectorate,
	"TRANSMITTED_TO_DG":    models.StatusTransmittedToDirectorate,
	"SOUMISE":              models.StatusSubmitted,
	"EN_EXAMEN_TERRAIN":    models.StatusUnderFieldReview,
	"VALIDEE_TERRAIN":      models.StatusFieldValidated,
	"EN_EXAMEN_DG":         models.StatusUnderDirectorateReview,
	"VALIDEE_DG":           models.StatusDirectorateValidated,
	"TRANSMIS_MINISTRE":    models.StatusTransmittedToMinister,
	"AVIS_CONSULTATIF":     models.StatusPendingAdvisory,
	"EN_ATTENTE_SIGNATURE": models.StatusPendingMinisterSignature,
	"SIGNEE":               models.StatusSigned,
	"CLOTUREE":             models.StatusClosed,
	"RETOURNEE":            models.StatusReturned,
	"COMPLEMENT_DEMANDE":   models.StatusComplementRequested,
	"REAFFECTEE":           models.StatusReassigned,
}

// ParseStatus resolves raw into a canonical status. The second return value is
// true when raw was a legacy alias rather than a canonical name.
func ParseStatus(raw string) (models.DemandeStatus, bool, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return "", false, fmt.Errorf("empty status")
	}
	for _, status := range models.AllStatuses {
		if string(status) == key {
			return status, false, nil
		}
	}
	if status, ok := legacyStatusAliases[key]; ok {
		return status, true, nil
	}
	return "", false, fmt.Errorf("unknown status %q", raw)
}

// ValidStatus reports whether s is a canonical status.
func ValidStatus(s models.DemandeStatus) bool {
	for _, status := range models.AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}
