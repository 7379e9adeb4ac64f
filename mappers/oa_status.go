package mappers

import (
	"strings"

	"oa-workflow/models"
)

// OAStatus maps Unpaywall's oa_status to the stored status.
func OAStatus(raw string) models.OAStatus {
	switch s := models.OAStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case models.OAStatusGold, models.OAStatusHybrid, models.OAStatusGreen, models.OAStatusBronze, models.OAStatusClosed:
		return s
	}
	return models.OAStatusUnknown
}
