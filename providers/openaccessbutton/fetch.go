package openaccessbutton

import (
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/providers/permissions"
)

// Name identifiziert den Provider in PERMISSION_SOURCES.
const Name = "openaccessbutton"

// Fetcher kapselt die Permission-Abfrage bei der OpenAccessButton-API.
type Fetcher struct {
	*permissions.Fetcher
}

// NewFetcher erstellt einen neuen OpenAccessButton-Fetcher.
func NewFetcher(cfg *config.Config, http permissions.Getter, logger *zap.Logger) *Fetcher {
	return &Fetcher{Fetcher: permissions.NewFetcher(Name, cfg.OpenAccessButtonBaseURL, http, logger)}
}
