package oaworks

import (
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/providers/permissions"
)

// Name identifiziert den Provider in PERMISSION_SOURCES.
const Name = "oaworks"

// Fetcher kapselt die Permission-Abfrage bei der OA.Works-API, dem Nachfolger von OpenAccessButton.
type Fetcher struct {
	*permissions.Fetcher
}

// NewFetcher erstellt einen neuen OA.Works-Fetcher.
func NewFetcher(cfg *config.Config, http permissions.Getter, logger *zap.Logger) *Fetcher {
	return &Fetcher{Fetcher: permissions.NewFetcher(Name, cfg.OAWorksBaseURL, http, logger)}
}
