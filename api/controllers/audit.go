package controllers

import (
	"net/http"

	"github.com/angelmondragon/tradeledger/api/responses"
	"github.com/angelmondragon/tradeledger/internal/audit"
	"github.com/angelmondragon/tradeledger/pkg/logger"
)

// AuditRun reports stored totals and links that disagree with what the
// documents derive to. With repair set, drifted documents are rewritten.
func AuditRun(svc audit.Service, repair bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.Run(r.Context(), audit.Options{Fix: repair})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
