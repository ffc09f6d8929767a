package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tradeledger/internal/audit"
	"github.com/angelmondragon/tradeledger/pkg/logger"
)

// AuditJob runs the drift audit and logs each finding. With Fix set the
// stored derived fields are rewritten from their sources.
type AuditJob struct {
	audit audit.Service
	logg  *logger.Logger
	fix   bool
}

func NewAuditJob(svc audit.Service, logg *logger.Logger, fix bool) (*AuditJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AuditJob{audit: svc, logg: logg, fix: fix}, nil
}

func (j *AuditJob) Name() string { return "drift_audit" }

func (j *AuditJob) Run(ctx context.Context) error {
	report, err := j.audit.Run(ctx, audit.Options{Fix: j.fix})
	if err != nil {
		return err
	}
	for _, finding := range report.Findings {
		fctx := j.logg.WithFields(ctx, map[string]any{
			"entity_type": finding.EntityType.String(),
			"entity_id":   finding.EntityID,
			"field":       finding.Field,
			"stored":      finding.Stored,
			"expected":    finding.Expected,
			"repaired":    finding.Repaired,
		})
		j.logg.Warn(fctx, "ledger drift detected")
	}
	summary := j.logg.WithFields(ctx, map[string]any{
		"findings": len(report.Findings),
		"repaired": report.Repaired,
	})
	j.logg.Info(summary, "drift audit finished")
	return nil
}
