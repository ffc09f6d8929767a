package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/tradeledger/internal/audit"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/stretchr/testify/require"
)

type stubAudit struct {
	opts   []audit.Options
	report *audit.Report
	err    error
}

func (s *stubAudit) Run(_ context.Context, opts audit.Options) (*audit.Report, error) {
	s.opts = append(s.opts, opts)
	return s.report, s.err
}

func TestAuditJobPassesFixFlag(t *testing.T) {
	stub := &stubAudit{report: &audit.Report{Findings: []audit.Finding{{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   "abc",
		Field:      "remainingAmount",
		Stored:     int64(10),
		Expected:   int64(0),
		Repaired:   true,
	}}, Repaired: 1}}
	job, err := NewAuditJob(stub, logger.New(logger.Options{ServiceName: "audit-job-test"}), true)
	require.NoError(t, err)

	require.Equal(t, "drift_audit", job.Name())
	require.NoError(t, job.Run(context.Background()))
	require.Len(t, stub.opts, 1)
	require.True(t, stub.opts[0].Fix)
}

func TestAuditJobSurfacesAuditErrors(t *testing.T) {
	stub := &stubAudit{err: errors.New("db down")}
	job, err := NewAuditJob(stub, logger.New(logger.Options{ServiceName: "audit-job-test"}), false)
	require.NoError(t, err)

	require.EqualError(t, job.Run(context.Background()), "db down")
}

func TestNewAuditJobRequiresService(t *testing.T) {
	_, err := NewAuditJob(nil, logger.New(logger.Options{ServiceName: "x"}), false)
	require.Error(t, err)
}
