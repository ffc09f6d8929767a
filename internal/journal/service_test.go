package journal

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/db/dbtest"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(docstore.New[models.JournalEntry](client.DB()))
	require.NoError(t, err)
	return svc
}

func TestRecordAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   "inv-1",
		Type:       enums.JournalEventPaymentRecorded,
		Amount:     400,
		Metadata:   map[string]any{"method": "cash"},
	})
	require.NoError(t, err)
	_, err = svc.Record(ctx, RecordInput{
		EntityType: enums.EntityCustomerInvoice,
		EntityID:   "inv-2",
		Type:       enums.JournalEventInvoiceCreated,
	})
	require.NoError(t, err)

	entries, err := svc.ListByEntity(ctx, enums.EntityCustomerInvoice, "inv-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(400), entries[0].Amount)
	assert.Equal(t, "cash", entries[0].Metadata["method"])
}

func TestRecordValidates(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Record(context.Background(), RecordInput{EntityType: enums.EntityBroker, EntityID: "b", Type: "refund"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Record(context.Background(), RecordInput{EntityType: enums.EntityBroker, Type: enums.JournalEventInvoiceCreated})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = NewService(nil)
	assert.Error(t, err)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, RecordInput) (*models.JournalEntry, error) {
	return nil, errors.New("disk full")
}

func TestNoteLogsInsteadOfFailing(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	Note(context.Background(), failingRecorder{}, logg, RecordInput{Type: enums.JournalEventInvoiceDeleted})
	assert.Contains(t, buf.String(), "journal entry not recorded")

	Note(context.Background(), nil, logg, RecordInput{})
}

func TestNotePartialFailureRecordsStep(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := pkgerrors.PartialFailure("link_broker", []string{"inventory", "create_invoice"}, "inv-9", errors.New("boom"))
	NotePartialFailure(ctx, svc, nil, enums.EntityCustomerInvoice, "inv-9", err)
	NotePartialFailure(ctx, svc, nil, enums.EntityCustomerInvoice, "inv-9", errors.New("not partial"))

	entries, listErr := svc.ListByEntity(ctx, enums.EntityCustomerInvoice, "inv-9")
	require.NoError(t, listErr)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.JournalEventPartialFailure, entries[0].Type)
	assert.Equal(t, "link_broker", entries[0].Metadata["step"])
}
