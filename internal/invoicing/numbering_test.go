package invoicing

import (
	"context"
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/db/dbtest"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextNumber(t *testing.T) {
	assert.Equal(t, "ATC-0001", NextNumber("ATC-", nil))
	assert.Equal(t, "ATC-0008", NextNumber("ATC-", []string{"ATC-0002", "ATC-0007", "INV-0042", "ATC-draft"}))
	assert.Equal(t, "INV-10000", NextNumber("INV-", []string{"INV-9999"}))
}

func TestNextFromStore(t *testing.T) {
	client := dbtest.Open(t)
	store := docstore.New[models.CommissionSheet](client.DB())
	ctx := context.Background()

	for _, no := range []string{"ATC-0001", "ATC-0004"} {
		_, err := store.Create(ctx, &models.CommissionSheet{
			ID:             uuid.New(),
			InvoiceNo:      no,
			CommissionerID: uuid.New(),
			SheetDate:      now,
			Status:         enums.SheetStatusNotPaid,
		})
		require.NoError(t, err)
	}

	next, err := NextFromStore(ctx, store, "ATC-", func(s models.CommissionSheet) string { return s.InvoiceNo })
	require.NoError(t, err)
	assert.Equal(t, "ATC-0005", next)
}
