package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/db/dbtest"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client     *db.Client
	items      *docstore.Collection[models.InventoryItem]
	financials *docstore.Collection[models.InventoryFinancial]
	ledger     *Ledger
	service    Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
	locks := lock.NewLocal()

	items := docstore.New[models.InventoryItem](client.DB())
	financials := docstore.New[models.InventoryFinancial](client.DB())

	ledger, err := NewLedger(client, locks, logg, nil)
	require.NoError(t, err)
	svc, err := NewService(items, financials, locks, logg, nil)
	require.NoError(t, err)

	return &fixture{client: client, items: items, financials: financials, ledger: ledger, service: svc}
}

func (f *fixture) seed(t *testing.T, id string, qty, net, gross float64) {
	t.Helper()
	_, err := f.items.Create(context.Background(), &models.InventoryItem{
		ID:          id,
		Name:        "lot " + id,
		Quantity:    qty,
		NetWeight:   net,
		GrossWeight: gross,
	})
	require.NoError(t, err)
}

func (f *fixture) levels(t *testing.T, id string) Levels {
	t.Helper()
	item, err := f.items.FindByID(context.Background(), id)
	require.NoError(t, err)
	return Levels{Quantity: item.Quantity, NetWeight: item.NetWeight, GrossWeight: item.GrossWeight}
}
