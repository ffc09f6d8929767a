package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceCreateAllocatesIDAndSidecar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.service.Create(ctx, CreateItemInput{
		Name:          "Sona Masoori",
		Quantity:      20,
		NetWeight:     500,
		GrossWeight:   510,
		CostPrice:     38,
		SellingPrice:  45,
		PackagingCost: 12,
		ColdStorage:   &models.ColdStorage{Facility: "North", Chamber: "C2", RentPerUnit: 3},
	})
	require.NoError(t, err)
	assert.True(t, ValidItemID(detail.ID), "id %q", detail.ID)
	require.NotNil(t, detail.Financial)
	assert.Equal(t, int64(12), detail.Financial.PackagingCost)

	got, err := f.service.Get(ctx, detail.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ColdStorage)
	assert.Equal(t, "C2", got.ColdStorage.Chamber)
	assert.Equal(t, float64(20), got.Quantity)
}

func TestServiceCreateRejectsDuplicateAndBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateItemInput{ID: "1234", Name: "Wheat"})
	require.NoError(t, err)

	_, err = f.service.Create(ctx, CreateItemInput{ID: "1234", Name: "Wheat again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.service.Create(ctx, CreateItemInput{ID: "12a4", Name: "Bad"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.service.Create(ctx, CreateItemInput{Name: "Neg", Quantity: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.service.Create(ctx, CreateItemInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceUpdateLeavesStockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, CreateItemInput{ID: "3001", Name: "Toor", Quantity: 4, NetWeight: 40, GrossWeight: 41, SellingPrice: 90})
	require.NoError(t, err)

	name := "Toor Dal"
	price := int64(95)
	packaging := int64(7)
	updated, err := f.service.Update(ctx, created.ID, UpdateItemInput{Name: &name, SellingPrice: &price, PackagingCost: &packaging})
	require.NoError(t, err)
	assert.Equal(t, "Toor Dal", updated.Name)
	assert.Equal(t, int64(95), updated.SellingPrice)
	assert.Equal(t, int64(95), updated.Financial.SellingPrice)
	assert.Equal(t, int64(7), updated.Financial.PackagingCost)
	assert.Equal(t, float64(4), updated.Quantity)

	_, err = f.service.Update(ctx, "9999", UpdateItemInput{Name: &name})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceUpdateRecreatesMissingSidecar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "3002", 1, 1, 1)

	packaging := int64(4)
	updated, err := f.service.Update(ctx, "3002", UpdateItemInput{PackagingCost: &packaging})
	require.NoError(t, err)
	require.NotNil(t, updated.Financial)
	assert.Equal(t, int64(4), updated.Financial.PackagingCost)
}

func TestServiceDeleteRemovesItemAndSidecar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Create(ctx, CreateItemInput{Name: "Chana"})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, created.ID))

	_, err = f.financials.FindByID(ctx, created.ID)
	assert.True(t, docstore.IsNotFound(err))
	_, err = f.service.Get(ctx, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.True(t, pkgerrors.IsCode(f.service.Delete(ctx, created.ID), pkgerrors.CodeNotFound))
}

func TestServiceListSearchAndSort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for id, name := range map[string]string{"1001": "Red Chilli", "1002": "Green Chilli", "1003": "Turmeric"} {
		_, err := f.service.Create(ctx, CreateItemInput{ID: id, Name: name})
		require.NoError(t, err)
	}

	page, err := f.service.List(ctx, ListInput{Params: pagination.Params{Sort: "-name"}, Search: "chilli"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Red Chilli", page.Items[0].Name)
	assert.Equal(t, pagination.DefaultLimit, page.Limit)

	_, err = f.service.List(ctx, ListInput{Params: pagination.Params{Sort: "secret"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIDAllocatorReservesAndFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "1000", 0, 0, 0)

	alloc := newIDAllocator()
	alloc.intn = func(int) int { return 0 } // always proposes 1000

	first, err := alloc.allocate(ctx, f.items)
	require.NoError(t, err)
	assert.Equal(t, "1001", first)

	second, err := alloc.allocate(ctx, f.items)
	require.NoError(t, err)
	assert.Equal(t, "1002", second)

	alloc.release(first)
	third, err := alloc.allocate(ctx, f.items)
	require.NoError(t, err)
	assert.Equal(t, "1001", third)

	now := time.Now()
	alloc.now = func() time.Time { return now.Add(2 * idReservationTTL) }
	fourth, err := alloc.allocate(ctx, f.items)
	require.NoError(t, err)
	assert.Equal(t, "1001", fourth, "expired reservations are reclaimed")
}

func TestValidItemID(t *testing.T) {
	assert.True(t, ValidItemID("0042"))
	assert.False(t, ValidItemID("42"))
	assert.False(t, ValidItemID("12345"))
	assert.False(t, ValidItemID("ab12"))
}
