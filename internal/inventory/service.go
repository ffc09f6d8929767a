package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/tradeledger/pkg/db"
	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/metrics"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
)

var sortFields = map[string]string{
	"id":          "id",
	"name":        "name",
	"quantity":    "quantity",
	"netWeight":   "net_weight",
	"grossWeight": "gross_weight",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// Service exposes inventory item operations. Stock levels of existing items
// are changed only through the Ledger.
type Service interface {
	Create(ctx context.Context, input CreateItemInput) (*ItemDetail, error)
	Get(ctx context.Context, id string) (*ItemDetail, error)
	List(ctx context.Context, input ListInput) (*pagination.Page[models.InventoryItem], error)
	Update(ctx context.Context, id string, input UpdateItemInput) (*ItemDetail, error)
	Delete(ctx context.Context, id string) error
	AllocateID(ctx context.Context) (string, error)
	ReleaseID(id string)
}

// CreateItemInput describes a new item. Opening stock may be set here; it
// is the only stock write outside the ledger.
type CreateItemInput struct {
	ID            string              `json:"id,omitempty"`
	Name          string              `json:"name" validate:"required"`
	Quantity      float64             `json:"quantity" validate:"gte=0"`
	NetWeight     float64             `json:"netWeight" validate:"gte=0"`
	GrossWeight   float64             `json:"grossWeight" validate:"gte=0"`
	CostPrice     int64               `json:"costPrice" validate:"gte=0"`
	SellingPrice  int64               `json:"sellingPrice" validate:"gte=0"`
	PackagingCost int64               `json:"packagingCost" validate:"gte=0"`
	ColdStorage   *models.ColdStorage `json:"coldStorage,omitempty"`
}

// UpdateItemInput carries the mutable metadata of an item. Nil fields are
// left unchanged.
type UpdateItemInput struct {
	Name          *string             `json:"name,omitempty"`
	CostPrice     *int64              `json:"costPrice,omitempty" validate:"omitempty,gte=0"`
	SellingPrice  *int64              `json:"sellingPrice,omitempty" validate:"omitempty,gte=0"`
	PackagingCost *int64              `json:"packagingCost,omitempty" validate:"omitempty,gte=0"`
	ColdStorage   *models.ColdStorage `json:"coldStorage,omitempty"`
}

// ListInput pages through items, optionally filtered by name.
type ListInput struct {
	pagination.Params
	Search string
}

// ItemDetail is an item joined with its financial sidecar.
type ItemDetail struct {
	models.InventoryItem
	Financial *models.InventoryFinancial `json:"financial,omitempty"`
}

type service struct {
	items      docstore.Store[models.InventoryItem]
	financials docstore.Store[models.InventoryFinancial]
	locks      lock.Locker
	ids        *idAllocator
	logg       *logger.Logger
	metrics    *metrics.ReconcileMetrics
}

// NewService builds the inventory item service.
func NewService(items docstore.Store[models.InventoryItem], financials docstore.Store[models.InventoryFinancial], locks lock.Locker, logg *logger.Logger, m *metrics.ReconcileMetrics) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("inventory item store required")
	}
	if financials == nil {
		return nil, fmt.Errorf("inventory financial store required")
	}
	if locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		items:      items,
		financials: financials,
		locks:      locks,
		ids:        newIDAllocator(),
		logg:       logg,
		metrics:    m,
	}, nil
}

func (s *service) AllocateID(ctx context.Context) (string, error) {
	return s.ids.allocate(ctx, s.items)
}

// ReleaseID drops the reservation of an allocated id once it is written or
// abandoned.
func (s *service) ReleaseID(id string) {
	s.ids.release(id)
}

func (s *service) Create(ctx context.Context, input CreateItemInput) (_ *ItemDetail, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("inventory_create", started, err) }()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		if id, err = s.AllocateID(ctx); err != nil {
			return nil, err
		}
		defer s.ReleaseID(id)
	} else if !ValidItemID(id) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id must be 4 digits")
	}

	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityInventoryItem, id))
	if err != nil {
		return nil, err
	}
	defer release()

	item := &models.InventoryItem{
		ID:           id,
		Name:         strings.TrimSpace(input.Name),
		Quantity:     input.Quantity,
		NetWeight:    input.NetWeight,
		GrossWeight:  input.GrossWeight,
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		ColdStorage:  input.ColdStorage,
	}
	if _, err := s.items.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("inventory item %s already exists", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
	}

	financial := &models.InventoryFinancial{
		ItemID:        id,
		CostPrice:     input.CostPrice,
		SellingPrice:  input.SellingPrice,
		PackagingCost: input.PackagingCost,
	}
	if _, err := s.financials.Create(ctx, financial); err != nil {
		return nil, pkgerrors.PartialFailure("create_financial", []string{"create_item"}, id, err)
	}

	s.logg.Info(s.logg.WithEntity(ctx, enums.EntityInventoryItem.String(), id), "inventory item created")
	return &ItemDetail{InventoryItem: *item, Financial: financial}, nil
}

func (s *service) Get(ctx context.Context, id string) (*ItemDetail, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &ItemDetail{InventoryItem: *item}
	financial, err := s.financials.FindByID(ctx, id)
	switch {
	case err == nil:
		detail.Financial = financial
	case docstore.IsNotFound(err):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory financials")
	}
	return detail, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*pagination.Page[models.InventoryItem], error) {
	opts, err := input.FindOptions(sortFields, docstore.Sort{Field: "id"})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"name": search}
	}

	items, err := s.items.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory items")
	}
	total, err := s.items.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count inventory items")
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	return &pagination.Page[models.InventoryItem]{Items: items, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

func (s *service) Update(ctx context.Context, id string, input UpdateItemInput) (_ *ItemDetail, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("inventory_update", started, err) }()

	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}
	for _, price := range []*int64{input.CostPrice, input.SellingPrice, input.PackagingCost} {
		if price != nil && *price < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "prices cannot be negative")
		}
	}

	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityInventoryItem, id))
	if err != nil {
		return nil, err
	}
	defer release()

	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if input.Name != nil {
		item.Name = strings.TrimSpace(*input.Name)
		changed = true
	}
	if input.CostPrice != nil {
		item.CostPrice = *input.CostPrice
		changed = true
	}
	if input.SellingPrice != nil {
		item.SellingPrice = *input.SellingPrice
		changed = true
	}
	if input.ColdStorage != nil {
		item.ColdStorage = input.ColdStorage
		changed = true
	}
	// quantities are rewritten unchanged; the item lock keeps the ledger out
	completed := []string{}
	if changed {
		if _, err := s.items.Replace(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory item")
		}
		completed = append(completed, "update_item")
	}

	if err := s.syncFinancial(ctx, id, input); err != nil {
		if len(completed) > 0 {
			return nil, pkgerrors.PartialFailure("update_financial", completed, id, err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update inventory financials")
	}
	return s.Get(ctx, id)
}

func (s *service) syncFinancial(ctx context.Context, id string, input UpdateItemInput) error {
	fields := map[string]any{}
	if input.CostPrice != nil {
		fields["cost_price"] = *input.CostPrice
	}
	if input.SellingPrice != nil {
		fields["selling_price"] = *input.SellingPrice
	}
	if input.PackagingCost != nil {
		fields["packaging_cost"] = *input.PackagingCost
	}
	if len(fields) == 0 {
		return nil
	}
	ok, err := s.financials.Update(ctx, id, fields)
	if err != nil || ok {
		return err
	}

	// sidecar missing: recreate it from the item
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return err
	}
	financial := &models.InventoryFinancial{ItemID: id, CostPrice: item.CostPrice, SellingPrice: item.SellingPrice}
	if input.PackagingCost != nil {
		financial.PackagingCost = *input.PackagingCost
	}
	_, err = s.financials.Create(ctx, financial)
	return err
}

func (s *service) Delete(ctx context.Context, id string) (err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("inventory_delete", started, err) }()

	release, err := s.locks.Acquire(ctx, lock.Key(enums.EntityInventoryItem, id))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if _, err := s.financials.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete inventory financials")
	}
	if _, err := s.items.Delete(ctx, id); err != nil {
		return pkgerrors.PartialFailure("delete_item", []string{"delete_financial"}, id, err)
	}
	s.logg.Info(s.logg.WithEntity(ctx, enums.EntityInventoryItem.String(), id), "inventory item deleted")
	return nil
}

func (s *service) load(ctx context.Context, id string) (*models.InventoryItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id is required")
	}
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("inventory item %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return item, nil
}

func validateCreate(input CreateItemInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	for _, v := range []float64{input.Quantity, input.NetWeight, input.GrossWeight} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return pkgerrors.New(pkgerrors.CodeValidation, "opening stock must be a non-negative number")
		}
	}
	if input.CostPrice < 0 || input.SellingPrice < 0 || input.PackagingCost < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "prices cannot be negative")
	}
	return nil
}
