package brokers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/lock"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/angelmondragon/tradeledger/pkg/pagination"
	"github.com/google/uuid"
)

// Registry stores brokers and the broker-side list of linked invoices.
type Registry interface {
	Create(ctx context.Context, input CreateBrokerInput) (*models.Broker, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Broker, error)
	List(ctx context.Context, input ListInput) (*pagination.Page[models.Broker], error)
	Link(ctx context.Context, brokerID, invoiceID uuid.UUID) error
	Unlink(ctx context.Context, brokerID, invoiceID uuid.UUID) error
}

// CreateBrokerInput describes a new broker.
type CreateBrokerInput struct {
	Name                     string   `json:"name" validate:"required"`
	Phone                    string   `json:"phone,omitempty"`
	DefaultCommissionPercent *float64 `json:"defaultCommissionPercent,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// ListInput pages through brokers, optionally filtered by name.
type ListInput struct {
	pagination.Params
	Search string
}

var sortFields = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
}

type registry struct {
	brokers docstore.Store[models.Broker]
	locks   lock.Locker
	logg    *logger.Logger
}

// NewRegistry builds the broker registry.
func NewRegistry(brokers docstore.Store[models.Broker], locks lock.Locker, logg *logger.Logger) (Registry, error) {
	if brokers == nil {
		return nil, fmt.Errorf("broker store required")
	}
	if locks == nil {
		return nil, fmt.Errorf("locker required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &registry{brokers: brokers, locks: locks, logg: logg}, nil
}

func (r *registry) Create(ctx context.Context, input CreateBrokerInput) (*models.Broker, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker name is required")
	}
	if p := input.DefaultCommissionPercent; p != nil && (*p < 0 || *p > 100) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission percent must be between 0 and 100")
	}
	broker := &models.Broker{
		ID:                       uuid.New(),
		Name:                     name,
		Phone:                    strings.TrimSpace(input.Phone),
		DefaultCommissionPercent: input.DefaultCommissionPercent,
		InvoiceIDs:               []string{},
	}
	if _, err := r.brokers.Create(ctx, broker); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create broker")
	}
	return broker, nil
}

func (r *registry) Get(ctx context.Context, id uuid.UUID) (*models.Broker, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broker id is required")
	}
	broker, err := r.brokers.FindByID(ctx, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("broker %s not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load broker")
	}
	return broker, nil
}

func (r *registry) List(ctx context.Context, input ListInput) (*pagination.Page[models.Broker], error) {
	opts, err := input.FindOptions(sortFields, docstore.Sort{Field: "name"})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sort")
	}
	filter := docstore.Filter{}
	if search := strings.TrimSpace(input.Search); search != "" {
		filter.Contains = map[string]string{"name": search}
	}
	brokers, err := r.brokers.FindAll(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list brokers")
	}
	total, err := r.brokers.Count(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count brokers")
	}
	if brokers == nil {
		brokers = []models.Broker{}
	}
	return &pagination.Page[models.Broker]{Items: brokers, Total: total, Skip: opts.Skip, Limit: opts.Limit}, nil
}

// Link adds invoiceID to the broker's invoice list. Linking twice is a no-op.
func (r *registry) Link(ctx context.Context, brokerID, invoiceID uuid.UUID) error {
	return r.mutateLinks(ctx, brokerID, func(ids []string) ([]string, bool) {
		if slices.Contains(ids, invoiceID.String()) {
			return ids, false
		}
		return append(ids, invoiceID.String()), true
	})
}

// Unlink removes invoiceID from the broker's invoice list. A broker that no
// longer exists has nothing to unlink.
func (r *registry) Unlink(ctx context.Context, brokerID, invoiceID uuid.UUID) error {
	err := r.mutateLinks(ctx, brokerID, func(ids []string) ([]string, bool) {
		out := slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == invoiceID.String() })
		return out, len(out) != len(ids)
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		r.logg.Warn(r.logg.WithEntity(ctx, enums.EntityBroker.String(), brokerID.String()), "broker missing; invoice link not removed")
		return nil
	}
	return err
}

func (r *registry) mutateLinks(ctx context.Context, brokerID uuid.UUID, mutate func([]string) ([]string, bool)) error {
	release, err := r.locks.Acquire(ctx, lock.Key(enums.EntityBroker, brokerID.String()))
	if err != nil {
		return err
	}
	defer release()

	broker, err := r.Get(ctx, brokerID)
	if err != nil {
		return err
	}
	ids, changed := mutate(broker.InvoiceIDs)
	if !changed {
		return nil
	}
	if ids == nil {
		ids = []string{}
	}
	broker.InvoiceIDs = ids
	if _, err := r.brokers.Replace(ctx, broker); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update broker invoice links")
	}
	return nil
}
