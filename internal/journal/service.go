package journal

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tradeledger/pkg/db/models"
	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/angelmondragon/tradeledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
	"github.com/angelmondragon/tradeledger/pkg/logger"
	"github.com/google/uuid"
)

// Service records and lists reconciliation journal entries.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.JournalEntry, error)
	ListByEntity(ctx context.Context, entityType enums.EntityType, entityID string) ([]models.JournalEntry, error)
}

// Recorder is the write half of Service, which reconcilers depend on.
type Recorder interface {
	Record(ctx context.Context, input RecordInput) (*models.JournalEntry, error)
}

// RecordInput captures the immutable data a journal entry requires.
type RecordInput struct {
	EntityType enums.EntityType       `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Type       enums.JournalEventType `json:"type"`
	Amount     int64                  `json:"amount"`
	Metadata   map[string]any         `json:"metadata"`
}

type service struct {
	entries docstore.Store[models.JournalEntry]
}

// NewService wires a journal service with the provided store.
func NewService(entries docstore.Store[models.JournalEntry]) (Service, error) {
	if entries == nil {
		return nil, fmt.Errorf("journal store required")
	}
	return &service{entries: entries}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.JournalEntry, error) {
	if input.EntityType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity type is required")
	}
	if input.EntityID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid journal event type %q", input.Type))
	}

	entry := &models.JournalEntry{
		ID:         uuid.New(),
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Type:       input.Type,
		Amount:     input.Amount,
		Metadata:   input.Metadata,
	}
	if _, err := s.entries.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create journal entry")
	}
	return entry, nil
}

func (s *service) ListByEntity(ctx context.Context, entityType enums.EntityType, entityID string) ([]models.JournalEntry, error) {
	if entityID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entity id is required")
	}
	entries, err := s.entries.FindAll(ctx, docstore.Filter{Equals: map[string]any{
		"entity_type": string(entityType),
		"entity_id":   entityID,
	}}, docstore.FindOptions{Sort: []docstore.Sort{{Field: "created_at"}, {Field: "id"}}})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list journal entries")
	}
	return entries, nil
}

// Note records an entry without failing the caller. The reconciliation it
// describes is already persisted, so a journal write error is only logged.
func Note(ctx context.Context, rec Recorder, logg *logger.Logger, input RecordInput) {
	if rec == nil {
		return
	}
	if _, err := rec.Record(ctx, input); err != nil && logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"journal_type": string(input.Type),
			"error":        err.Error(),
		}), "journal entry not recorded")
	}
}

// NotePartialFailure journals a multi-document operation that stopped midway.
func NotePartialFailure(ctx context.Context, rec Recorder, logg *logger.Logger, entityType enums.EntityType, entityID string, err error) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePartialFailure {
		return
	}
	meta := map[string]any{"message": typed.Message()}
	if details, ok := typed.Details().(pkgerrors.PartialFailureDetails); ok {
		meta["step"] = details.Step
		meta["completed"] = details.Completed
	}
	Note(ctx, rec, logg, RecordInput{
		EntityType: entityType,
		EntityID:   entityID,
		Type:       enums.JournalEventPartialFailure,
		Metadata:   meta,
	})
}
