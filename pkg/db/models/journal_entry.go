package models

import (
	"time"

	"github.com/angelmondragon/tradeledger/pkg/enums"
	"github.com/google/uuid"
)

// JournalEntry records an immutable reconciliation event.
type JournalEntry struct {
	ID         uuid.UUID              `gorm:"column:id;primaryKey" json:"id"`
	EntityType enums.EntityType       `gorm:"column:entity_type;not null" json:"entityType"`
	EntityID   string                 `gorm:"column:entity_id;not null;index" json:"entityId"`
	Type       enums.JournalEventType `gorm:"column:type;not null" json:"type"`
	Amount     int64                  `gorm:"column:amount;not null;default:0" json:"amount"`
	Metadata   map[string]any         `gorm:"column:metadata;serializer:json" json:"metadata,omitempty"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (JournalEntry) TableName() string { return "journal_entries" }
