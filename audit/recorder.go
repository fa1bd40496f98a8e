// Package audit persists emitted ledger events to a local database so
// operators can reconstruct the full operation history after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"meritlend/core/events"
	"meritlend/core/types"
)

// EventRecord is the persisted form of a ledger event.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Type       string `gorm:"size:64;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Recorder writes every emitted event to the audit database. It satisfies the
// events.Emitter interface so it can be attached directly to the engines.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open initialises the audit database at the supplied path and runs the schema
// migration.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger}, nil
}

// Emit persists the event. Failures are logged rather than propagated: the
// ledger operation has already committed and must not be unwound by an audit
// sink error.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.db == nil || evt == nil {
		return
	}
	record := EventRecord{Type: evt.EventType()}
	if payload := eventPayload(evt); payload != nil {
		encoded, err := json.Marshal(payload.Attributes)
		if err != nil {
			r.logger.Error("audit: encode event attributes", "type", record.Type, "error", err)
			return
		}
		record.Attributes = string(encoded)
	}
	if err := r.db.Create(&record).Error; err != nil {
		r.logger.Error("audit: persist event", "type", record.Type, "error", err)
	}
}

// eventPayload unwraps the typed payload carried by engine event wrappers.
func eventPayload(evt events.Event) *types.Event {
	if typed, ok := evt.(*types.Event); ok {
		return typed
	}
	if wrapper, ok := evt.(interface{ Event() *types.Event }); ok {
		return wrapper.Event()
	}
	return nil
}

// Recent returns the newest events up to the supplied limit, most recent
// first.
func (r *Recorder) Recent(limit int) ([]EventRecord, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("audit: recorder not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []EventRecord
	if err := r.db.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	return records, nil
}

// ByType returns the newest events of a single type up to the supplied limit.
func (r *Recorder) ByType(eventType string, limit int) ([]EventRecord, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("audit: recorder not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []EventRecord
	if err := r.db.Where("type = ?", eventType).Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	return records, nil
}
