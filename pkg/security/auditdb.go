package security

import (
	"encoding/json"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// auditRecord is the relational projection of an Event. Details are kept
// as the original JSON so the table stays schema-stable as details vary.
type auditRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Timestamp string `gorm:"index"`
	Level     string `gorm:"index"`
	EventType string `gorm:"index"`
	ClientID  string `gorm:"index"`
	Endpoint  string
	Message   string
	Details   string
}

func (auditRecord) TableName() string { return "security_events" }

type auditDB struct {
	db *gorm.DB
}

// OpenAuditDB opens (creating if needed) the embedded audit database used
// as an optional query-friendly sink alongside the JSON-lines log.
func OpenAuditDB(path string) (*auditDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.AutoMigrate(&auditRecord{}); err != nil {
		return nil, fmt.Errorf("migrating audit database: %w", err)
	}
	return &auditDB{db: db}, nil
}

func (a *auditDB) insert(event Event) error {
	var details string
	if event.Details != nil {
		raw, err := json.Marshal(event.Details)
		if err == nil {
			details = string(raw)
		}
	}
	return a.db.Create(&auditRecord{
		Timestamp: event.Timestamp,
		Level:     event.Level.String(),
		EventType: event.EventType,
		ClientID:  event.ClientID,
		Endpoint:  event.Endpoint,
		Message:   event.Message,
		Details:   details,
	}).Error
}

// Count returns the number of stored events, optionally filtered by type.
// Used by operational tooling and tests.
func (a *auditDB) Count(eventType string) (int64, error) {
	q := a.db.Model(&auditRecord{})
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}
