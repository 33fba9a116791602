// Package audit records SSH actions in a SQLite database.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event types.
const (
	EventConnectionEstablished = "connection_established"
	EventConnectionFailed      = "connection_failed"
	EventCommandExecution      = "command_execution"
	EventCommandTimeout        = "command_timeout"
	EventTunnelCreated         = "tunnel_created"
	EventFileOperation         = "file_operation"
	EventSessionClosed         = "session_closed"
)

// Record is one audit log row.
type Record struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	EventType  string `gorm:"index"`
	Host       string
	Username   string
	Details    string
	ExitCode   int
	DurationMs int64
	Failed     bool
	CreatedAt  time.Time `gorm:"index"`
}

// TableName keeps the table name stable.
func (Record) TableName() string {
	return "ssh_audit_logs"
}

// Recorder receives audit entries.
type Recorder interface {
	Record(entry Record)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(Record) {}

// Auditor writes entries to the database.
type Auditor struct {
	mu    sync.RWMutex
	db    *gorm.DB
	log   logrus.FieldLogger
	nowFn func() time.Time
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string, log logrus.FieldLogger) (*Auditor, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit db directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return New(db, log)
}

// New uses an existing database handle.
func New(db *gorm.DB, log logrus.FieldLogger) (*Auditor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("auto-migrate audit table: %w", err)
	}
	return &Auditor{db: db, log: log.WithField("component", "audit"), nowFn: time.Now}, nil
}

// Record stores entry. Write failures are logged and otherwise ignored so
// that auditing never fails an action.
func (a *Auditor) Record(entry Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry.ID = 0
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.nowFn()
	}
	if err := a.db.Create(&entry).Error; err != nil {
		a.log.WithError(err).Error("failed to write audit log")
		return
	}
	a.log.WithFields(logrus.Fields{
		"event":   entry.EventType,
		"session": entry.SessionID,
		"host":    entry.Host,
	}).Debug(entry.Details)
}

// QueryOptions filters Query results.
type QueryOptions struct {
	SessionID string
	EventType string
	Since     *time.Time
	Limit     int
}

// Query returns matching entries, newest first.
func (a *Auditor) Query(opts QueryOptions) ([]Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	tx := a.db.Model(&Record{})
	if opts.SessionID != "" {
		tx = tx.Where("session_id = ?", opts.SessionID)
	}
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	var records []Record
	if err := tx.Order("created_at DESC, id DESC").Limit(opts.Limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// PurgeOlderThan deletes entries older than days and returns how many were
// removed.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&Record{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		a.log.Infof("purged %d audit log entries older than %d days", result.RowsAffected, days)
	}
	return result.RowsAffected, nil
}

// Close closes the underlying database.
func (a *Auditor) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
