// Package journal keeps an append-only audit trail of lifecycle events in
// SQLite.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

const defaultListLimit = 100

type entryModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	EventID       string         `gorm:"column:event_uuid;uniqueIndex"`
	Kind          string         `gorm:"column:kind;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	OrderID       int64          `gorm:"column:order_id"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (entryModel) TableName() string { return "journal_entries" }

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Symbol    string          `json:"symbol"`
	OrderID   int64           `json:"order_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store writes journal entries through gorm on the pure-Go sqlite driver.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// Open creates or opens the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path is empty")
	}
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// one writer; the engine lock already serializes Record calls.
	sqlDB.SetMaxOpenConns(1)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", Conn: sqlDB}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: gorm: %w", err)
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends one event. A nil payload is stored as an empty object.
func (s *Store) Record(ctx context.Context, kind, symbol string, orderID int64, payload map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("journal: store not initialized")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: encode %s payload: %w", kind, err)
	}
	m := entryModel{
		EventID:       uuid.NewString(),
		Kind:          strings.TrimSpace(kind),
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		OrderID:       orderID,
		Payload:       datatypes.JSON(raw),
		CreatedAtUnix: s.nowFn().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("journal: store not initialized")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var models []entryModel
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(models))
	for _, m := range models {
		out = append(out, Entry{
			ID:        m.EventID,
			Kind:      m.Kind,
			Symbol:    m.Symbol,
			OrderID:   m.OrderID,
			Payload:   json.RawMessage(m.Payload),
			CreatedAt: time.UnixMilli(m.CreatedAtUnix),
		})
	}
	return out, nil
}
