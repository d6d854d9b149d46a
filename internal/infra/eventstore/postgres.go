// Package eventstore is the durable adapter for ports.RoomEventStore: a
// Postgres-backed append-only log, one row per room event, guarded by a
// circuit breaker so a struggling database degrades the audit trail rather
// than the live session.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/pokerroom/server/internal/core/domain"
)

// eventRecord is the GORM model backing one row of a room's event log.
type eventRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    string    `gorm:"column:room_id;index;not null"`
	Ordinal   int       `gorm:"column:ordinal;not null"`
	Kind      string    `gorm:"column:kind;not null"`
	Payload   string    `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (eventRecord) TableName() string { return "room_events" }

// Postgres is the ports.RoomEventStore implementation used in production.
type Postgres struct {
	db      *gorm.DB
	dsn     string
	breaker *gobreaker.CircuitBreaker
}

// New wraps an already-open GORM connection. dsn is kept on the adapter but
// is not used by Migrate, which runs golang-migrate over db's underlying
// *sql.DB.
func New(db *gorm.DB, dsn string) *Postgres {
	settings := gobreaker.Settings{
		Name:        "room-event-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &Postgres{db: db, dsn: dsn, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Append persists one event at the next ordinal position for roomID.
func (p *Postgres) Append(ctx context.Context, roomID string, evt domain.RoomEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventstore: marshal event: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		var count int64
		if err := p.db.WithContext(ctx).Model(&eventRecord{}).
			Where("room_id = ?", roomID).Count(&count).Error; err != nil {
			return nil, err
		}
		rec := eventRecord{RoomID: roomID, Ordinal: int(count), Kind: string(evt.Kind), Payload: string(payload)}
		return nil, p.db.WithContext(ctx).Create(&rec).Error
	})
	if err != nil {
		return fmt.Errorf("eventstore: append %s: %w", roomID, err)
	}
	return nil
}

// Load returns roomID's events in append order.
func (p *Postgres) Load(ctx context.Context, roomID string) ([]domain.RoomEvent, error) {
	var records []eventRecord
	if err := p.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("ordinal asc").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventstore: load %s: %w", roomID, err)
	}

	out := make([]domain.RoomEvent, 0, len(records))
	for _, rec := range records {
		var evt domain.RoomEvent
		if err := json.Unmarshal([]byte(rec.Payload), &evt); err != nil {
			return nil, fmt.Errorf("eventstore: decode event %d for %s: %w", rec.Ordinal, roomID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}

// Migrate applies every pending embedded migration.
func (p *Postgres) Migrate(context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("eventstore: load embedded migrations: %w", err)
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("eventstore: underlying sql.DB: %w", err)
	}

	driver, err := migratepostgres.WithInstance(sqlDB, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("eventstore: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("eventstore: build migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("eventstore: migrate up: %w", err)
	}
	return nil
}
