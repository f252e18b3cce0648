package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"speedliner/internal/domain/models"
	domrepo "speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ClickHouseAuditStore appends submission attempts to a MergeTree table.
type ClickHouseAuditStore struct {
	db    *sql.DB
	table string
	l     *logger.Logger
}

func NewClickHouseAuditStore(db *sql.DB, table string, l *logger.Logger) (*ClickHouseAuditStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	if l == nil {
		l = logger.Nop()
	}
	return &ClickHouseAuditStore{db: db, table: table, l: l}, nil
}

// Schema is the DDL the store expects.
func (s *ClickHouseAuditStore) Schema() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id             String,
            occurred_at    DateTime64(3),
            client_key     String,
            route          String,
            reward_isk     Int64,
            volume_m3      Int64,
            collateral_isk Int64,
            character_id   Int64,
            character_name String,
            outcome        LowCardinality(String),
            status         Int32,
            subject        String
        ) ENGINE = MergeTree
        ORDER BY (occurred_at, client_key)
    `, s.table)}
}

func (s *ClickHouseAuditStore) Record(ctx context.Context, ev *models.AuditEvent) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, occurred_at, client_key, route, reward_isk, volume_m3, collateral_isk, character_id, character_name, outcome, status, subject)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q,
		ev.ID,
		ev.OccurredAt,
		ev.ClientKey,
		ev.Route,
		ev.RewardISK,
		ev.VolumeM3,
		ev.CollateralISK,
		ev.CharacterID,
		ev.CharacterName,
		string(ev.Outcome),
		int32(ev.Status),
		ev.Subject,
	)
	if err != nil {
		s.l.Error("clickhouse audit insert error",
			logger.String("table", s.table),
			logger.String("outcome", string(ev.Outcome)),
			logger.Error(err),
		)
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the latest attempts of one client, newest first.
func (s *ClickHouseAuditStore) Recent(ctx context.Context, clientKey string, limit int) ([]models.AuditEvent, error) {
	q := fmt.Sprintf(`SELECT id, occurred_at, client_key, route, reward_isk, volume_m3, collateral_isk, character_id, character_name, outcome, status, subject
        FROM %s WHERE client_key = ? ORDER BY occurred_at DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, clientKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditEvent, 0, limit)
	for rows.Next() {
		var (
			ev      models.AuditEvent
			outcome string
			status  int32
			at      time.Time
		)
		if err := rows.Scan(&ev.ID, &at, &ev.ClientKey, &ev.Route, &ev.RewardISK, &ev.VolumeM3,
			&ev.CollateralISK, &ev.CharacterID, &ev.CharacterName, &outcome, &status, &ev.Subject); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.OccurredAt = at
		ev.Outcome = models.AuditOutcome(outcome)
		ev.Status = int(status)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *ClickHouseAuditStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

// MessagePublisher is satisfied by pkg/kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaAuditSink publishes submission attempts keyed by client.
type KafkaAuditSink struct {
	pub   MessagePublisher
	topic string
}

func NewKafkaAuditSink(pub MessagePublisher, topic string) domrepo.AuditSink {
	return &KafkaAuditSink{pub: pub, topic: topic}
}

func (s *KafkaAuditSink) Record(ctx context.Context, ev *models.AuditEvent) error {
	return s.pub.Publish(ctx, s.topic, []byte(ev.ClientKey), ev)
}

func (s *KafkaAuditSink) Close() error {
	return nil // producer shared with the log collector
}

// NoopAuditSink drops every event.
type NoopAuditSink struct{}

func (NoopAuditSink) Record(context.Context, *models.AuditEvent) error { return nil }

func (NoopAuditSink) Close() error { return nil }
