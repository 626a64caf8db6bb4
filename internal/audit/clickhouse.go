package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const appendTimeout = 5 * time.Second

// ClickHouseAppender writes audit events to ClickHouse. Inserts are
// synchronous: the row is acknowledged before the dispatcher responds, so a
// denial can never go unrecorded while the caller sees a decision.
type ClickHouseAppender struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseAppender connects to ClickHouse and verifies the connection.
func NewClickHouseAppender(dsn string, logger *zap.Logger) (*ClickHouseAppender, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouseAppender{conn: conn, logger: logger}, nil
}

func (a *ClickHouseAppender) Append(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	err := a.conn.Exec(ctx, `
		INSERT INTO tool_audit_events (
			id, tenant_id, actor_user_id, tool_key, decision, reason,
			run_id, request_id, latency_ms, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		e.ID, e.TenantID, e.ActorUserID, e.ToolKey, string(e.Decision), e.Reason,
		e.RunID, e.RequestID, e.LatencyMs, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("audit.Append: %w", err)
	}
	return nil
}

func (a *ClickHouseAppender) Close() {
	if err := a.conn.Close(); err != nil {
		a.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

// LogAppender is a fallback Appender for local development: events land in
// the structured log instead of ClickHouse.
type LogAppender struct {
	logger *zap.Logger
}

// NewLogAppender creates a LogAppender.
func NewLogAppender(logger *zap.Logger) *LogAppender {
	return &LogAppender{logger: logger}
}

func (a *LogAppender) Append(_ context.Context, e *Event) error {
	a.logger.Info("tool_audit_event",
		zap.String("id", e.ID),
		zap.String("tenant_id", e.TenantID),
		zap.String("actor_user_id", e.ActorUserID),
		zap.String("tool_key", e.ToolKey),
		zap.String("decision", string(e.Decision)),
		zap.String("reason", e.Reason),
		zap.String("run_id", e.RunID),
		zap.String("request_id", e.RequestID),
		zap.Float32("latency_ms", e.LatencyMs),
	)
	return nil
}

func (a *LogAppender) Close() {}
