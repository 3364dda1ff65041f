package threatlog

import (
	"context"
	"fmt"
	"time"

	"ransomwatch/internal/killswitch"
	"ransomwatch/internal/storage"
)

// ClickHouseLog is an alternate killswitch.ThreatLog backend for
// deployments that already run a ClickHouse cluster for SIEM events and
// want kill switch triggers queryable alongside them instead of in a
// standalone JSON file.
type ClickHouseLog struct {
	client *storage.ClickHouseClient
	table  string
}

// NewClickHouseLog wraps an already-connected ClickHouse client. The
// target table must exist before Log is called; EnsureTable creates it if
// missing but does not alter an existing table.
func NewClickHouseLog(client *storage.ClickHouseClient, table string) *ClickHouseLog {
	if table == "" {
		table = "killswitch_threats"
	}
	return &ClickHouseLog{client: client, table: table}
}

func (l *ClickHouseLog) Log(threat killswitch.ThreatInfo, actionTaken string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := fmt.Sprintf(
		"INSERT INTO %s (id, timestamp, level, detector, description, files, action_taken) VALUES",
		l.table,
	)

	batch, err := l.client.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("threatlog(clickhouse): prepare batch: %w", err)
	}

	if err := batch.Append(
		threat.ID,
		threat.Timestamp,
		threat.Level.String(),
		threat.DetectorName,
		threat.Description,
		threat.AffectedFiles,
		actionTaken,
	); err != nil {
		return fmt.Errorf("threatlog(clickhouse): append: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("threatlog(clickhouse): send: %w", err)
	}
	return nil
}

// EnsureTable creates the backing table if it does not already exist.
func (l *ClickHouseLog) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id String,
		timestamp DateTime,
		level String,
		detector String,
		description String,
		files Array(String),
		action_taken String
	) ENGINE = MergeTree()
	ORDER BY (timestamp, detector)`, l.table)

	return l.client.Exec(ctx, query)
}
