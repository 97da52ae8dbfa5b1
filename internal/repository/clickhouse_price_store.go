package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"PriceFeatures/internal/domain/models"
	pkgch "PriceFeatures/pkg/clickhouse"
	applogger "PriceFeatures/pkg/logger"
)

// CHPriceStore implements PriceStore backed by ClickHouse. Prices are kept as
// Decimal(18, 8) and one row per minute survives merges.
type CHPriceStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	sb    sq.StatementBuilderType
	l     *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHPriceStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHPriceStore{
		ch:    ch,
		db:    ch.DB(),
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		l:     l,
	}
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		timestamp DateTime64(3, 'UTC'),
		price Decimal(18, 8),
		source LowCardinality(String),
		inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(inserted_at)
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY timestamp`, s.table)
	return s.ch.InitSchema(ctx, []string{ddl})
}

func (s *CHPriceStore) Store(ctx context.Context, p models.PricePoint) error {
	return s.StoreBatch(ctx, []models.PricePoint{p})
}

func (s *CHPriceStore) StoreBatch(ctx context.Context, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (timestamp, price, source)", s.table)
	err := s.ch.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, p.Timestamp.UTC(), decimal.NewFromFloat(p.Price), p.Source); err != nil {
				return fmt.Errorf("append price: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.l.Error("clickhouse store prices", applogger.String("table", s.table), applogger.Int("rows", len(points)), applogger.Error(err))
		return fmt.Errorf("store prices: %w", err)
	}
	return nil
}

func (s *CHPriceStore) Query(ctx context.Context, from, to time.Time, limit int) ([]models.PricePoint, error) {
	b := s.selectPrices().OrderBy("timestamp ASC")
	if !from.IsZero() {
		b = b.Where(sq.GtOrEq{"timestamp": from.UTC()})
	}
	if !to.IsZero() {
		b = b.Where(sq.LtOrEq{"timestamp": to.UTC()})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryPrices(ctx, "query", b)
}

func (s *CHPriceStore) LatestBefore(ctx context.Context, ts time.Time, n int) ([]models.PricePoint, error) {
	b := s.selectPrices().Where(sq.Lt{"timestamp": ts.UTC()}).OrderBy("timestamp DESC")
	if n > 0 {
		b = b.Limit(uint64(n))
	}
	out, err := s.queryPrices(ctx, "latest_before", b)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHPriceStore) selectPrices() sq.SelectBuilder {
	return s.sb.Select("timestamp", "price", "source").From(s.table + " FINAL")
}

func (s *CHPriceStore) queryPrices(ctx context.Context, op string, b sq.SelectBuilder) ([]models.PricePoint, error) {
	start := time.Now()
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", op, err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse prices query error", applogger.String("op", op), applogger.Error(err))
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, 256)
	for rows.Next() {
		var (
			p     models.PricePoint
			price decimal.Decimal
		)
		if err := rows.Scan(&p.Timestamp, &price, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Price = price.InexactFloat64()
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse prices query ok",
		applogger.String("op", op),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close is a no-op; the client is closed by the app.
func (s *CHPriceStore) Close() error { return nil }
