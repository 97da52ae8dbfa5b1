package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"PriceFeatures/internal/domain/models"
	domrepo "PriceFeatures/internal/domain/repository"
	pkgch "PriceFeatures/pkg/clickhouse"
	applogger "PriceFeatures/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse. Every feature
// in the schema is a Nullable(Float64) column.
type CHFeatureStore struct {
	ch        *pkgch.Client
	db        *sql.DB
	table     string
	schema    *models.FeatureSchema
	chunkSize int
	sb        sq.StatementBuilderType
	l         *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, table string, schema *models.FeatureSchema, chunkSize int, l *applogger.Logger) *CHFeatureStore {
	if l == nil {
		l = applogger.Nop()
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &CHFeatureStore{
		ch:        ch,
		db:        ch.DB(),
		table:     table,
		schema:    schema,
		chunkSize: chunkSize,
		sb:        sq.StatementBuilder.PlaceholderFormat(sq.Question),
		l:         l,
	}
}

// Init creates the table and adds columns for features that are new to it.
func (s *CHFeatureStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, featureDDL(s.table, s.schema))
}

func featureDDL(table string, schema *models.FeatureSchema) []string {
	cols := make([]string, 0, schema.Len())
	for _, n := range schema.Names() {
		cols = append(cols, fmt.Sprintf("\t`%s` Nullable(Float64)", n))
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	timestamp DateTime64(3, 'UTC'),
	price Decimal(18, 8),
	source LowCardinality(String),
	schema_version LowCardinality(String),
%s,
	created_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(created_at)
PARTITION BY toYYYYMM(timestamp)
ORDER BY timestamp`, table, strings.Join(cols, ",\n"))

	stmts := []string{create}
	for _, n := range schema.Names() {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS `%s` Nullable(Float64)", table, n))
	}
	return stmts
}

func (s *CHFeatureStore) columns() []string {
	cols := []string{"timestamp", "price", "source"}
	for _, n := range s.schema.Names() {
		cols = append(cols, "`"+n+"`")
	}
	return cols
}

// StoreBatch inserts records in chunks, skipping timestamps that are already
// stored, and returns the number inserted.
func (s *CHFeatureStore) StoreBatch(ctx context.Context, records []models.FeatureRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	start := time.Now()
	inserted := 0
	for lo := 0; lo < len(records); lo += s.chunkSize {
		hi := lo + s.chunkSize
		if hi > len(records) {
			hi = len(records)
		}
		n, err := s.storeChunk(ctx, records[lo:hi])
		inserted += n
		if err != nil {
			s.l.Error("clickhouse store features",
				applogger.String("table", s.table),
				applogger.Int("offset", lo),
				applogger.Int("inserted", inserted),
				applogger.Error(err),
			)
			return inserted, fmt.Errorf("store features: %w", err)
		}
	}
	s.l.Debug("clickhouse store features ok",
		applogger.String("table", s.table),
		applogger.Int("rows", len(records)),
		applogger.Int("inserted", inserted),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return inserted, nil
}

func (s *CHFeatureStore) storeChunk(ctx context.Context, chunk []models.FeatureRecord) (int, error) {
	existing, err := s.existing(ctx, chunk[0].Timestamp, chunk[len(chunk)-1].Timestamp)
	if err != nil {
		return 0, err
	}

	cols := append(s.columns(), "schema_version")
	q := fmt.Sprintf("INSERT INTO %s (%s)", s.table, strings.Join(cols, ", "))
	n := 0
	err = s.ch.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, r := range chunk {
			if _, dup := existing[r.Timestamp.UnixMilli()]; dup {
				continue
			}
			if r.Schema != nil && r.Schema.Version != s.schema.Version {
				return &models.SchemaMismatchError{Want: s.schema.Version, Got: r.Schema.Version}
			}
			args := make([]interface{}, 0, len(cols))
			args = append(args, r.Timestamp.UTC(), decimal.NewFromFloat(r.Price), r.Source)
			for _, v := range r.Values {
				args = append(args, v)
			}
			args = append(args, s.schema.Version)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("append row: %w", err)
			}
			existing[r.Timestamp.UnixMilli()] = struct{}{}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// existing returns the stored timestamps in [from, to] as unix millis.
func (s *CHFeatureStore) existing(ctx context.Context, from, to time.Time) (map[int64]struct{}, error) {
	if to.Before(from) {
		from, to = to, from
	}
	q, args, err := s.sb.Select("timestamp").From(s.table).
		Where(sq.And{sq.GtOrEq{"timestamp": from.UTC()}, sq.LtOrEq{"timestamp": to.UTC()}}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("existing timestamps: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts.UnixMilli()] = struct{}{}
	}
	return out, rows.Err()
}

func (s *CHFeatureStore) Query(ctx context.Context, from, to time.Time, limit int) ([]models.FeatureRecord, error) {
	b := s.sb.Select(s.columns()...).From(s.table + " FINAL").OrderBy("timestamp ASC")
	if !from.IsZero() {
		b = b.Where(sq.GtOrEq{"timestamp": from.UTC()})
	}
	if !to.IsZero() {
		b = b.Where(sq.LtOrEq{"timestamp": to.UTC()})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.queryRecords(ctx, b)
}

func (s *CHFeatureStore) Latest(ctx context.Context) (models.FeatureRecord, error) {
	out, err := s.queryRecords(ctx, s.sb.Select(s.columns()...).From(s.table+" FINAL").OrderBy("timestamp DESC").Limit(1))
	if err != nil {
		return models.FeatureRecord{}, err
	}
	if len(out) == 0 {
		return models.FeatureRecord{}, domrepo.ErrNotFound
	}
	return out[0], nil
}

func (s *CHFeatureStore) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]models.FeatureRecord, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse features query error", applogger.String("table", s.table), applogger.Error(err))
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	n := s.schema.Len()
	out := make([]models.FeatureRecord, 0, 256)
	for rows.Next() {
		var (
			rec   models.FeatureRecord
			price decimal.Decimal
		)
		nulls := make([]sql.NullFloat64, n)
		dest := make([]interface{}, 0, n+3)
		dest = append(dest, &rec.Timestamp, &price, &rec.Source)
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan features: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		rec.Price = price.InexactFloat64()
		rec.Schema = s.schema
		rec.Values = make([]*float64, n)
		for i, v := range nulls {
			if v.Valid {
				f := v.Float64
				rec.Values[i] = &f
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *CHFeatureStore) Stats(ctx context.Context) (models.EnrichmentStats, error) {
	st := models.EnrichmentStats{FeatureCount: s.schema.Len(), SchemaVersion: s.schema.Version}
	q, args, err := s.sb.Select("count()", "min(timestamp)", "max(timestamp)").From(s.table + " FINAL").ToSql()
	if err != nil {
		return st, err
	}
	var (
		total          uint64
		oldest, newest time.Time
	)
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&total, &oldest, &newest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, nil
		}
		return st, fmt.Errorf("feature stats: %w", err)
	}
	st.TotalRecords = int64(total)
	if total > 0 {
		oldest, newest = oldest.UTC(), newest.UTC()
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st, nil
}

// DeleteBefore removes rows older than cutoff with a lightweight delete and
// returns how many rows matched.
func (s *CHFeatureStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cq, cargs, err := s.sb.Select("count()").From(s.table).Where(sq.Lt{"timestamp": cutoff.UTC()}).ToSql()
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := s.db.QueryRowContext(ctx, cq, cargs...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expired: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	dq, dargs, err := s.sb.Delete(s.table).Where(sq.Lt{"timestamp": cutoff.UTC()}).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx, dq, dargs...); err != nil {
		s.l.Error("clickhouse delete features", applogger.String("table", s.table), applogger.Error(err))
		return 0, fmt.Errorf("delete features: %w", err)
	}
	return int64(n), nil
}

func (s *CHFeatureStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHFeatureStore) Close() error { return nil }
