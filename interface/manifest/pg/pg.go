package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// wrap marks connection failures as temporary
func wrap(err error, step string) error {
	err = fmt.Errorf("%s: %w", step, err)
	if pqErrorCode(err) == connectionFailure {
		return service.MakeTemporary(err)
	}
	return err
}

// Store implements manifest.Store with a Postgres database (see db.sql).
// Each row is updated individually, so concurrent updates of a manifest do not conflict.
type Store struct {
	*sql.DB
	now func() time.Time
}

// New creates a new manifest store using Postgres
func New(ctx context.Context, dbConnection string) (*Store, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap(err, "pg.New.Ping")
	}
	return &Store{DB: db, now: time.Now}, nil
}

// Create implements manifest.Store
func (s *Store) Create(ctx context.Context, region string, descriptors []common.ExportDescriptor) (string, error) {
	now := s.now()
	id := strings.TrimSuffix(common.ManifestFileName(region, now, uuid.New().String()[:8]), ".csv")

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", wrap(err, "pg.Create.BeginTx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO manifest (id, region, created_at) VALUES ($1, $2, $3)", id, region, now); err != nil {
		if pqErrorCode(err) == uniqueViolation {
			return "", fmt.Errorf("pg.Create: manifest %s already exists", id)
		}
		return "", wrap(err, "pg.Create.Insert")
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("manifest_row", "manifest_id", "idx", "url", "country", "year", "month", "downloaded"))
	if err != nil {
		return "", wrap(err, "pg.Create.Prepare")
	}
	for i, d := range descriptors {
		if _, err := stmt.ExecContext(ctx, id, i, d.URL, d.Region, d.Window.Year, d.Window.Month, d.Downloaded); err != nil {
			return "", wrap(service.MergeErrors(true, err, stmt.Close()), "pg.Create.Copy")
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return "", wrap(service.MergeErrors(true, err, stmt.Close()), "pg.Create.Flush")
	}
	if err := stmt.Close(); err != nil {
		return "", wrap(err, "pg.Create.Close")
	}
	if err := tx.Commit(); err != nil {
		return "", wrap(err, "pg.Create.Commit")
	}
	return id, nil
}

func (s *Store) exists(ctx context.Context, location string) (bool, error) {
	var n int
	if err := s.QueryRowContext(ctx, "SELECT count(*) FROM manifest WHERE id=$1", location).Scan(&n); err != nil {
		return false, wrap(err, "exists")
	}
	return n > 0, nil
}

// Load implements manifest.Store
func (s *Store) Load(ctx context.Context, location string) ([]common.ExportDescriptor, error) {
	if ok, err := s.exists(ctx, location); err != nil {
		return nil, fmt.Errorf("pg.Load.%w", err)
	} else if !ok {
		return nil, fmt.Errorf("pg.Load[%s]: %w", location, manifest.ErrNotFound)
	}
	rows, err := s.QueryContext(ctx, "SELECT url, country, year, month, downloaded FROM manifest_row WHERE manifest_id=$1 ORDER BY idx", location)
	if err != nil {
		return nil, wrap(err, "pg.Load.Query")
	}
	defer rows.Close()
	descriptors := []common.ExportDescriptor{}
	for rows.Next() {
		var d common.ExportDescriptor
		if err := rows.Scan(&d.URL, &d.Region, &d.Window.Year, &d.Window.Month, &d.Downloaded); err != nil {
			return nil, fmt.Errorf("pg.Load.Scan: %w", err)
		}
		descriptors = append(descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "pg.Load.rows.err")
	}
	return descriptors, nil
}

// Update implements manifest.Store
func (s *Store) Update(ctx context.Context, location string, index int, downloaded bool) error {
	res, err := s.ExecContext(ctx, "UPDATE manifest_row SET downloaded=$3 WHERE manifest_id=$1 AND idx=$2", location, index, downloaded)
	if err != nil {
		return wrap(err, "pg.Update")
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("pg.Update.RowsAffected: %w", err)
	} else if n == 1 {
		return nil
	}
	if ok, err := s.exists(ctx, location); err != nil {
		return fmt.Errorf("pg.Update.%w", err)
	} else if !ok {
		return fmt.Errorf("pg.Update[%s]: %w", location, manifest.ErrNotFound)
	}
	return fmt.Errorf("pg.Update[%s, %d]: %w", location, index, manifest.ErrIndexOutOfRange)
}

// Locations implements manifest.Store
func (s *Store) Locations(ctx context.Context, region string) ([]string, error) {
	rows, err := s.QueryContext(ctx, "SELECT id FROM manifest WHERE region=$1 ORDER BY created_at, id", region)
	if err != nil {
		return nil, wrap(err, "pg.Locations.Query")
	}
	defer rows.Close()
	locations := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pg.Locations.Scan: %w", err)
		}
		locations = append(locations, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err, "pg.Locations.rows.err")
	}
	return locations, nil
}
