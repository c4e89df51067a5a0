// Package postgres provides a Storage backed by PostgreSQL. Tuple versions
// are kept as rows with created_at/deleted_at snapshot tokens, so reads at
// older snapshots remain stable while writers append.
package postgres

import (
	"context"
	"embed"
	"errors"

	"github.com/tessera-authz/tessera"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var fs embed.FS

func RunMigrations(databaseURL string) error {
	driver, err := iofs.New(fs, "migrations")
	if err != nil {
		return err
	}
	migrations, err := migrate.NewWithSourceInstance("iofs", driver, databaseURL)
	if err != nil {
		return err
	}
	err = migrations.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type PostgresStorage struct {
	pool *pgxpool.Pool
}

var _ tessera.Storage = (*PostgresStorage)(nil)

func NewPostgresStorage(databaseURL string) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &PostgresStorage{pool}, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStorage) Write(ctx context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	batch := &pgx.Batch{}
	for _, t := range tuples {
		// the partial unique index on live rows makes re-writes no-ops
		batch.Queue(
			`INSERT INTO tuples (object_type, object_id, object_relation, subject_type, subject_id, subject_relation, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (object_type, object_id, object_relation, subject_type, subject_id, subject_relation) WHERE deleted_at IS NULL
			 DO NOTHING`,
			t.ObjectType, t.ObjectID, t.ObjectRelation, t.SubjectType, t.SubjectID, t.SubjectRelation, snap.UUID())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return tessera.NoSnapshot, err
	}
	return snap, nil
}

func (s *PostgresStorage) Delete(ctx context.Context, tuples ...tessera.Tuple) (tessera.Snapshot, error) {
	snap := tessera.NewSnapshot()
	batch := &pgx.Batch{}
	for _, t := range tuples {
		batch.Queue(
			`UPDATE tuples SET deleted_at=$7
			 WHERE object_type=$1 AND object_id=$2 AND object_relation=$3
			   AND subject_type=$4 AND subject_id=$5 AND subject_relation=$6
			   AND deleted_at IS NULL`,
			t.ObjectType, t.ObjectID, t.ObjectRelation, t.SubjectType, t.SubjectID, t.SubjectRelation, snap.UUID())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return tessera.NoSnapshot, err
	}
	return snap, nil
}

func (s *PostgresStorage) Read(ctx context.Context, t tessera.Tuple, at tessera.Snapshot) (bool, error) {
	// UUIDs compare bytewise in Postgres, which preserves UUIDv7 time order
	exists := false
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM tuples
		   WHERE object_type=$1 AND object_id=$2 AND object_relation=$3
		     AND subject_type=$4 AND subject_id=$5 AND subject_relation=$6
		     AND created_at<=$7 AND (deleted_at IS NULL OR deleted_at>$7))`,
		t.ObjectType, t.ObjectID, t.ObjectRelation, t.SubjectType, t.SubjectID, t.SubjectRelation, at.UUID()).
		Scan(&exists)
	return exists, err
}

func (s *PostgresStorage) ReadTuples(ctx context.Context, object tessera.Object, relation string, at tessera.Snapshot) (tessera.TupleIterator, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject_type, subject_id, subject_relation FROM tuples
		 WHERE object_type=$1 AND object_id=$2 AND object_relation=$3
		   AND created_at<=$4 AND (deleted_at IS NULL OR deleted_at>$4)`,
		object.Type, object.ID, relation, at.UUID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tuples []tessera.Tuple
	for rows.Next() {
		t := tessera.Tuple{ObjectType: object.Type, ObjectID: object.ID, ObjectRelation: relation}
		if err := rows.Scan(&t.SubjectType, &t.SubjectID, &t.SubjectRelation); err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tessera.NewStaticTupleIterator(tuples), nil
}

func (s *PostgresStorage) CurrentSnapshot(context.Context) (tessera.Snapshot, error) {
	return tessera.NewSnapshot(), nil
}
