package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// postgresStore keeps one jsonb snapshot row per room.
type postgresStore struct {
	cfg  *Config
	conn *sql.DB
}

func newPostgresStore(cfg *Config) (*postgresStore, error) {
	conn, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &postgresStore{cfg: cfg, conn: conn}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logf(cfg, "STORE: Connected to PostgreSQL")

	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}

	for _, entry := range entries {
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if _, err := s.conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", entry.Name(), err)
		}
		logf(s.cfg, "STORE: Applied migration %s", entry.Name())
	}

	return nil
}

func (s *postgresStore) List(ctx context.Context) ([]storedRoom, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT code, created_at FROM rooms ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []storedRoom
	for rows.Next() {
		var r storedRoom
		if err := rows.Scan(&r.Code, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}

	return rooms, nil
}

func (s *postgresStore) Load(ctx context.Context, code string) (*Room, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, `
		SELECT state FROM rooms WHERE code = $1
	`, code).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", code, err)
	}

	return decodeRoom(data)
}

func (s *postgresStore) Save(ctx context.Context, room *Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encoding room %s: %w", room.Code, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO rooms (code, state, created_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (code) DO UPDATE SET state = $2, updated_at = now()
	`, room.Code, string(data), room.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving room %s: %w", room.Code, err)
	}

	return nil
}

func (s *postgresStore) Delete(ctx context.Context, code string) error {
	_, err := s.conn.ExecContext(ctx, `
		DELETE FROM rooms WHERE code = $1
	`, code)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", code, err)
	}

	return nil
}

func (s *postgresStore) Close() error {
	return s.conn.Close()
}
