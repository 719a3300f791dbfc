package native

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionsSchema creates the table PostgresStore reads and writes.
const SessionsSchema = `
	CREATE TABLE IF NOT EXISTS calq_sessions (
	    write_key TEXT PRIMARY KEY,
	    actor_id TEXT NOT NULL,
	    identified BOOLEAN NOT NULL DEFAULT FALSE,
	    global_properties JSONB NOT NULL DEFAULT '{}'::jsonb,
	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
`

const (
	loadSessionSQL = `
		SELECT write_key, actor_id, identified, global_properties, updated_at
		FROM calq_sessions
		WHERE write_key = $1`

	upsertSessionSQL = `
		INSERT INTO calq_sessions (write_key, actor_id, identified, global_properties, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (write_key) DO UPDATE SET
		    actor_id = EXCLUDED.actor_id,
		    identified = EXCLUDED.identified,
		    global_properties = EXCLUDED.global_properties,
		    updated_at = NOW()`
)

// PostgresStore keeps sessions in the calq_sessions table so identity and global
// properties survive restarts of the bridge.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates calq_sessions if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, SessionsSchema); err != nil {
		return fmt.Errorf("failed to create calq_sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, writeKey string) (*Session, error) {
	var (
		session Session
		globals []byte
	)
	err := s.pool.QueryRow(ctx, loadSessionSQL, writeKey).Scan(
		&session.WriteKey,
		&session.ActorID,
		&session.Identified,
		&globals,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	session.GlobalProperties = map[string]string{}
	if len(globals) > 0 {
		if err := json.Unmarshal(globals, &session.GlobalProperties); err != nil {
			return nil, fmt.Errorf("failed to decode global properties: %w", err)
		}
	}
	return &session, nil
}

func (s *PostgresStore) Save(ctx context.Context, session *Session) error {
	globals := session.GlobalProperties
	if globals == nil {
		globals = map[string]string{}
	}
	data, err := json.Marshal(globals)
	if err != nil {
		return fmt.Errorf("failed to encode global properties: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertSessionSQL, session.WriteKey, session.ActorID, session.Identified, string(data))
	return err
}
