package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// =====================
// Shared scene storage
// =====================

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
const shortCodeLength = 6

// SceneRow is one shared scene as stored: the canonical parameter key
// for dedup, the raw params JSON for replay, and the two summary
// numbers the live feed shows without recomputing anything.
type SceneRow struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	ParamsKey string  `json:"-"`
	Params    string  `json:"params"`
	Circles   int     `json:"circles"`
	Overlap   float64 `json:"overlap"`
	CreatedAt int64   `json:"createdAt"`
}

// SaveScene persists a shared scene and returns its short code. The
// canonical key dedups shares: when the same scene was shared before,
// the existing code comes back and nothing is written. Fresh scenes
// draw random codes and retry on the unique-violation of whichever
// engine is underneath, so two racing shares of one scene still
// converge on a single row.
func (db *Database) SaveScene(ctx context.Context, paramsKey, paramsJSON string, circles int, overlap float64, now time.Time) (string, error) {
	if db == nil || db.DB == nil {
		return "", errors.New("database not initialized")
	}
	key := strings.TrimSpace(paramsKey)
	if key == "" {
		return "", errors.New("empty params key")
	}

	if existing, err := db.sceneCodeByKey(ctx, key); err != nil {
		return "", err
	} else if existing != "" {
		return existing, nil
	}

	const maxAttempts = 64
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		code, err := randomBase62String(shortCodeLength)
		if err != nil {
			return "", err
		}

		err = db.insertScene(ctx, code, key, paramsJSON, circles, overlap, now)
		if err == nil {
			return code, nil
		}
		if isUniqueConstraintError(err) {
			// Either the code collided or another share of the same
			// scene won the race; re-check the key before retrying.
			if existing, lookupErr := db.sceneCodeByKey(ctx, key); lookupErr == nil && existing != "" {
				return existing, nil
			}
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("save scene: exhausted %d attempts", maxAttempts)
}

// SceneByCode resolves a short code to its stored row. A missing code
// is not an error; the caller gets a nil row and decides on the 404.
func (db *Database) SceneByCode(ctx context.Context, code string) (*SceneRow, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database not initialized")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || !isBase62(trimmed) {
		return nil, nil
	}

	query := "SELECT id, code, params_key, params, circles, overlap, created_at FROM scenes WHERE code = ? LIMIT 1"
	if db.usesDollarPlaceholders() {
		query = "SELECT id, code, params_key, params, circles, overlap, created_at FROM scenes WHERE code = $1 LIMIT 1"
	}

	var row SceneRow
	err := db.withSerializedConnectionFor(ctx, WorkloadRead, func(ctx context.Context, conn *sql.DB) error {
		return conn.QueryRowContext(ctx, query, trimmed).
			Scan(&row.ID, &row.Code, &row.ParamsKey, &row.Params, &row.Circles, &row.Overlap, &row.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RecentScenes streams the newest shares row by row through a channel
// so the caller can forward them to a client without buffering the
// whole result set. The error channel delivers at most one value
// after the row channel closes.
func (db *Database) RecentScenes(ctx context.Context, limit int) (<-chan SceneRow, <-chan error) {
	out := make(chan SceneRow)
	errCh := make(chan error, 1)

	if limit <= 0 {
		limit = 20
	}

	go func() {
		defer close(out)
		defer close(errCh)

		query := "SELECT id, code, params_key, params, circles, overlap, created_at FROM scenes ORDER BY created_at DESC, id DESC LIMIT ?"
		if db.usesDollarPlaceholders() {
			query = "SELECT id, code, params_key, params, circles, overlap, created_at FROM scenes ORDER BY created_at DESC, id DESC LIMIT $1"
		}

		rows, err := db.DB.QueryContext(ctx, query, limit)
		if err != nil {
			errCh <- fmt.Errorf("query scenes: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row SceneRow
			if err := rows.Scan(&row.ID, &row.Code, &row.ParamsKey, &row.Params, &row.Circles, &row.Overlap, &row.CreatedAt); err != nil {
				errCh <- fmt.Errorf("scan scene: %w", err)
				return
			}
			select {
			case out <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate scenes: %w", err)
		}
	}()

	return out, errCh
}

// sceneCodeByKey checks whether a scene with this canonical key was
// shared before.
func (db *Database) sceneCodeByKey(ctx context.Context, key string) (string, error) {
	query := "SELECT code FROM scenes WHERE params_key = ? LIMIT 1"
	if db.usesDollarPlaceholders() {
		query = "SELECT code FROM scenes WHERE params_key = $1 LIMIT 1"
	}

	var code string
	err := db.withSerializedConnectionFor(ctx, WorkloadRead, func(ctx context.Context, conn *sql.DB) error {
		return conn.QueryRowContext(ctx, query, key).Scan(&code)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// insertScene writes one scene row with a fresh id from the generator.
func (db *Database) insertScene(ctx context.Context, code, key, paramsJSON string, circles int, overlap float64, now time.Time) error {
	id := <-db.idGenerator
	return db.withSerializedConnectionFor(ctx, WorkloadWrite, func(ctx context.Context, conn *sql.DB) error {
		query := "INSERT INTO scenes (id, code, params_key, params, circles, overlap, created_at) VALUES (?,?,?,?,?,?,?)"
		if db.usesDollarPlaceholders() {
			query = "INSERT INTO scenes (id, code, params_key, params, circles, overlap, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)"
		}
		_, err := conn.ExecContext(ctx, query, id, code, key, paramsJSON, circles, overlap, now.Unix())
		return err
	})
}

// usesDollarPlaceholders reports whether the engine wants $1-style
// parameters instead of question marks.
func (db *Database) usesDollarPlaceholders() bool {
	switch db.Driver {
	case "pgx", "duckdb":
		return true
	default:
		return false
	}
}

// randomBase62String draws secure random bytes and maps them to the
// base62 alphabet by rejection sampling, so codes stay uniform and
// unpredictable.
func randomBase62String(length int) (string, error) {
	if length <= 0 {
		length = shortCodeLength
	}
	buf := make([]byte, length)
	for i := 0; i < length; i++ {
		var b [1]byte
		for {
			if _, err := rand.Read(b[:]); err != nil {
				return "", err
			}
			v := int(b[0])
			if v < 62*4 { // 248 keeps the rejection rate low while staying uniform.
				buf[i] = base62Alphabet[v%62]
				break
			}
		}
	}
	return string(buf), nil
}

// isBase62 validates that a code only contains alphabet characters.
func isBase62(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}

// isUniqueConstraintError normalizes driver-specific duplicate errors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "unique violation")
}
