package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite handle. *sql.DB is already a pool; every method
// acquires and releases a connection per call, so nothing leaks across requests.
type Store struct {
	db *sql.DB
}

func openStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one pooled connection keeps concurrent
	// toggles queued instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS rarities (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS types (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS activations (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS jokers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		cost INTEGER NOT NULL,
		rarity_id INTEGER NOT NULL REFERENCES rarities(id),
		type_id INTEGER NOT NULL REFERENCES types(id),
		activation_id INTEGER NOT NULL REFERENCES activations(id),
		unlock_req TEXT NOT NULL DEFAULT 'Available from start',
		sprite TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS user_jokers (
		id INTEGER PRIMARY KEY,
		joker_id INTEGER NOT NULL REFERENCES jokers(id),
		identity TEXT NOT NULL,
		unlocked INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(joker_id, identity)
	);
	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY,
		name_hash TEXT,
		email_hash TEXT,
		comment TEXT NOT NULL,
		rating INTEGER NOT NULL,
		submitted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// parseTimestamp handles both formats modernc.org/sqlite hands back for
// CURRENT_TIMESTAMP columns.
func parseTimestamp(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw.String); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw.String); err == nil {
		return t
	}
	return time.Time{}
}

func hashSensitive(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

// --- users ---

func (s *Store) CreateUser(username, password string) (int, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	result, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, string(hash))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

func (s *Store) GetUserByUsername(username string) (*User, error) {
	u := &User{}
	var createdAt sql.NullString
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

func (s *Store) GetUserByID(id int) (*User, error) {
	u := &User{}
	var createdAt sql.NullString
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	return u, nil
}

// --- sessions ---

func (s *Store) CreateSession(token string, userID int) error {
	_, err := s.db.Exec("INSERT INTO sessions (token, user_id) VALUES (?, ?)", token, userID)
	return err
}

func (s *Store) GetSession(token string) (int, error) {
	var userID int
	err := s.db.QueryRow("SELECT user_id FROM sessions WHERE token = ?", token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}

func (s *Store) DeleteSession(token string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// --- taxonomies ---

func (s *Store) refOptions(query string) ([]RefOption, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []RefOption
	for rows.Next() {
		var o RefOption
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (s *Store) ListRarities() ([]RefOption, error) {
	return s.refOptions("SELECT id, name FROM rarities ORDER BY id")
}

func (s *Store) ListTypes() ([]RefOption, error) {
	return s.refOptions("SELECT id, name FROM types ORDER BY id")
}

func (s *Store) ListActivations() ([]RefOption, error) {
	return s.refOptions("SELECT id, name FROM activations ORDER BY id")
}

// --- jokers ---

func (s *Store) ListJokers(f listFilters, identityKey string) ([]Joker, error) {
	query, args := listQuery(f, identityKey)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jokers []Joker
	for rows.Next() {
		var j Joker
		var unlocked sql.NullBool
		err := rows.Scan(&j.ID, &j.Name, &j.Cost, &j.Rarity, &j.UnlockReq, &j.Type, &j.Activation, &j.Sprite, &unlocked)
		if err != nil {
			return nil, err
		}
		// Missing ledger row means never toggled, i.e. locked.
		j.Unlocked = unlocked.Valid && unlocked.Bool
		jokers = append(jokers, j)
	}
	return jokers, rows.Err()
}

func (s *Store) GetJoker(id int, identityKey string) (*Joker, error) {
	j := &Joker{}
	var unlocked sql.NullBool
	err := s.db.QueryRow(`
		SELECT
			j.id, j.name, j.cost, j.unlock_req,
			r.name, r.id,
			t.name, t.id,
			a.name, a.id,
			j.sprite, u.unlocked
		FROM jokers j
		JOIN rarities r ON j.rarity_id = r.id
		JOIN types t ON j.type_id = t.id
		JOIN activations a ON j.activation_id = a.id
		LEFT JOIN user_jokers u ON j.id = u.joker_id AND u.identity = ?
		WHERE j.id = ?`, identityKey, id).
		Scan(&j.ID, &j.Name, &j.Cost, &j.UnlockReq,
			&j.Rarity, &j.RarityID,
			&j.Type, &j.TypeID,
			&j.Activation, &j.ActivationID,
			&j.Sprite, &unlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Unlocked = unlocked.Valid && unlocked.Bool
	return j, nil
}

func (s *Store) JokerExists(id int) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM jokers WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

// --- unlock ledger ---

// ToggleUnlock flips the unlock flag for a (joker, identity) pair, inserting
// an unlocked row on first toggle. The single upsert plus the UNIQUE(joker_id,
// identity) constraint keeps concurrent toggles from ever producing two rows.
func (s *Store) ToggleUnlock(jokerID int, identityKey string) error {
	exists, err := s.JokerExists(jokerID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err = s.db.Exec(`
		INSERT INTO user_jokers (joker_id, identity, unlocked) VALUES (?, ?, 1)
		ON CONFLICT(joker_id, identity)
		DO UPDATE SET unlocked = NOT unlocked, updated_at = CURRENT_TIMESTAMP`,
		jokerID, identityKey)
	return err
}

func (s *Store) GetUnlockStatus(jokerID int, identityKey string) (*UnlockStatus, error) {
	u := &UnlockStatus{}
	var createdAt, updatedAt sql.NullString
	err := s.db.QueryRow(
		"SELECT id, joker_id, identity, unlocked, created_at, updated_at FROM user_jokers WHERE joker_id = ? AND identity = ?",
		jokerID, identityKey).
		Scan(&u.ID, &u.JokerID, &u.Identity, &u.Unlocked, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	u.UpdatedAt = parseTimestamp(updatedAt)
	return u, nil
}

// --- feedback ---

// AddFeedback stores a submission. Name and email, when present, are reduced
// to one-way hashes so they cannot be recovered from the database.
func (s *Store) AddFeedback(name, email, comment string, rating int) error {
	var nameHash, emailHash sql.NullString
	if name != "" {
		nameHash = sql.NullString{String: hashSensitive(name), Valid: true}
	}
	if email != "" {
		emailHash = sql.NullString{String: hashSensitive(email), Valid: true}
	}
	_, err := s.db.Exec(
		"INSERT INTO feedback (name_hash, email_hash, comment, rating) VALUES (?, ?, ?, ?)",
		nameHash, emailHash, comment, rating)
	return err
}

func (s *Store) CountFeedback() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM feedback").Scan(&n)
	return n, err
}
