package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Scopes understood by the API. "*" grants all of them.
const (
	scopeModelsRead    = "models:read"
	scopeModelsWrite   = "models:write"
	scopeServerControl = "server:control"
	scopeAuthManage    = "auth:manage"
	scopeMaster        = "*"
)

// knownScopes lists what each scope opens up. Keys asking for anything else
// are refused at creation.
var knownScopes = map[string]string{
	scopeModelsRead:    "list, inspect and export models; read the server version",
	scopeModelsWrite:   "train, merge, prune, import and delete models",
	scopeServerControl: "read the config; reload, restart and stop the server",
	scopeAuthManage:    "list, create and delete API keys",
	scopeMaster:        "every scope",
}

var (
	errKeyNotFound   = errors.New("key not found")
	errLastMasterKey = errors.New("cannot delete the last master key")
)

// scopeSet is the normalized set of scopes held by one key. A set holding the
// master scope holds nothing else.
type scopeSet map[string]struct{}

func newScopeSet(scopes ...string) scopeSet {
	set := make(scopeSet, len(scopes))
	for _, s := range scopes {
		if s == scopeMaster {
			return scopeSet{scopeMaster: {}}
		}
		set[s] = struct{}{}
	}
	return set
}

func parseScopeSet(stored string) scopeSet {
	return newScopeSet(strings.Fields(stored)...)
}

func (s scopeSet) allows(scope string) bool {
	if _, ok := s[scopeMaster]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

func (s scopeSet) sorted() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// String is the stored form, a space separated sorted list.
func (s scopeSet) String() string {
	return strings.Join(s.sorted(), " ")
}

// APIKeyInfo describes a stored key. The raw key itself is never kept.
type APIKeyInfo struct {
	ID          int       `json:"id"`
	Scopes      []string  `json:"scopes"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// keyStore keeps hashed API keys in the database next to the models.
type keyStore struct {
	stmtCount  *sql.Stmt
	stmtLookup *sql.Stmt
	stmtList   *sql.Stmt
	stmtCreate *sql.Stmt
	stmtRemove *sql.Stmt
	stmtExists *sql.Stmt
}

func setupKeySchema(db *sql.DB) error {
	const schemaKeys = `
CREATE TABLE IF NOT EXISTS understudy_api_keys (
    key_id INTEGER PRIMARY KEY,
    key_hash TEXT NOT NULL UNIQUE,
    scopes TEXT NOT NULL,
    description TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schemaKeys); err != nil {
		return fmt.Errorf("could not create key schema: %w", err)
	}
	return nil
}

func newKeyStore(db *sql.DB) (*keyStore, error) {
	k := &keyStore{}
	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&k.stmtCount, `SELECT COUNT(*) FROM understudy_api_keys;`},
		{&k.stmtLookup, `SELECT scopes FROM understudy_api_keys WHERE key_hash = ?;`},
		{&k.stmtList, `SELECT key_id, scopes, description, created_at FROM understudy_api_keys ORDER BY key_id;`},
		{&k.stmtCreate, `INSERT INTO understudy_api_keys (key_hash, scopes, description, created_at) VALUES (?, ?, ?, ?) RETURNING key_id;`},
		// A master key is only removed while another one is left.
		{&k.stmtRemove, `DELETE FROM understudy_api_keys WHERE key_id = ?
AND (scopes != '*' OR (SELECT COUNT(*) FROM understudy_api_keys WHERE scopes = '*') > 1);`},
		{&k.stmtExists, `SELECT COUNT(*) FROM understudy_api_keys WHERE key_id = ?;`},
	}
	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("could not prepare key statement: %w", err)
		}
		*st.stmt = stmt
	}
	return k, nil
}

func (k *keyStore) Close() {
	for _, stmt := range []*sql.Stmt{k.stmtCount, k.stmtLookup, k.stmtList, k.stmtCreate, k.stmtRemove, k.stmtExists} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (k *keyStore) count(ctx context.Context) (int, error) {
	var n int
	err := k.stmtCount.QueryRowContext(ctx).Scan(&n)
	return n, err
}

// lookup returns the scopes of a raw key, or errKeyNotFound.
func (k *keyStore) lookup(ctx context.Context, rawKey string) (scopeSet, error) {
	var stored string
	err := k.stmtLookup.QueryRowContext(ctx, hashAPIKey(rawKey)).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return parseScopeSet(stored), nil
}

func (k *keyStore) list(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := k.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var (
			info    APIKeyInfo
			stored  string
			created int64
		)
		if err = rows.Scan(&info.ID, &stored, &info.Description, &created); err != nil {
			return nil, err
		}
		info.Scopes = parseScopeSet(stored).sorted()
		info.CreatedAt = time.Unix(created, 0).UTC()
		keys = append(keys, info)
	}
	return keys, rows.Err()
}

// create stores a new random key and returns its id and raw form.
func (k *keyStore) create(ctx context.Context, scopes scopeSet, description string) (int, string, error) {
	rawKey, err := generateAPIKey()
	if err != nil {
		return 0, "", err
	}
	var id int
	err = k.stmtCreate.QueryRowContext(ctx, hashAPIKey(rawKey), scopes.String(), description, time.Now().Unix()).Scan(&id)
	if err != nil {
		return 0, "", err
	}
	return id, rawKey, nil
}

func (k *keyStore) remove(ctx context.Context, id int) error {
	res, err := k.stmtRemove.ExecContext(ctx, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists int
	if err = k.stmtExists.QueryRowContext(ctx, id).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return errLastMasterKey
	}
	return errKeyNotFound
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "und_" + hex.EncodeToString(buf), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
