package coin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS factory (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	description TEXT NOT NULL,
	image_uri TEXT NOT NULL,
	creator TEXT NOT NULL,
	token TEXT NOT NULL,
	total_supply TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_games_creator ON games(creator);
CREATE TABLE IF NOT EXISTS balances (
	game_id INTEGER NOT NULL,
	holder TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (game_id, holder)
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	from_addr TEXT NOT NULL,
	to_addr TEXT NOT NULL,
	amount TEXT NOT NULL,
	reason TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Factory registers game tokens and keeps their ledgers.
type Factory struct {
	db     *sql.DB
	mu     sync.Mutex // serializes writers
	owner  string
	logger *slog.Logger
}

// Open opens or creates the ledger at path. owner is the factory owner, the
// only address allowed to change the token template.
func Open(path, owner string, logger *slog.Logger) (*Factory, error) {
	owner, err := NormalizeAddress(owner)
	if err != nil {
		return nil, fmt.Errorf("factory owner: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	f := &Factory{db: db, owner: owner, logger: logger}
	if err := f.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func (f *Factory) initialize() error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := f.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating ledger tables: %w", err)
		}
	}
	_, err := f.db.Exec(
		"INSERT OR IGNORE INTO factory (key, value) VALUES ('template', ?)",
		deriveAddress(f.owner, 0),
	)
	if err != nil {
		return fmt.Errorf("initializing template: %w", err)
	}
	return nil
}

// Close closes the database.
func (f *Factory) Close() error {
	return f.db.Close()
}

// Owner returns the factory owner address.
func (f *Factory) Owner() string { return f.owner }

// Template returns the address new tokens are cloned from.
func (f *Factory) Template(ctx context.Context) (string, error) {
	var t string
	err := f.db.QueryRowContext(ctx, "SELECT value FROM factory WHERE key = 'template'").Scan(&t)
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}
	return t, nil
}

// SetTemplate replaces the token template. Only the factory owner may call it.
func (f *Factory) SetTemplate(ctx context.Context, caller, template string) error {
	caller, err := NormalizeAddress(caller)
	if err != nil {
		return err
	}
	template, err = NormalizeAddress(template)
	if err != nil {
		return err
	}
	if caller != f.owner {
		return ErrNotOwner
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.db.ExecContext(ctx, "UPDATE factory SET value = ? WHERE key = 'template'", template); err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	return nil
}

// CreateGameToken registers a game token for creator and mints the initial
// supply to them. Ids start at 1.
func (f *Factory) CreateGameToken(ctx context.Context, creator string, d Draft) (Game, error) {
	creator, err := NormalizeAddress(creator)
	if err != nil {
		return Game{}, err
	}
	if d.ImageURI == "" {
		d.ImageURI = DefaultImageURI
	}
	if err := d.Validate(); err != nil {
		return Game{}, err
	}

	template, err := f.Template(ctx)
	if err != nil {
		return Game{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return Game{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO games (name, symbol, description, image_uri, creator, token, total_supply, created_at)
		VALUES (?, ?, ?, ?, ?, '', ?, ?)`,
		d.Name, d.Symbol, d.Description, d.ImageURI, creator, InitialSupply.String(), now.UnixNano(),
	)
	if err != nil {
		return Game{}, fmt.Errorf("inserting game: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Game{}, fmt.Errorf("reading game id: %w", err)
	}

	token := deriveAddress(template, id)
	if _, err := tx.ExecContext(ctx, "UPDATE games SET token = ? WHERE id = ?", token, id); err != nil {
		return Game{}, fmt.Errorf("setting token address: %w", err)
	}
	if err := setBalance(ctx, tx, id, creator, InitialSupply); err != nil {
		return Game{}, err
	}
	if err := logEvent(ctx, tx, id, "mint", "", creator, InitialSupply, "initial_supply"); err != nil {
		return Game{}, err
	}
	if err := tx.Commit(); err != nil {
		return Game{}, fmt.Errorf("committing game: %w", err)
	}

	f.logger.Info("game token deployed", "game_id", id, "symbol", d.Symbol, "token", token, "creator", creator)
	return Game{
		ID:          id,
		Name:        d.Name,
		Symbol:      d.Symbol,
		Description: d.Description,
		ImageURI:    d.ImageURI,
		Creator:     creator,
		Token:       token,
		CreatedAt:   now,
	}, nil
}

const gameColumns = "id, name, symbol, description, image_uri, creator, token, total_supply, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (Metadata, error) {
	var (
		m       Metadata
		supply  string
		created int64
	)
	err := row.Scan(&m.ID, &m.Name, &m.Symbol, &m.Description, &m.ImageURI, &m.Creator, &m.Token, &supply, &created)
	if err != nil {
		return Metadata{}, err
	}
	total, ok := new(big.Int).SetString(supply, 10)
	if !ok {
		return Metadata{}, fmt.Errorf("corrupt total supply %q for game %d", supply, m.ID)
	}
	m.TotalSupply = total
	m.MaxSupply = new(big.Int).Set(MaxSupply)
	m.CreatedAt = time.Unix(0, created).UTC()
	return m, nil
}

// GameMetadata returns a game with its supply figures.
func (f *Factory) GameMetadata(ctx context.Context, id int64) (Metadata, error) {
	row := f.db.QueryRowContext(ctx, "SELECT "+gameColumns+" FROM games WHERE id = ?", id)
	m, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("loading game %d: %w", id, err)
	}
	return m, nil
}

// Game returns the game with the given id.
func (f *Factory) Game(ctx context.Context, id int64) (Game, error) {
	m, err := f.GameMetadata(ctx, id)
	return m.Game, err
}

// GameExists reports whether id is registered.
func (f *Factory) GameExists(ctx context.Context, id int64) (bool, error) {
	_, err := f.Game(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (f *Factory) queryGames(ctx context.Context, query string, args ...any) ([]Game, error) {
	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		m, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, m.Game)
	}
	return games, rows.Err()
}

// GamesByCreator returns the games created by an address in id order.
func (f *Factory) GamesByCreator(ctx context.Context, creator string) ([]Game, error) {
	creator, err := NormalizeAddress(creator)
	if err != nil {
		return nil, err
	}
	return f.queryGames(ctx, "SELECT "+gameColumns+" FROM games WHERE creator = ? ORDER BY id", creator)
}

// Games returns every game in id order.
func (f *Factory) Games(ctx context.Context) ([]Game, error) {
	return f.queryGames(ctx, "SELECT "+gameColumns+" FROM games ORDER BY id")
}

// TotalGames returns the number of registered games.
func (f *Factory) TotalGames(ctx context.Context) (int64, error) {
	var n int64
	if err := f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM games").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting games: %w", err)
	}
	return n, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func balance(ctx context.Context, q querier, id int64, holder string) (*big.Int, error) {
	var s string
	err := q.QueryRowContext(ctx, "SELECT amount FROM balances WHERE game_id = ? AND holder = ?", id, holder).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading balance: %w", err)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance %q", s)
	}
	return v, nil
}

func setBalance(ctx context.Context, q querier, id int64, holder string, v *big.Int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO balances (game_id, holder, amount) VALUES (?, ?, ?)
		ON CONFLICT(game_id, holder) DO UPDATE SET amount = excluded.amount`,
		id, holder, v.String(),
	)
	if err != nil {
		return fmt.Errorf("writing balance: %w", err)
	}
	return nil
}

func logEvent(ctx context.Context, q querier, id int64, kind, from, to string, amount *big.Int, reason string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO events (game_id, kind, from_addr, to_addr, amount, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, kind, from, to, amount.String(), reason, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("logging %s event: %w", kind, err)
	}
	return nil
}
