package coin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// BalanceOf returns the balance of holder in base units.
func (f *Factory) BalanceOf(ctx context.Context, id int64, holder string) (*big.Int, error) {
	holder, err := NormalizeAddress(holder)
	if err != nil {
		return nil, err
	}
	if _, err := f.Game(ctx, id); err != nil {
		return nil, err
	}
	return balance(ctx, f.db, id, holder)
}

// update runs fn in a write transaction on game id.
func (f *Factory) update(ctx context.Context, id int64, fn func(tx *sql.Tx, g Metadata) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	g, err := scanGame(tx.QueryRowContext(ctx, "SELECT "+gameColumns+" FROM games WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading game %d: %w", id, err)
	}
	if err := fn(tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Mint creates amount tokens for to. Only the game's creator may mint, and
// the total supply may not exceed MaxSupply.
func (f *Factory) Mint(ctx context.Context, caller string, id int64, to string, amount *big.Int, reason string) error {
	caller, err := NormalizeAddress(caller)
	if err != nil {
		return err
	}
	to, err = NormalizeAddress(to)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	err = f.update(ctx, id, func(tx *sql.Tx, g Metadata) error {
		if caller != g.Creator {
			return ErrNotOwner
		}
		total := new(big.Int).Add(g.TotalSupply, amount)
		if total.Cmp(g.MaxSupply) > 0 {
			return fmt.Errorf("%w: %s + %s > %s", ErrCapExceeded,
				FormatAmount(g.TotalSupply), FormatAmount(amount), FormatAmount(g.MaxSupply))
		}
		bal, err := balance(ctx, tx, id, to)
		if err != nil {
			return err
		}
		if err := setBalance(ctx, tx, id, to, bal.Add(bal, amount)); err != nil {
			return err
		}
		if err := setSupply(ctx, tx, id, total); err != nil {
			return err
		}
		return logEvent(ctx, tx, id, "mint", "", to, amount, reason)
	})
	if err != nil {
		return fmt.Errorf("minting game %d: %w", id, err)
	}
	f.logger.Info("tokens minted", "game_id", id, "to", to, "amount", FormatAmount(amount), "reason", reason)
	return nil
}

// Burn destroys amount tokens held by from. Only the game's creator may burn.
func (f *Factory) Burn(ctx context.Context, caller string, id int64, from string, amount *big.Int, reason string) error {
	caller, err := NormalizeAddress(caller)
	if err != nil {
		return err
	}
	from, err = NormalizeAddress(from)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	err = f.update(ctx, id, func(tx *sql.Tx, g Metadata) error {
		if caller != g.Creator {
			return ErrNotOwner
		}
		bal, err := balance(ctx, tx, id, from)
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		if err := setBalance(ctx, tx, id, from, bal.Sub(bal, amount)); err != nil {
			return err
		}
		if err := setSupply(ctx, tx, id, new(big.Int).Sub(g.TotalSupply, amount)); err != nil {
			return err
		}
		return logEvent(ctx, tx, id, "burn", from, "", amount, reason)
	})
	if err != nil {
		return fmt.Errorf("burning game %d: %w", id, err)
	}
	f.logger.Info("tokens burned", "game_id", id, "from", from, "amount", FormatAmount(amount), "reason", reason)
	return nil
}

// Transfer moves amount tokens from one holder to another.
func (f *Factory) Transfer(ctx context.Context, id int64, from, to string, amount *big.Int) error {
	from, err := NormalizeAddress(from)
	if err != nil {
		return err
	}
	to, err = NormalizeAddress(to)
	if err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}

	err = f.update(ctx, id, func(tx *sql.Tx, _ Metadata) error {
		src, err := balance(ctx, tx, id, from)
		if err != nil {
			return err
		}
		if src.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		if err := setBalance(ctx, tx, id, from, src.Sub(src, amount)); err != nil {
			return err
		}
		dst, err := balance(ctx, tx, id, to)
		if err != nil {
			return err
		}
		if err := setBalance(ctx, tx, id, to, dst.Add(dst, amount)); err != nil {
			return err
		}
		return logEvent(ctx, tx, id, "transfer", from, to, amount, "")
	})
	if err != nil {
		return fmt.Errorf("transferring game %d: %w", id, err)
	}
	return nil
}

func setSupply(ctx context.Context, tx *sql.Tx, id int64, total *big.Int) error {
	if _, err := tx.ExecContext(ctx, "UPDATE games SET total_supply = ? WHERE id = ?", total.String(), id); err != nil {
		return fmt.Errorf("writing total supply: %w", err)
	}
	return nil
}

// Event is one ledger entry.
type Event struct {
	Kind      string    `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Amount    *big.Int  `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Events returns the ledger history of a game, oldest first.
func (f *Factory) Events(ctx context.Context, id int64) ([]Event, error) {
	rows, err := f.db.QueryContext(ctx,
		"SELECT kind, from_addr, to_addr, amount, reason, created_at FROM events WHERE game_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			amount  string
			created int64
		)
		if err := rows.Scan(&e.Kind, &e.From, &e.To, &amount, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt event amount %q", amount)
		}
		e.Amount = v
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
