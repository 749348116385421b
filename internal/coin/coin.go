// Package coin is a local mock of a game-token factory: each generated game
// can get a capped, mintable token whose ledger lives in SQLite.
package coin

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Decimals is the number of fractional digits of every token.
const Decimals = 18

// DefaultImageURI is used when a draft has no image.
const DefaultImageURI = "https://example.com/default.png"

var (
	ErrEmptyName           = errors.New("game name cannot be empty")
	ErrSymbolLength        = errors.New("symbol must be 3-5 characters")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrNotOwner            = errors.New("caller is not the owner")
	ErrCapExceeded         = errors.New("max supply exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("game not found")
)

var (
	// InitialSupply is minted to the creator of every game token.
	InitialSupply = Tokens(1_000_000)
	// MaxSupply caps the total supply of every game token.
	MaxSupply = Tokens(10_000_000)
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a 0x-prefixed 20 byte hex address and returns it
// lowercased.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return strings.ToLower(s), nil
}

// deriveAddress gives a stable pseudo address for a token cloned from
// template with the given game id.
func deriveAddress(template string, id int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", template, id)))
	return "0x" + hex.EncodeToString(sum[:20])
}

// Tokens converts whole tokens to base units.
func Tokens(n int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// ParseAmount reads a decimal token amount such as "12" or "0.5" into base
// units.
func ParseAmount(s string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("parsing amount %q: %w", s, ErrInvalidAmount)
	}
	r.Mul(r, new(big.Rat).SetInt(Tokens(1)))
	if !r.IsInt() || r.Sign() <= 0 {
		return nil, fmt.Errorf("parsing amount %q: %w", s, ErrInvalidAmount)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatAmount renders base units as whole tokens, trimming trailing zeros.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(v, Tokens(1))
	s := r.FloatString(Decimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// Draft is the input to CreateGameToken.
type Draft struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	ImageURI    string `json:"imageUri"`
}

// Validate checks the rules the factory enforces.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if n := len(d.Symbol); n < 3 || n > 5 {
		return fmt.Errorf("%w: got %q", ErrSymbolLength, d.Symbol)
	}
	return nil
}

// DraftFromTitle pre-fills a draft from an app title. The symbol is the first
// five ASCII letters or digits of the title, uppercased; it may be too short to
// pass validation and is then left for the user to edit.
func DraftFromTitle(title string) Draft {
	var sym strings.Builder
	for _, r := range title {
		if sym.Len() == 5 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			sym.WriteRune(unicode.ToUpper(r))
		}
	}
	return Draft{
		Name:        title,
		Symbol:      sym.String(),
		Description: "Game: " + title,
		ImageURI:    DefaultImageURI,
	}
}

// Game is one registered game token.
type Game struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
	ImageURI    string    `json:"imageUri"`
	Creator     string    `json:"creator"`
	Token       string    `json:"tokenAddress"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Metadata is a game together with its supply figures.
type Metadata struct {
	Game
	TotalSupply *big.Int `json:"totalSupply"`
	MaxSupply   *big.Int `json:"maxSupply"`
}
