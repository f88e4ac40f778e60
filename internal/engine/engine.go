// internal/engine/engine.go
//
// In-memory authoritative rules for the Battleship matches hosted by this
// instance. The engine does no I/O; each game serializes its own operations
// behind a per-game mutex and the registry lock is held only for lookups.
package engine

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
)

// ErrGameNotFound is returned for operations on an unknown game id.
var ErrGameNotFound = errors.New("game not found")

// RuleError is a rule violation by an otherwise valid request. Its message
// is surfaced to the acting player as a private system chat line.
type RuleError struct {
	msg string
}

func (e *RuleError) Error() string { return e.msg }

// MoveResult describes the outcome of a shot.
type MoveResult struct {
	Outcome  string `json:"outcome"`
	Message  string `json:"message"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	NextTurn string `json:"next_turn"`
}

// Engine is the process-wide game registry.
type Engine struct {
	mu    sync.Mutex
	games map[string]*Game
}

func New() *Engine {
	return &Engine{games: make(map[string]*Game)}
}

// GameID canonicalizes the id for an unordered pair of players.
func GameID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "game-" + a + "-" + b
}

// CreateGame initializes a fresh game under id, overwriting any existing
// entry (rematches reuse the id). The opening turn is a coin flip.
func (e *Engine) CreateGame(id, p1, p2 string) {
	players := []string{p1, p2}
	sort.Strings(players)
	first := players[rand.IntN(2)]

	e.mu.Lock()
	defer e.mu.Unlock()
	e.games[id] = newGame(id, players[0], players[1], first)
}

// EndGame removes the game. Idempotent.
func (e *Engine) EndGame(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.games, id)
}

// Exists reports whether id names a live game.
func (e *Engine) Exists(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.games[id]
	return ok
}

// Players returns the ordered pair for a game.
func (e *Engine) Players(id string) ([2]string, error) {
	g, ok := e.lookup(id)
	if !ok {
		return [2]string{}, ErrGameNotFound
	}
	return g.players, nil
}

// HasPlayer reports whether player participates in game id.
func (e *Engine) HasPlayer(id, player string) bool {
	g, ok := e.lookup(id)
	return ok && g.hasPlayer(player)
}

// PlayerGame returns the id of a live game containing player, if any. Used
// by the lobby to route a returning player back to their match.
func (e *Engine) PlayerGame(player string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, g := range e.games {
		if g.hasPlayer(player) {
			return id, true
		}
	}
	return "", false
}

// PlaceShip places a ship of the given length at (x, y) growing in the
// orientation's direction.
func (e *Engine) PlaceShip(id, player string, x, y, length int, orientation Orientation) (string, error) {
	g, ok := e.lookup(id)
	if !ok {
		return "", ErrGameNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.placeShip(player, x, y, length, orientation)
}

// RemoveShip removes the ship containing (x, y), returning it to the
// inventory.
func (e *Engine) RemoveShip(id, player string, x, y int) (string, error) {
	g, ok := e.lookup(id)
	if !ok {
		return "", ErrGameNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeShip(player, x, y)
}

// SetReady marks the player ready once their whole fleet is placed.
func (e *Engine) SetReady(id, player string) (string, error) {
	g, ok := e.lookup(id)
	if !ok {
		return "", ErrGameNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setReady(player)
}

// MakeMove adjudicates player shooting at (x, y).
func (e *Engine) MakeMove(id, player string, x, y int) (MoveResult, error) {
	g, ok := e.lookup(id)
	if !ok {
		return MoveResult{}, ErrGameNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.makeMove(player, x, y)
}

// State projects the game for one player; see state.go for the redaction
// policy.
func (e *Engine) State(id, player string) (*PlayerState, error) {
	g, ok := e.lookup(id)
	if !ok {
		return nil, ErrGameNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasPlayer(player) {
		return nil, ErrGameNotFound
	}
	return g.stateFor(player), nil
}

func (e *Engine) lookup(id string) (*Game, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.games[id]
	return g, ok
}
