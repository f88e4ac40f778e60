// internal/engine/game.go
package engine

import (
	"fmt"
	"strings"
	"sync"
)

// BoardSize is the side length of every grid.
const BoardSize = 10

// Cell markers. Own boards hold "" or CellShip; hit grids hold "", CellHit
// or CellMiss.
const (
	CellShip = "S"
	CellHit  = "X"
	CellMiss = "O"
)

// Orientation of a ship being placed.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Move outcomes.
const (
	OutcomeMiss = "MISS"
	OutcomeHit  = "HIT"
	OutcomeSunk = "SUNK"
	OutcomeWin  = "WIN"
)

// fleet is the fixed ship inventory by length: one 2, two 3s, one 4, one 5.
func fleet() map[int]int {
	return map[int]int{2: 1, 3: 2, 4: 1, 5: 1}
}

// Grid is a 10x10 board, origin top-left, indexed [y][x].
type Grid [BoardSize][BoardSize]string

// Coord is a board position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Ship is a placed ship: its cells and whether every cell has been hit.
type Ship struct {
	Coords []Coord `json:"coords"`
	Sunk   bool    `json:"sunk"`
}

// Game holds the authoritative state of one match. All access goes through
// its mutex so that operations on the same game are serialized while
// unrelated matches proceed in parallel.
type Game struct {
	mu sync.Mutex

	id      string
	players [2]string

	boards    map[string]*Grid
	hits      map[string]*Grid
	shipsLeft map[string]map[int]int
	placed    map[string][]*Ship
	ready     map[string]bool

	turn   string
	winner string
}

func newGame(id, p1, p2 string, first string) *Game {
	g := &Game{
		id:        id,
		players:   [2]string{p1, p2},
		boards:    map[string]*Grid{p1: {}, p2: {}},
		hits:      map[string]*Grid{p1: {}, p2: {}},
		shipsLeft: map[string]map[int]int{p1: fleet(), p2: fleet()},
		placed:    map[string][]*Ship{p1: {}, p2: {}},
		ready:     map[string]bool{p1: false, p2: false},
		turn:      first,
	}
	return g
}

func (g *Game) opponent(player string) string {
	if g.players[0] == player {
		return g.players[1]
	}
	return g.players[0]
}

func (g *Game) hasPlayer(player string) bool {
	return g.players[0] == player || g.players[1] == player
}

// placeShip validates inventory, bounds and overlap before committing the
// ship. Caller holds g.mu.
func (g *Game) placeShip(player string, x, y, length int, orientation Orientation) (string, error) {
	left := g.shipsLeft[player]
	if left[length] == 0 {
		return "", &RuleError{msg: fmt.Sprintf("NO MORE SHIPS OF LENGTH %d", length)}
	}

	coords := make([]Coord, 0, length)
	board := g.boards[player]
	for i := 0; i < length; i++ {
		cx, cy := x, y
		if orientation == Horizontal {
			cx += i
		} else {
			cy += i
		}
		if cx < 0 || cx >= BoardSize || cy < 0 || cy >= BoardSize {
			return "", &RuleError{msg: "SHIP OUT OF BOUNDS"}
		}
		if board[cy][cx] == CellShip {
			return "", &RuleError{msg: "SHIP OVERLAPS ANOTHER SHIP"}
		}
		coords = append(coords, Coord{X: cx, Y: cy})
	}

	for _, c := range coords {
		board[c.Y][c.X] = CellShip
	}
	g.placed[player] = append(g.placed[player], &Ship{Coords: coords})
	left[length]--
	return "SHIP PLACED", nil
}

// removeShip removes the ship containing (x, y) and returns it to the
// inventory. Caller holds g.mu.
func (g *Game) removeShip(player string, x, y int) (string, error) {
	ships := g.placed[player]
	for i, ship := range ships {
		if !ship.contains(x, y) {
			continue
		}
		board := g.boards[player]
		for _, c := range ship.Coords {
			board[c.Y][c.X] = ""
		}
		g.placed[player] = append(ships[:i], ships[i+1:]...)
		g.shipsLeft[player][len(ship.Coords)]++
		return "SHIP REMOVED", nil
	}
	return "", &RuleError{msg: "NO SHIP AT POSITION"}
}

// setReady flips the player's ready flag once the whole fleet is placed.
// Caller holds g.mu.
func (g *Game) setReady(player string) (string, error) {
	for _, count := range g.shipsLeft[player] {
		if count > 0 {
			return "", &RuleError{msg: "YOU MUST PLACE ALL SHIPS FIRST"}
		}
	}
	g.ready[player] = true
	return fmt.Sprintf("%s IS READY", strings.ToUpper(player)), nil
}

// makeMove adjudicates a shot at (x, y). Caller holds g.mu.
func (g *Game) makeMove(player string, x, y int) (MoveResult, error) {
	if g.winner != "" {
		return MoveResult{}, &RuleError{msg: "GAME IS OVER"}
	}
	if g.turn != player {
		return MoveResult{}, &RuleError{msg: "NOT YOUR TURN"}
	}
	if !g.ready[g.players[0]] || !g.ready[g.players[1]] {
		return MoveResult{}, &RuleError{msg: "YOU MUST PLACE ALL SHIPS FIRST"}
	}

	hits := g.hits[player]
	if hits[y][x] != "" {
		return MoveResult{}, &RuleError{msg: "ALREADY SHOT THIS POSITION"}
	}

	enemy := g.opponent(player)
	res := MoveResult{X: x, Y: y}

	if g.boards[enemy][y][x] == CellShip {
		hits[y][x] = CellHit
		res.Outcome = OutcomeHit
		res.Message = OutcomeHit

		// Only one ship can contain a coord; placement forbids overlap.
		for _, ship := range g.placed[enemy] {
			if !ship.contains(x, y) {
				continue
			}
			if ship.allHit(hits) {
				ship.Sunk = true
				res.Outcome = OutcomeSunk
				res.Message = fmt.Sprintf("SUNK SHIP: %d", len(ship.Coords))
				if g.allSunk(enemy) {
					g.winner = player
					res.Outcome = OutcomeWin
					res.Message = fmt.Sprintf("%s WINS", strings.ToUpper(player))
				}
			}
			break
		}
	} else {
		hits[y][x] = CellMiss
		res.Outcome = OutcomeMiss
		res.Message = OutcomeMiss
	}

	// Turn flips even on the winning shot; it is inert once winner is set.
	g.turn = enemy
	res.NextTurn = g.turn
	return res, nil
}

func (g *Game) allSunk(player string) bool {
	for _, ship := range g.placed[player] {
		if !ship.Sunk {
			return false
		}
	}
	return len(g.placed[player]) > 0
}

func (s *Ship) contains(x, y int) bool {
	for _, c := range s.Coords {
		if c.X == x && c.Y == y {
			return true
		}
	}
	return false
}

func (s *Ship) allHit(hits *Grid) bool {
	for _, c := range s.Coords {
		if hits[c.Y][c.X] != CellHit {
			return false
		}
	}
	return true
}
