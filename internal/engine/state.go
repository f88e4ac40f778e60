// internal/engine/state.go
package engine

// PlayerState is the per-player projection of a game. The opponent's board
// is redacted: the client sees only the cells it has already shot, marked
// from its own hit grid. Unhit ship cells are revealed only once the game
// has a winner.
type PlayerState struct {
	Players       [2]string   `json:"players"`
	Self          string      `json:"self"`
	OwnBoard      Grid        `json:"own_board"`
	OpponentBoard Grid        `json:"opponent_board"`
	Hits          Grid        `json:"hits"`
	OpponentHits  Grid        `json:"opponent_hits"`
	PlacedShips   []*Ship     `json:"placed_ships"`
	ShipsLeft     map[int]int `json:"ships_left"`
	Ready         bool        `json:"ready"`
	OpponentReady bool        `json:"opponent_ready"`
	Turn          string      `json:"turn"`
	Winner        string      `json:"winner,omitempty"`
}

// stateFor builds the projection. Caller holds g.mu.
func (g *Game) stateFor(player string) *PlayerState {
	enemy := g.opponent(player)

	shipsLeft := make(map[int]int, len(g.shipsLeft[player]))
	for length, count := range g.shipsLeft[player] {
		shipsLeft[length] = count
	}

	placed := make([]*Ship, len(g.placed[player]))
	for i, ship := range g.placed[player] {
		coords := make([]Coord, len(ship.Coords))
		copy(coords, ship.Coords)
		placed[i] = &Ship{Coords: coords, Sunk: ship.Sunk}
	}

	return &PlayerState{
		Players:       g.players,
		Self:          player,
		OwnBoard:      *g.boards[player],
		OpponentBoard: g.redactedEnemyBoard(player),
		Hits:          *g.hits[player],
		OpponentHits:  *g.hits[enemy],
		PlacedShips:   placed,
		ShipsLeft:     shipsLeft,
		Ready:         g.ready[player],
		OpponentReady: g.ready[enemy],
		Turn:          g.turn,
		Winner:        g.winner,
	}
}

// redactedEnemyBoard renders the opponent's board for player. Before the
// game is decided it carries only the player's own hit and miss marks; after
// a win the remaining ship cells are revealed. Caller holds g.mu.
func (g *Game) redactedEnemyBoard(player string) Grid {
	var out Grid
	hits := g.hits[player]
	for y := 0; y < BoardSize; y++ {
		for x := 0; x < BoardSize; x++ {
			out[y][x] = hits[y][x]
		}
	}
	if g.winner != "" {
		enemyBoard := g.boards[g.opponent(player)]
		for y := 0; y < BoardSize; y++ {
			for x := 0; x < BoardSize; x++ {
				if enemyBoard[y][x] == CellShip && out[y][x] == "" {
					out[y][x] = CellShip
				}
			}
		}
	}
	return out
}
