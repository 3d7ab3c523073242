// Package tictactoe implements the board rules for the two-player game
// variant: move validation, turn alternation, and terminal detection.
// It knows nothing about rooms or transports.
package tictactoe

import "errors"

// Mark is a player's board symbol.
type Mark string

// The two roles. The zero value means an empty cell.
const (
	MarkX Mark = "X"
	MarkO Mark = "O"
)

// Cells is the number of board positions.
const Cells = 9

// Move rejection reasons. All leave the game state untouched.
var (
	ErrFinished     = errors.New("game is finished")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrOutOfRange   = errors.New("cell index out of range")
	ErrCellOccupied = errors.New("cell occupied")
)

// lines are the eight winning triples.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Other returns the opposing mark.
func (m Mark) Other() Mark {
	if m == MarkX {
		return MarkO
	}
	return MarkX
}

// Game is a single tic-tac-toe board with a turn marker.
// It is not safe for concurrent use; the owning room serializes access.
type Game struct {
	board [Cells]Mark
	turn  Mark
}

// New creates an empty game with X to move.
func New() *Game {
	return &Game{turn: MarkX}
}

// Turn returns the mark whose turn it is.
func (g *Game) Turn() Mark {
	return g.turn
}

// Board returns a copy of the board. Empty cells are the zero Mark.
func (g *Game) Board() []Mark {
	out := make([]Mark, Cells)
	copy(out, g.board[:])
	return out
}

// Move places mark at index.
//
// Precondition: mark must be MarkX or MarkO.
// Postcondition: On success the cell is occupied and, unless the move ended
// the game, the turn has passed to the other mark. On error the game is
// byte-for-byte unchanged.
func (g *Game) Move(mark Mark, index int) error {
	if _, finished := g.Result(); finished {
		return ErrFinished
	}
	if mark != g.turn {
		return ErrNotYourTurn
	}
	if index < 0 || index >= Cells {
		return ErrOutOfRange
	}
	if g.board[index] != "" {
		return ErrCellOccupied
	}

	g.board[index] = mark
	if _, finished := g.Result(); !finished {
		g.turn = g.turn.Other()
	}
	return nil
}

// Result reports the terminal state of the board.
//
// Postcondition: Returns (winner, true) when a line is complete,
// ("", true) on a draw, or ("", false) while the game is in progress.
func (g *Game) Result() (Mark, bool) {
	for _, line := range lines {
		a, b, c := g.board[line[0]], g.board[line[1]], g.board[line[2]]
		if a != "" && a == b && a == c {
			return a, true
		}
	}
	for _, cell := range g.board {
		if cell == "" {
			return "", false
		}
	}
	return "", true
}

// Reset clears the board and gives the first move back to X.
func (g *Game) Reset() {
	g.board = [Cells]Mark{}
	g.turn = MarkX
}
