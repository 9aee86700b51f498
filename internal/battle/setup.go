package battle

import "math/rand"

// The battlefield is a 10x10 grid. Cells are encoded row*10+col, which
// is also the encoding the client uses to place tiles.
const (
	GridWidth     = 10
	GridSize      = GridWidth * GridWidth
	ObstacleCount = 10
	TerrainCount  = 3
)

// Cell is one grid cell, 0..99.
type Cell int

func (c Cell) Row() int { return int(c) / GridWidth }
func (c Cell) Col() int { return int(c) % GridWidth }

// Mirror reflects the cell across the grid diagonal: (r,c) -> (c,r).
// Each client renders the board from its own side, so the opponent's
// obstacle layout is the mirror of ours; overlaying the two views
// yields the same physical battlefield.
func (c Cell) Mirror() Cell {
	return Cell(c.Col()*GridWidth + c.Row())
}

// Terrain selects the tile set the client renders with.
type Terrain int

// Party spawn cells. Obstacles never land on these or on the border.
var spawnCells = [2]Cell{18, 81}

// Formations are the six orders three characters can stand in.
var Formations = [6][3]int{
	{0, 1, 2},
	{0, 2, 1},
	{1, 0, 2},
	{1, 2, 0},
	{2, 0, 1},
	{2, 1, 0},
}

// Setup is one side's immutable view of a freshly made battle. Field
// names on the wire match what the browser client expects.
type Setup struct {
	Room           RoomID  `json:"battleRoom"`
	Terrain        Terrain `json:"groundType"`
	AllyFormation  [3]int  `json:"allyPartyPositions"`
	EnemyFormation [3]int  `json:"enemyPartyPositions"`
	Obstacles      []Cell  `json:"wallPositions"`
}

// obstacleCandidates returns every cell an obstacle may occupy:
// the grid interior minus the two spawn cells.
func obstacleCandidates() []Cell {
	cells := make([]Cell, 0, GridSize)
	for i := 0; i < GridSize; i++ {
		c := Cell(i)
		if c.Row() == 0 || c.Row() == GridWidth-1 || c.Col() == 0 || c.Col() == GridWidth-1 {
			continue
		}
		if c == spawnCells[0] || c == spawnCells[1] {
			continue
		}
		cells = append(cells, c)
	}
	return cells
}

// GenerateSetups rolls terrain, both formations and the obstacle set
// for a new pairing and returns the two mirrored views: same terrain,
// formations swapped, obstacles reflected cell-wise. The first setup
// belongs to the first connection of the room tuple.
func GenerateSetups(room RoomID, rng *rand.Rand) (Setup, Setup) {
	terrain := Terrain(rng.Intn(TerrainCount))
	first := Formations[rng.Intn(len(Formations))]
	second := Formations[rng.Intn(len(Formations))]

	cells := obstacleCandidates()
	rng.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})

	obstacles := make([]Cell, ObstacleCount)
	mirrored := make([]Cell, ObstacleCount)
	for i := 0; i < ObstacleCount; i++ {
		obstacles[i] = cells[i]
		mirrored[i] = cells[i].Mirror()
	}

	a := Setup{
		Room:           room,
		Terrain:        terrain,
		AllyFormation:  first,
		EnemyFormation: second,
		Obstacles:      obstacles,
	}
	b := Setup{
		Room:           room,
		Terrain:        terrain,
		AllyFormation:  second,
		EnemyFormation: first,
		Obstacles:      mirrored,
	}
	return a, b
}
