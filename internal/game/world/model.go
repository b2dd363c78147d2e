// Package world provides the positional model shared by every agent in a session:
// coordinates, locations, and the agents themselves.
package world

import "fmt"

// Coordinate is a tile position on a single map level.
type Coordinate struct {
	X int
	Y int
}

// String returns the coordinate in "(x, y)" form.
func (c Coordinate) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Location places a coordinate on a specific map and level.
type Location struct {
	// MapIndex identifies the map (town, dungeon, overworld) the agent is on.
	MapIndex int
	// LevelIndex identifies the level within the map.
	LevelIndex int
	Coordinate
}

// SameArea reports whether l and other are on the same map and level.
// Coordinates are not compared.
func (l Location) SameArea(other Location) bool {
	return l.MapIndex == other.MapIndex && l.LevelIndex == other.LevelIndex
}

// String returns the location in "map/level (x, y)" form.
func (l Location) String() string {
	return fmt.Sprintf("%d/%d %s", l.MapIndex, l.LevelIndex, l.Coordinate)
}

// Agent is a positioned actor participating in a session: a remote player or an NPC.
// Agent is a value type; holders that share agents across goroutines hand out copies.
type Agent struct {
	// MultiplayerID uniquely identifies the agent within a session.
	// The empty string means no id has been assigned yet.
	MultiplayerID string
	// Name is the display name.
	Name string
	// TileID references the sprite tile used to draw the agent.
	TileID int
	// Dexterity is the agent's dexterity score.
	Dexterity int
	// Location is where the agent currently stands.
	Location Location
}

// Assigned reports whether the agent has a multiplayer id.
func (a Agent) Assigned() bool {
	return a.MultiplayerID != ""
}

// LocalAgent is the process's own player as seen by the networking core.
// Implementations must be safe for concurrent use: the turn clock writes spent
// action points from its own goroutine.
type LocalAgent interface {
	Name() string
	TileID() int
	Dexterity() int
	Location() Location
	SetLocation(loc Location)
	MultiplayerID() string
	SetMultiplayerID(id string)
	SetSpentActionPoints(points float64)
}

// Snapshot returns the local agent's current state as an Agent value.
//
// Precondition: local must be non-nil.
func Snapshot(local LocalAgent) Agent {
	return Agent{
		MultiplayerID: local.MultiplayerID(),
		Name:          local.Name(),
		TileID:        local.TileID(),
		Dexterity:     local.Dexterity(),
		Location:      local.Location(),
	}
}
