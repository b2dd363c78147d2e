// Package protocol defines the closed message catalog exchanged between a hosting
// process and its joined clients, and the line-framed text codec that carries it.
package protocol

import (
	"strconv"

	"github.com/cory-johannsen/tilenet/internal/game/world"
)

// Kind is the wire name of a catalog message type.
type Kind string

// Catalog message kinds. The string value is written as the first field of every line.
const (
	KindConnectRequest   Kind = "ConnectRequest"
	KindConnectAccept    Kind = "ConnectAccept"
	KindConnectTerminate Kind = "ConnectTerminate"
	KindPlayerJoin       Kind = "PlayerJoin"
	KindPlayerLeave      Kind = "PlayerLeave"
	KindLocationUpdate   Kind = "LocationUpdate"
)

// Message is a value from the closed message catalog.
// Only the types declared in this package implement it.
type Message interface {
	// Kind returns the catalog name of the message type.
	Kind() Kind
	// fields returns the textual field values in declared wire order.
	fields() []string
}

// ConnectRequest is sent by a joining client to announce its player.
type ConnectRequest struct {
	Name          string
	TileID        int
	Dexterity     int
	LocationIndex int
	LevelIndex    int
	X             int
	Y             int
}

// ConnectAccept is the host's reply to a ConnectRequest carrying the assigned id
// and the spawn coordinate.
type ConnectAccept struct {
	MultiplayerID string
	X             int
	Y             int
}

// ConnectTerminate tells clients the host is ending the session.
type ConnectTerminate struct{}

// PlayerJoin announces an agent to a peer.
type PlayerJoin struct {
	Name          string
	TileID        int
	Dexterity     int
	MultiplayerID string
	LocationIndex int
	LevelIndex    int
	X             int
	Y             int
}

// PlayerLeave announces that an agent has left the session.
type PlayerLeave struct {
	MultiplayerID string
}

// LocationUpdate carries an agent's current location and tile.
type LocationUpdate struct {
	MultiplayerID string
	LocationIndex int
	LevelIndex    int
	X             int
	Y             int
	TileID        int
}

func (ConnectRequest) Kind() Kind   { return KindConnectRequest }
func (ConnectAccept) Kind() Kind    { return KindConnectAccept }
func (ConnectTerminate) Kind() Kind { return KindConnectTerminate }
func (PlayerJoin) Kind() Kind       { return KindPlayerJoin }
func (PlayerLeave) Kind() Kind      { return KindPlayerLeave }
func (LocationUpdate) Kind() Kind   { return KindLocationUpdate }

func (m ConnectRequest) fields() []string {
	return []string{m.Name, itoa(m.TileID), itoa(m.Dexterity), itoa(m.LocationIndex), itoa(m.LevelIndex), itoa(m.X), itoa(m.Y)}
}

func (m ConnectAccept) fields() []string {
	return []string{m.MultiplayerID, itoa(m.X), itoa(m.Y)}
}

func (ConnectTerminate) fields() []string { return nil }

func (m PlayerJoin) fields() []string {
	return []string{m.Name, itoa(m.TileID), itoa(m.Dexterity), m.MultiplayerID, itoa(m.LocationIndex), itoa(m.LevelIndex), itoa(m.X), itoa(m.Y)}
}

func (m PlayerLeave) fields() []string { return []string{m.MultiplayerID} }

func (m LocationUpdate) fields() []string {
	return []string{m.MultiplayerID, itoa(m.LocationIndex), itoa(m.LevelIndex), itoa(m.X), itoa(m.Y), itoa(m.TileID)}
}

// Coordinate returns the requested spawn coordinate.
func (m ConnectRequest) Coordinate() world.Coordinate { return world.Coordinate{X: m.X, Y: m.Y} }

// Location returns the requested spawn location.
func (m ConnectRequest) Location() world.Location {
	return world.Location{MapIndex: m.LocationIndex, LevelIndex: m.LevelIndex, Coordinate: m.Coordinate()}
}

// Coordinate returns the spawn coordinate assigned by the host.
func (m ConnectAccept) Coordinate() world.Coordinate { return world.Coordinate{X: m.X, Y: m.Y} }

// Coordinate returns the joining agent's coordinate.
func (m PlayerJoin) Coordinate() world.Coordinate { return world.Coordinate{X: m.X, Y: m.Y} }

// Location returns the joining agent's location.
func (m PlayerJoin) Location() world.Location {
	return world.Location{MapIndex: m.LocationIndex, LevelIndex: m.LevelIndex, Coordinate: m.Coordinate()}
}

// Agent reconstructs the announced agent.
func (m PlayerJoin) Agent() world.Agent {
	return world.Agent{
		MultiplayerID: m.MultiplayerID,
		Name:          m.Name,
		TileID:        m.TileID,
		Dexterity:     m.Dexterity,
		Location:      m.Location(),
	}
}

// Coordinate returns the updated coordinate.
func (m LocationUpdate) Coordinate() world.Coordinate { return world.Coordinate{X: m.X, Y: m.Y} }

// Location returns the updated location.
func (m LocationUpdate) Location() world.Location {
	return world.Location{MapIndex: m.LocationIndex, LevelIndex: m.LevelIndex, Coordinate: m.Coordinate()}
}

// NewConnectRequest builds the request a joining client sends for its own agent.
func NewConnectRequest(a world.Agent) ConnectRequest {
	return ConnectRequest{
		Name:          a.Name,
		TileID:        a.TileID,
		Dexterity:     a.Dexterity,
		LocationIndex: a.Location.MapIndex,
		LevelIndex:    a.Location.LevelIndex,
		X:             a.Location.X,
		Y:             a.Location.Y,
	}
}

// NewPlayerJoin announces a.
//
// Precondition: a must have a multiplayer id.
func NewPlayerJoin(a world.Agent) PlayerJoin {
	return PlayerJoin{
		Name:          a.Name,
		TileID:        a.TileID,
		Dexterity:     a.Dexterity,
		MultiplayerID: a.MultiplayerID,
		LocationIndex: a.Location.MapIndex,
		LevelIndex:    a.Location.LevelIndex,
		X:             a.Location.X,
		Y:             a.Location.Y,
	}
}

// NewLocationUpdate reports a's current location and tile.
//
// Precondition: a must have a multiplayer id.
func NewLocationUpdate(a world.Agent) LocationUpdate {
	return LocationUpdate{
		MultiplayerID: a.MultiplayerID,
		LocationIndex: a.Location.MapIndex,
		LevelIndex:    a.Location.LevelIndex,
		X:             a.Location.X,
		Y:             a.Location.Y,
		TileID:        a.TileID,
	}
}

func itoa(v int) string { return strconv.Itoa(v) }
