package world

import "sync"

// Player is the in-process LocalAgent implementation.
// All methods are safe for concurrent use.
type Player struct {
	mu            sync.RWMutex
	name          string
	tileID        int
	dexterity     int
	location      Location
	multiplayerID string
	spentAP       float64
}

// NewPlayer creates an unassigned Player standing at loc.
//
// Precondition: name must be non-empty.
// Postcondition: MultiplayerID() returns "" until SetMultiplayerID is called.
func NewPlayer(name string, tileID, dexterity int, loc Location) *Player {
	return &Player{
		name:      name,
		tileID:    tileID,
		dexterity: dexterity,
		location:  loc,
	}
}

// Name returns the display name.
func (p *Player) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// TileID returns the sprite tile reference.
func (p *Player) TileID() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tileID
}

// Dexterity returns the dexterity score.
func (p *Player) Dexterity() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dexterity
}

// Location returns the current location.
func (p *Player) Location() Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

// SetLocation moves the player to loc.
func (p *Player) SetLocation(loc Location) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = loc
}

// MultiplayerID returns the session id, or "" when unassigned.
func (p *Player) MultiplayerID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.multiplayerID
}

// SetMultiplayerID assigns the session id. The value is stored in the same
// field MultiplayerID reads from.
func (p *Player) SetMultiplayerID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multiplayerID = id
}

// SpentActionPoints returns the action points consumed in the current turn.
func (p *Player) SpentActionPoints() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spentAP
}

// SetSpentActionPoints records the action points consumed in the current turn.
func (p *Player) SetSpentActionPoints(points float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spentAP = points
}

var _ LocalAgent = (*Player)(nil)
