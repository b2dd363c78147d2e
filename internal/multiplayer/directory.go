package multiplayer

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/tilenet/internal/game/world"
)

// Directory maps multiplayer ids to the remote agents known to this process.
// All methods are safe for concurrent use.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]world.Agent // multiplayerID → agent
	order  []string               // registration order
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{agents: make(map[string]world.Agent)}
}

// Add registers a new agent.
//
// Precondition: a.MultiplayerID must be non-empty.
// Postcondition: Returns an error if the id is empty or already registered.
func (d *Directory) Add(a world.Agent) error {
	if !a.Assigned() {
		return fmt.Errorf("agent %q has no multiplayer id", a.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.MultiplayerID]; exists {
		return fmt.Errorf("agent %q already registered", a.MultiplayerID)
	}
	d.agents[a.MultiplayerID] = a
	d.order = append(d.order, a.MultiplayerID)
	return nil
}

// Put registers a, replacing any agent with the same id.
//
// Precondition: a.MultiplayerID must be non-empty.
func (d *Directory) Put(a world.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.MultiplayerID]; !exists {
		d.order = append(d.order, a.MultiplayerID)
	}
	d.agents[a.MultiplayerID] = a
}

// Remove deletes the agent with id.
//
// Postcondition: Returns (agent, true) if it was registered, or (zero, false) otherwise.
func (d *Directory) Remove(id string) (world.Agent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return world.Agent{}, false
	}
	delete(d.agents, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return a, true
}

// Get returns the agent with id.
//
// Postcondition: Returns (agent, true) if found, or (zero, false) otherwise.
func (d *Directory) Get(id string) (world.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	return a, ok
}

// Has reports whether id is registered.
func (d *Directory) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.agents[id]
	return ok
}

// Move sets the location and tile of the agent with id.
//
// Postcondition: Returns false if id is not registered.
func (d *Directory) Move(id string, loc world.Location, tileID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return false
	}
	a.Location = loc
	a.TileID = tileID
	d.agents[id] = a
	return true
}

// Agents returns a snapshot of every agent in registration order.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (d *Directory) Agents() []world.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]world.Agent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.agents[id])
	}
	return out
}

// Len returns the number of registered agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// Clear removes every agent and returns what was removed.
func (d *Directory) Clear() []world.Agent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]world.Agent, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.agents[id])
	}
	d.agents = make(map[string]world.Agent)
	d.order = nil
	return out
}
