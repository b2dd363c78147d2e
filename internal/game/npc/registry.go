package npc

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cory-johannsen/tilenet/internal/game/world"
)

// MonsterIDPrefix starts every monster id, keeping monster ids disjoint from the
// numeric ids the host assigns to players.
const MonsterIDPrefix = "m"

type monster struct {
	agent  world.Agent
	home   world.Location
	radius int
}

// Registry tracks the agents the renderer draws alongside the local player:
// remote agents mirrored in by the session, and monsters simulated by the host.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	rendered map[string]world.Agent // multiplayerID → agent
	monsters map[string]*monster    // multiplayerID → monster
	spawned  []string               // monster ids in spawn order
	counter  atomic.Uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rendered: make(map[string]world.Agent),
		monsters: make(map[string]*monster),
	}
}

// Add mirrors a into the render set, replacing any entry with the same id.
//
// Precondition: a must have a multiplayer id.
func (r *Registry) Add(a world.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rendered[a.MultiplayerID] = a
}

// Remove drops a from the render set. Removing an absent agent is a no-op.
func (r *Registry) Remove(a world.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rendered, a.MultiplayerID)
}

// IsRendered reports whether the agent with id is in the render set.
func (r *Registry) IsRendered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rendered[id]
	return ok
}

// Rendered returns a snapshot of the render set ordered by id.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (r *Registry) Rendered() []world.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]world.Agent, 0, len(r.rendered))
	for _, a := range r.rendered {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MultiplayerID < out[j].MultiplayerID })
	return out
}

// Spawn creates one monster from tmpl at its spawn point.
//
// Precondition: tmpl must be non-nil and valid.
// Postcondition: Returns the new monster with a unique id starting with MonsterIDPrefix.
func (r *Registry) Spawn(tmpl *Template) (world.Agent, error) {
	if tmpl == nil {
		return world.Agent{}, fmt.Errorf("npc.Registry.Spawn: tmpl must not be nil")
	}
	if err := tmpl.Validate(); err != nil {
		return world.Agent{}, fmt.Errorf("npc.Registry.Spawn: %w", err)
	}

	n := r.counter.Add(1)
	a := world.Agent{
		MultiplayerID: fmt.Sprintf("%s%d", MonsterIDPrefix, n),
		Name:          tmpl.Name,
		TileID:        tmpl.TileID,
		Dexterity:     tmpl.Dexterity,
		Location:      tmpl.Spawn.Location(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.monsters[a.MultiplayerID] = &monster{agent: a, home: a.Location, radius: tmpl.WanderRadius}
	r.spawned = append(r.spawned, a.MultiplayerID)
	return a, nil
}

// SpawnAll spawns Count instances (at least one) of every template.
//
// Postcondition: Returns the number spawned, or an error on the first failure.
func (r *Registry) SpawnAll(templates []*Template) (int, error) {
	total := 0
	for _, tmpl := range templates {
		count := tmpl.Count
		if count == 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			if _, err := r.Spawn(tmpl); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// Despawn removes the monster with the given id.
//
// Postcondition: Returns an error if the monster is not found.
func (r *Registry) Despawn(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.monsters[id]; !ok {
		return fmt.Errorf("monster %q not found", id)
	}
	delete(r.monsters, id)
	for i, v := range r.spawned {
		if v == id {
			r.spawned = append(r.spawned[:i], r.spawned[i+1:]...)
			break
		}
	}
	return nil
}

// ListMonsters returns a snapshot of every active monster in spawn order.
//
// Postcondition: Returns a non-nil slice (may be empty).
func (r *Registry) ListMonsters() []world.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]world.Agent, 0, len(r.spawned))
	for _, id := range r.spawned {
		out = append(out, r.monsters[id].agent)
	}
	return out
}

// IsMonster reports whether id names a monster.
func IsMonster(id string) bool {
	return strings.HasPrefix(id, MonsterIDPrefix)
}

// Wander advances every roaming monster one step in a random direction,
// keeping it within its wander radius of home and on non-negative coordinates.
//
// Precondition: rng must be non-nil.
func (r *Registry) Wander(rng *rand.Rand) {
	steps := [...]world.Coordinate{{X: 0, Y: -1}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0}}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.spawned {
		m := r.monsters[id]
		if m.radius == 0 {
			continue
		}
		step := steps[rng.Intn(len(steps))]
		next := m.agent.Location.Coordinate
		next.X += step.X
		next.Y += step.Y
		if next.X < 0 || next.Y < 0 || abs(next.X-m.home.X) > m.radius || abs(next.Y-m.home.Y) > m.radius {
			continue
		}
		m.agent.Location.Coordinate = next
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
