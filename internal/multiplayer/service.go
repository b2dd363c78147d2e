// Package multiplayer reconciles the local game world with remote peers over a
// session hosted by one process and joined by others.
//
// The simulation thread drives a Service once per tick: ReadUpdates applies
// everything received since the previous tick and WriteUpdates publishes the
// positions this process is authoritative for. Network I/O happens on
// background goroutines; neither call blocks on a socket.
package multiplayer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/game/world"
	"github.com/cory-johannsen/tilenet/internal/protocol"
	"github.com/cory-johannsen/tilenet/internal/transport"
)

// Role is the session role this process currently plays.
type Role int

const (
	RoleIdle Role = iota
	RoleHosting
	RoleJoined
)

func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleHosting:
		return "hosting"
	case RoleJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Registry is the set of agents drawn alongside the local player.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Add inserts a or updates its position if already present.
	Add(a world.Agent)
	// Remove drops a. Removing an absent agent is a no-op.
	Remove(a world.Agent)
	// ListMonsters returns the monsters this process simulates.
	ListMonsters() []world.Agent
}

// Notifier shows short status messages to the user.
type Notifier interface {
	Notify(text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(text string)

// Notify calls f(text).
func (f NotifierFunc) Notify(text string) { f(text) }

// Option configures optional Service behaviour.
type Option func(*Service)

// WithTurnHandler sets the callback fired at each host turn boundary.
func WithTurnHandler(fn func(turn uint64)) Option {
	return func(s *Service) { s.onTurn = fn }
}

// event is one item moved from the transport into the session inbox.
type event struct {
	connID       string
	msg          protocol.Message
	disconnected bool
}

// Service owns the session role state machine and the directory of remote agents.
// All exported methods are safe for concurrent use.
type Service struct {
	network  config.NetworkConfig
	session  config.SessionConfig
	logger   *zap.Logger
	local    world.LocalAgent
	registry Registry
	notifier Notifier
	onTurn   func(turn uint64)
	dir      *Directory
	health   health

	mu         sync.Mutex
	role       Role
	server     *transport.Server
	client     *transport.Client
	assigned   bool
	previousID string
	nextID     int
	connAgents map[string]string // connID → multiplayerID, host only
	rendered   map[string]world.Agent
	inbox      chan event
	reader     *worker
	clock      *worker
	turnClock  *TurnClock
}

// NewService creates an idle Service.
//
// Precondition: logger, local, registry and notifier must be non-nil.
// Postcondition: Returns a Service in RoleIdle.
func NewService(
	network config.NetworkConfig,
	session config.SessionConfig,
	logger *zap.Logger,
	local world.LocalAgent,
	registry Registry,
	notifier Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		network:  network,
		session:  session,
		logger:   logger,
		local:    local,
		registry: registry,
		notifier: notifier,
		dir:      NewDirectory(),
		rendered: make(map[string]world.Agent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Host starts a session listening on host:port with this process as authority.
//
// Precondition: the Service must be idle.
// Postcondition: On success the role is RoleHosting and the local agent has id "0".
// Returns an error wrapping ErrIllegalState if a role is active, or the bind error.
func (s *Service) Host(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleIdle {
		return fmt.Errorf("cannot host while %s: %w", s.role, ErrIllegalState)
	}

	srv := transport.NewServer(s.network, s.logger)
	if err := srv.Bind(host, port); err != nil {
		return fmt.Errorf("hosting on %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}

	s.health.reset()
	s.role = RoleHosting
	s.server = srv
	s.connAgents = make(map[string]string)
	s.previousID = s.local.MultiplayerID()
	s.nextID = 0
	s.local.SetMultiplayerID("")
	s.local.SetMultiplayerID(s.allocateIDLocked())

	s.inbox = make(chan event, s.session.InboxSize)
	s.reader = startWorker("session reader", s.logger, &s.health, s.pollServer(srv, s.inbox))
	s.turnClock = NewTurnClock(s.session, s.local.SetSpentActionPoints, s.onTurn)
	s.clock = startWorker("turn clock", s.logger, &s.health, s.turnClock.run)

	s.logger.Info("hosting session",
		zap.String("addr", srv.Addr()),
		zap.String("multiplayer_id", s.local.MultiplayerID()),
	)
	return nil
}

// Join connects to the session at host:port and requests an id.
//
// Precondition: the Service must be idle.
// Postcondition: On success the role is RoleJoined and unassigned until the host's
// ConnectAccept is read. On a connect timeout the user is notified and the returned
// error wraps transport.ErrConnectionTimeout.
func (s *Service) Join(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != RoleIdle {
		return fmt.Errorf("cannot join while %s: %w", s.role, ErrIllegalState)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	cl, err := transport.Dial(ctx, addr, s.network, s.logger)
	if err != nil {
		if errors.Is(err, transport.ErrConnectionTimeout) {
			s.notifier.Notify("Connection timed out")
		} else {
			s.notifier.Notify("Could not connect to " + addr)
		}
		return fmt.Errorf("joining %s: %w", addr, err)
	}

	if err := cl.Send(protocol.NewConnectRequest(world.Snapshot(s.local))); err != nil {
		_ = cl.Close()
		return fmt.Errorf("requesting to join %s: %w", addr, err)
	}

	s.health.reset()
	s.role = RoleJoined
	s.client = cl
	s.assigned = false
	s.previousID = s.local.MultiplayerID()
	s.inbox = make(chan event, s.session.InboxSize)
	s.reader = startWorker("session reader", s.logger, &s.health, s.pollClient(cl, s.inbox))

	s.logger.Info("joined session", zap.String("addr", addr), zap.String("conn_id", cl.ID()))
	return nil
}

// Quit ends the active role and returns the Service to RoleIdle. Quit while idle is a no-op.
//
// Postcondition: No session goroutine is running unless a join timed out, in which
// case the returned error names it. Directory and render set are empty.
func (s *Service) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.role {
	case RoleHosting:
		return s.stopHostingLocked()
	case RoleJoined:
		return s.leaveLocked(true)
	default:
		return nil
	}
}

func (s *Service) stopHostingLocked() error {
	if err := s.server.Send(protocol.ConnectTerminate{}); err != nil {
		s.logger.Warn("announcing session end", zap.Error(err))
	}
	if err := s.server.Flush(s.session.FlushTimeout); err != nil {
		s.logger.Debug("flushing session end", zap.Error(err))
	}

	errs := s.stopWorkersLocked()
	errs = multierr.Append(errs, s.server.Close())
	s.resetLocked()
	s.logger.Info("stopped hosting")
	return errs
}

// leaveLocked tears down the joined role. announce sends PlayerLeave first when
// the host still expects one.
func (s *Service) leaveLocked(announce bool) error {
	if announce && s.assigned {
		if err := s.client.Send(protocol.PlayerLeave{MultiplayerID: s.local.MultiplayerID()}); err != nil {
			s.logger.Warn("announcing leave", zap.Error(err))
		} else if err := s.client.Flush(s.session.FlushTimeout); err != nil {
			s.logger.Debug("flushing leave", zap.Error(err))
		}
	}

	errs := s.stopWorkersLocked()
	errs = multierr.Append(errs, s.client.Close())
	s.resetLocked()
	s.logger.Info("left session")
	return errs
}

func (s *Service) stopWorkersLocked() error {
	var errs error
	for _, w := range []*worker{s.reader, s.clock} {
		if w != nil {
			errs = multierr.Append(errs, w.Stop(s.session.StopTimeout))
		}
	}
	return errs
}

// resetLocked clears all role state and restores the local agent's prior id.
func (s *Service) resetLocked() {
	s.dir.Clear()
	for _, a := range s.rendered {
		s.registry.Remove(a)
	}
	s.rendered = make(map[string]world.Agent)
	s.local.SetMultiplayerID(s.previousID)
	s.local.SetSpentActionPoints(0)

	s.role = RoleIdle
	s.server = nil
	s.client = nil
	s.assigned = false
	s.previousID = ""
	s.connAgents = nil
	s.inbox = nil
	s.reader = nil
	s.clock = nil
	s.turnClock = nil
}

// allocateIDLocked returns the lowest unused numeric id at or above nextID.
func (s *Service) allocateIDLocked() string {
	taken := map[string]struct{}{s.local.MultiplayerID(): {}}
	for _, m := range s.registry.ListMonsters() {
		taken[m.MultiplayerID] = struct{}{}
	}
	for {
		id := strconv.Itoa(s.nextID)
		s.nextID++
		if _, ok := taken[id]; ok || s.dir.Has(id) {
			continue
		}
		return id
	}
}

// ReadUpdates applies every message received since the previous call, then
// syncs the render set with the local agent's area. It never blocks on I/O.
func (s *Service) ReadUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role == RoleIdle {
		return
	}
	inbox := s.inbox
	for n := len(inbox); n > 0; n-- {
		s.dispatch(<-inbox)
		if s.role == RoleIdle {
			return
		}
	}
	s.syncRenderSetLocked()
}

// WriteUpdates publishes the positions this process is authoritative for.
// The host sends the local agent, then remote agents, then monsters, as one frame
// per tick; a connection too backed up to take it skips the tick and catches up
// on the next. An assigned client sends only its local agent.
func (s *Service) WriteUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs error
	switch s.role {
	case RoleHosting:
		updates := []protocol.Message{protocol.NewLocationUpdate(world.Snapshot(s.local))}
		for _, a := range s.dir.Agents() {
			updates = append(updates, protocol.NewLocationUpdate(a))
		}
		for _, m := range s.registry.ListMonsters() {
			updates = append(updates, protocol.NewLocationUpdate(m))
		}
		errs = s.server.Write(updates...)
	case RoleJoined:
		if s.assigned {
			errs = s.client.Write(protocol.NewLocationUpdate(world.Snapshot(s.local)))
		}
	}
	if errs != nil {
		s.logger.Warn("writing updates", zap.String("role", s.role.String()), zap.Error(errs))
	}
}

// syncRenderSetLocked mirrors agents in the local agent's map and level into the
// registry and removes every other agent it previously mirrored.
func (s *Service) syncRenderSetLocked() {
	here := s.local.Location()
	keep := make(map[string]world.Agent)
	for _, a := range s.dir.Agents() {
		if a.Location.SameArea(here) {
			s.registry.Add(a)
			keep[a.MultiplayerID] = a
		}
	}
	for id, a := range s.rendered {
		if _, ok := keep[id]; !ok {
			s.registry.Remove(a)
		}
	}
	s.rendered = keep
}

// Role returns the active role.
func (s *Service) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Assigned reports whether the local agent holds an id in the active session.
func (s *Service) Assigned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role == RoleHosting || s.assigned
}

// Agents returns a snapshot of the remote agents known to this process.
func (s *Service) Agents() []world.Agent {
	return s.dir.Agents()
}

// ServerAddr returns the bound listener address while hosting, or "".
func (s *Service) ServerAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Turns returns the number of completed host turns in the current session.
func (s *Service) Turns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnClock == nil {
		return 0
	}
	return s.turnClock.Turns()
}

// Health returns nil while every background goroutine of the current session is
// healthy, or an error wrapping ErrThreadFault for each one that faulted.
func (s *Service) Health() error {
	return s.health.err()
}
