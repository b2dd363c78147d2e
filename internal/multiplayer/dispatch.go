package multiplayer

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/game/world"
	"github.com/cory-johannsen/tilenet/internal/protocol"
)

// dispatch routes one inbox event to the handler for the active role.
// A panic or error in a handler is logged and does not stop the tick.
func (s *Service) dispatch(ev event) {
	kind := "disconnect"
	if ev.msg != nil {
		kind = string(ev.msg.Kind())
	}
	log := s.logger.With(zap.String("conn_id", ev.connID), zap.String("kind", kind))

	defer func() {
		if r := recover(); r != nil {
			log.Error("message handler panicked", zap.Any("panic", r), zap.Stack("trace"))
		}
	}()

	var err error
	switch s.role {
	case RoleHosting:
		err = s.handleHost(ev)
	case RoleJoined:
		err = s.handleClient(ev)
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrUnexpectedMessage):
		log.Warn("dropping message", zap.Error(err))
	default:
		log.Error("handling message", zap.Error(err))
	}
}

func (s *Service) handleHost(ev event) error {
	if ev.disconnected {
		return s.hostDisconnect(ev.connID)
	}
	switch m := ev.msg.(type) {
	case protocol.ConnectRequest:
		return s.hostAccept(ev.connID, m)
	case protocol.LocationUpdate:
		return s.hostMove(ev.connID, m)
	case protocol.PlayerLeave:
		return s.hostLeave(ev.connID, m)
	case protocol.ConnectAccept, protocol.ConnectTerminate, protocol.PlayerJoin:
		return fmt.Errorf("%s while hosting: %w", m.Kind(), ErrUnexpectedMessage)
	default:
		return fmt.Errorf("%T: %w", m, ErrUnexpectedMessage)
	}
}

// hostAccept admits a new remote agent, tells it its id, announces it to every
// connection, and sends the newcomer every agent it does not yet know in one frame.
func (s *Service) hostAccept(connID string, m protocol.ConnectRequest) error {
	if id, ok := s.connAgents[connID]; ok {
		return fmt.Errorf("connection already joined as %q: %w", id, ErrUnexpectedMessage)
	}

	agent := world.Agent{
		MultiplayerID: s.allocateIDLocked(),
		Name:          m.Name,
		TileID:        m.TileID,
		Dexterity:     m.Dexterity,
		Location:      m.Location(),
	}
	if err := s.dir.Add(agent); err != nil {
		return err
	}
	s.connAgents[connID] = agent.MultiplayerID

	accept := protocol.ConnectAccept{MultiplayerID: agent.MultiplayerID, X: m.X, Y: m.Y}
	if err := s.server.SendTo(connID, accept); err != nil {
		return fmt.Errorf("accepting %q: %w", agent.Name, err)
	}

	errs := s.server.Send(protocol.NewPlayerJoin(agent))

	var catchUp []protocol.Message
	for _, other := range s.dir.Agents() {
		if other.MultiplayerID != agent.MultiplayerID {
			catchUp = append(catchUp, protocol.NewPlayerJoin(other))
		}
	}
	catchUp = append(catchUp, protocol.NewPlayerJoin(world.Snapshot(s.local)))
	for _, monster := range s.registry.ListMonsters() {
		catchUp = append(catchUp, protocol.NewPlayerJoin(monster))
	}
	errs = multierr.Append(errs, s.server.SendTo(connID, catchUp...))

	s.logger.Info("player joined",
		zap.String("conn_id", connID),
		zap.String("multiplayer_id", agent.MultiplayerID),
		zap.String("name", agent.Name),
		zap.Stringer("location", agent.Location),
	)
	s.notifier.Notify(agent.Name + " joined the game")
	return errs
}

// hostLeave removes the agent announced by its own connection.
func (s *Service) hostLeave(connID string, m protocol.PlayerLeave) error {
	owner, ok := s.connAgents[connID]
	if !ok || owner != m.MultiplayerID {
		return fmt.Errorf("leave for %q from connection owning %q: %w", m.MultiplayerID, owner, ErrUnexpectedMessage)
	}
	delete(s.connAgents, connID)
	errs := s.dropAgentLocked(m.MultiplayerID)
	return multierr.Append(errs, s.server.CloseClient(connID))
}

// hostDisconnect treats a connection that went away without leaving as a leave.
func (s *Service) hostDisconnect(connID string) error {
	id, ok := s.connAgents[connID]
	if !ok {
		s.logger.Debug("connection closed before joining", zap.String("conn_id", connID))
		return nil
	}
	delete(s.connAgents, connID)
	return s.dropAgentLocked(id)
}

// dropAgentLocked removes a remote agent and tells the remaining connections.
func (s *Service) dropAgentLocked(id string) error {
	agent, ok := s.removeAgentLocked(id)
	if !ok {
		return fmt.Errorf("leave for unknown agent %q: %w", id, ErrUnexpectedMessage)
	}
	s.logger.Info("player left", zap.String("multiplayer_id", id), zap.String("name", agent.Name))
	s.notifier.Notify(agent.Name + " left the game")
	return s.server.Send(protocol.PlayerLeave{MultiplayerID: id})
}

func (s *Service) removeAgentLocked(id string) (world.Agent, bool) {
	agent, ok := s.dir.Remove(id)
	if !ok {
		return world.Agent{}, false
	}
	s.registry.Remove(agent)
	delete(s.rendered, id)
	return agent, true
}

// hostMove applies a position only from the connection that owns the agent.
func (s *Service) hostMove(connID string, m protocol.LocationUpdate) error {
	if m.MultiplayerID == s.local.MultiplayerID() {
		return nil
	}
	if owner, ok := s.connAgents[connID]; !ok || owner != m.MultiplayerID {
		return fmt.Errorf("location for %q from connection owning %q: %w", m.MultiplayerID, owner, ErrUnexpectedMessage)
	}
	return s.applyLocation(m)
}

// applyLocation moves a remote agent. Updates naming the local agent are echoes
// and are ignored.
func (s *Service) applyLocation(m protocol.LocationUpdate) error {
	if m.MultiplayerID == s.local.MultiplayerID() {
		return nil
	}
	if !s.dir.Move(m.MultiplayerID, m.Location(), m.TileID) {
		return fmt.Errorf("location for unknown agent %q: %w", m.MultiplayerID, ErrUnexpectedMessage)
	}
	return nil
}

func (s *Service) handleClient(ev event) error {
	if ev.disconnected {
		s.notifier.Notify("Lost connection to host")
		s.logger.Warn("lost connection to host", zap.String("conn_id", ev.connID))
		return s.leaveLocked(false)
	}

	if !s.assigned {
		accept, ok := ev.msg.(protocol.ConnectAccept)
		if !ok {
			return fmt.Errorf("%s before ConnectAccept: %w", ev.msg.Kind(), ErrUnexpectedMessage)
		}
		s.local.SetMultiplayerID(accept.MultiplayerID)
		loc := s.local.Location()
		loc.Coordinate = accept.Coordinate()
		s.local.SetLocation(loc)
		s.assigned = true
		s.logger.Info("assigned multiplayer id", zap.String("multiplayer_id", accept.MultiplayerID))
		s.notifier.Notify("Joined the game")
		return nil
	}

	switch m := ev.msg.(type) {
	case protocol.PlayerJoin:
		if m.MultiplayerID == s.local.MultiplayerID() {
			return nil
		}
		s.dir.Put(m.Agent())
		return nil
	case protocol.PlayerLeave:
		if _, ok := s.removeAgentLocked(m.MultiplayerID); !ok {
			return fmt.Errorf("leave for unknown agent %q: %w", m.MultiplayerID, ErrUnexpectedMessage)
		}
		return nil
	case protocol.LocationUpdate:
		return s.applyLocation(m)
	case protocol.ConnectTerminate:
		s.notifier.Notify("Host ended the session")
		return s.leaveLocked(false)
	case protocol.ConnectRequest, protocol.ConnectAccept:
		return fmt.Errorf("%s while joined: %w", m.Kind(), ErrUnexpectedMessage)
	default:
		return fmt.Errorf("%T: %w", m, ErrUnexpectedMessage)
	}
}
