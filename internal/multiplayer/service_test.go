package multiplayer_test

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tilenet/internal/game/npc"
	"github.com/cory-johannsen/tilenet/internal/game/world"
	"github.com/cory-johannsen/tilenet/internal/multiplayer"
	"github.com/cory-johannsen/tilenet/internal/protocol"
	"github.com/cory-johannsen/tilenet/internal/testutil"
	"github.com/cory-johannsen/tilenet/internal/transport"
)

const (
	waitFor = 2 * time.Second
	pollFor = 5 * time.Millisecond
)

type notices struct {
	mu   sync.Mutex
	seen []string
}

func (n *notices) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, text)
}

func (n *notices) Has(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.seen {
		if s == text {
			return true
		}
	}
	return false
}

type peer struct {
	svc      *multiplayer.Service
	player   *world.Player
	registry *npc.Registry
	notices  *notices
}

func newPeer(t *testing.T, name string, loc world.Location, opts ...multiplayer.Option) *peer {
	t.Helper()
	p := &peer{
		player:   world.NewPlayer(name, 1, 10, loc),
		registry: npc.NewRegistry(),
		notices:  &notices{},
	}
	p.svc = multiplayer.NewService(
		testutil.NetworkConfig(),
		testutil.SessionConfig(),
		zaptest.NewLogger(t).Named(name),
		p.player,
		p.registry,
		p.notices,
		opts...,
	)
	t.Cleanup(func() { _ = p.svc.Quit() })
	return p
}

func hosting(t *testing.T, name string, loc world.Location, opts ...multiplayer.Option) *peer {
	t.Helper()
	p := newPeer(t, name, loc, opts...)
	require.NoError(t, p.svc.Host("127.0.0.1", 0))
	return p
}

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// pumpUntil runs ReadUpdates on every service until cond holds.
func pumpUntil(t *testing.T, cond func() bool, svcs ...*multiplayer.Service) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range svcs {
			s.ReadUpdates()
		}
		return cond()
	}, waitFor, pollFor)
}

func agentByID(svc *multiplayer.Service, id string) (world.Agent, bool) {
	for _, a := range svc.Agents() {
		if a.MultiplayerID == id {
			return a, true
		}
	}
	return world.Agent{}, false
}

var origin = world.Location{MapIndex: 0, LevelIndex: 0, Coordinate: world.Coordinate{X: 1, Y: 1}}

func bobRequest() protocol.ConnectRequest {
	return protocol.ConnectRequest{Name: "Bob", TileID: 5, Dexterity: 10, LocationIndex: 0, LevelIndex: 0, X: 3, Y: 4}
}

func joinRaw(t *testing.T, host *peer, req protocol.ConnectRequest) *testutil.LineClient {
	t.Helper()
	lc := testutil.NewLineClient(t, host.svc.ServerAddr())
	want := len(host.svc.Agents()) + 1
	lc.Send(req)
	pumpUntil(t, func() bool { return len(host.svc.Agents()) == want }, host.svc)
	return lc
}

func TestHost_AcceptsConnectRequest(t *testing.T) {
	host := hosting(t, "Alice", origin)
	assert.Equal(t, multiplayer.RoleHosting, host.svc.Role())
	assert.Equal(t, "0", host.player.MultiplayerID())

	lc := joinRaw(t, host, bobRequest())

	assert.Equal(t, protocol.ConnectAccept{MultiplayerID: "1", X: 3, Y: 4}, lc.Next(waitFor))
	assert.Equal(t, protocol.PlayerJoin{
		Name: "Bob", TileID: 5, Dexterity: 10, MultiplayerID: "1",
		LocationIndex: 0, LevelIndex: 0, X: 3, Y: 4,
	}, lc.Next(waitFor))
	assert.Equal(t, protocol.NewPlayerJoin(world.Snapshot(host.player)), lc.Next(waitFor))

	bob, ok := agentByID(host.svc, "1")
	require.True(t, ok)
	assert.Equal(t, "Bob", bob.Name)
	assert.True(t, host.registry.IsRendered("1"))
	assert.True(t, host.notices.Has("Bob joined the game"))
}

func TestHost_CatchUpIncludesRemotesAndMonsters(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	monster, err := host.registry.Spawn(&npc.Template{ID: "rat", Name: "Rat", TileID: 40})
	require.NoError(t, err)
	require.NoError(t, host.svc.Host("127.0.0.1", 0))

	bob := joinRaw(t, host, bobRequest())
	bob.Until(protocol.KindPlayerJoin, waitFor)

	carolReq := bobRequest()
	carolReq.Name = "Carol"
	carol := joinRaw(t, host, carolReq)

	msgs := carol.Collect(100 * time.Millisecond)
	require.NotEmpty(t, msgs)
	assert.Equal(t, protocol.ConnectAccept{MultiplayerID: "2", X: 3, Y: 4}, msgs[0])
	bobJoin, _ := agentByID(host.svc, "1")
	assert.True(t, testutil.Find(msgs, protocol.NewPlayerJoin(bobJoin)))
	assert.True(t, testutil.Find(msgs, protocol.NewPlayerJoin(world.Snapshot(host.player))))
	assert.True(t, testutil.Find(msgs, protocol.NewPlayerJoin(monster)))

	carolJoin, _ := agentByID(host.svc, "2")
	assert.True(t, testutil.Find(bob.Collect(100*time.Millisecond), protocol.NewPlayerJoin(carolJoin)))
}

func TestHost_LocationUpdates(t *testing.T) {
	host := hosting(t, "Alice", origin)
	lc := joinRaw(t, host, bobRequest())

	lc.Send(protocol.LocationUpdate{MultiplayerID: "1", LocationIndex: 2, LevelIndex: 1, X: 8, Y: 9, TileID: 6})
	pumpUntil(t, func() bool {
		a, _ := agentByID(host.svc, "1")
		return a.Location.X == 8
	}, host.svc)

	bob, _ := agentByID(host.svc, "1")
	assert.Equal(t, world.Location{MapIndex: 2, LevelIndex: 1, Coordinate: world.Coordinate{X: 8, Y: 9}}, bob.Location)
	assert.Equal(t, 6, bob.TileID)
	// Different area from the local agent, so no longer rendered.
	assert.False(t, host.registry.IsRendered("1"))

	// Echo of the local agent and unknown ids are ignored.
	lc.Send(protocol.LocationUpdate{MultiplayerID: "0", X: 20, Y: 20})
	lc.Send(protocol.LocationUpdate{MultiplayerID: "42", X: 20, Y: 20})
	lc.Send(protocol.LocationUpdate{MultiplayerID: "1", LocationIndex: 0, LevelIndex: 0, X: 2, Y: 2, TileID: 6})
	pumpUntil(t, func() bool { return host.registry.IsRendered("1") }, host.svc)
	assert.Equal(t, origin, host.player.Location())
	assert.Len(t, host.svc.Agents(), 1)
}

func TestHost_WriteUpdatesOrder(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	monster, err := host.registry.Spawn(&npc.Template{ID: "rat", Name: "Rat", TileID: 40})
	require.NoError(t, err)
	require.NoError(t, host.svc.Host("127.0.0.1", 0))
	lc := joinRaw(t, host, bobRequest())
	lc.Collect(50 * time.Millisecond)

	host.svc.WriteUpdates()

	bob, _ := agentByID(host.svc, "1")
	assert.Equal(t, []protocol.Message{
		protocol.NewLocationUpdate(world.Snapshot(host.player)),
		protocol.NewLocationUpdate(bob),
		protocol.NewLocationUpdate(monster),
	}, lc.Collect(100*time.Millisecond))
}

// spawnHorde spawns more monsters than a connection's outbound queue holds.
func spawnHorde(t *testing.T, registry *npc.Registry) int {
	t.Helper()
	count := 2*testutil.NetworkConfig().OutboundQueue + 1
	spawned, err := registry.SpawnAll([]*npc.Template{{ID: "rat", Name: "Rat", TileID: 40, Count: count}})
	require.NoError(t, err)
	require.Equal(t, count, spawned)
	return count
}

func TestHost_WriteUpdatesLargerThanOutboundQueue(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	monsters := spawnHorde(t, host.registry)
	require.NoError(t, host.svc.Host("127.0.0.1", 0))
	lc := joinRaw(t, host, bobRequest())
	lc.Collect(100 * time.Millisecond)

	want := 1 + 1 + monsters
	for tick := 0; tick < 3; tick++ {
		host.svc.WriteUpdates()
		got := lc.Collect(100 * time.Millisecond)
		require.Len(t, got, want, "tick %d", tick)
		assert.Equal(t, protocol.NewLocationUpdate(world.Snapshot(host.player)), got[0])
		last, ok := got[want-1].(protocol.LocationUpdate)
		require.True(t, ok)
		assert.Equal(t, "m"+strconv.Itoa(monsters), last.MultiplayerID)
	}
}

func TestJoin_CatchUpLargerThanOutboundQueue(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	monsters := spawnHorde(t, host.registry)
	require.NoError(t, host.svc.Host("127.0.0.1", 0))

	bob := joinHost(t, host, "Bob", origin)
	pumpUntil(t, func() bool { return len(bob.svc.Agents()) == 1+monsters }, host.svc, bob.svc)

	_, ok := agentByID(bob.svc, "0")
	assert.True(t, ok)
	_, ok = agentByID(bob.svc, "m"+strconv.Itoa(monsters))
	assert.True(t, ok)

	carol := joinHost(t, host, "Carol", origin)
	pumpUntil(t, func() bool {
		return len(carol.svc.Agents()) == 2+monsters && len(bob.svc.Agents()) == 2+monsters
	}, host.svc, bob.svc, carol.svc)
}

func TestHost_PlayerLeave(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinRaw(t, host, bobRequest())
	carolReq := bobRequest()
	carolReq.Name = "Carol"
	carol := joinRaw(t, host, carolReq)
	carol.Collect(50 * time.Millisecond)

	bob.Send(protocol.PlayerLeave{MultiplayerID: "1"})
	pumpUntil(t, func() bool { return len(host.svc.Agents()) == 1 }, host.svc)

	assert.False(t, host.registry.IsRendered("1"))
	assert.True(t, bob.Closed(waitFor))
	assert.True(t, testutil.Find(carol.Until(protocol.KindPlayerLeave, waitFor), protocol.PlayerLeave{MultiplayerID: "1"}))
	assert.True(t, host.notices.Has("Bob left the game"))
}

func TestHost_LeaveForAnotherAgentIsIgnored(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinRaw(t, host, bobRequest())
	carolReq := bobRequest()
	carolReq.Name = "Carol"
	joinRaw(t, host, carolReq)

	bob.Send(protocol.PlayerLeave{MultiplayerID: "2"})
	bob.Send(protocol.LocationUpdate{MultiplayerID: "1", X: 7, Y: 7})
	pumpUntil(t, func() bool {
		a, _ := agentByID(host.svc, "1")
		return a.Location.X == 7
	}, host.svc)
	assert.Len(t, host.svc.Agents(), 2)
}

func TestHost_LocationForAnotherAgentIsIgnored(t *testing.T) {
	host := hosting(t, "Alice", origin)
	joinRaw(t, host, bobRequest())
	carolReq := bobRequest()
	carolReq.Name = "Carol"
	carol := joinRaw(t, host, carolReq)

	carol.Send(protocol.LocationUpdate{MultiplayerID: "1", X: 30, Y: 30})
	carol.Send(protocol.LocationUpdate{MultiplayerID: "2", X: 7, Y: 7})
	pumpUntil(t, func() bool {
		a, _ := agentByID(host.svc, "2")
		return a.Location.X == 7
	}, host.svc)

	bob, _ := agentByID(host.svc, "1")
	assert.Equal(t, world.Coordinate{X: 3, Y: 4}, bob.Location.Coordinate)
}

func TestHost_DisconnectTreatedAsLeave(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinRaw(t, host, bobRequest())
	carolReq := bobRequest()
	carolReq.Name = "Carol"
	carol := joinRaw(t, host, carolReq)
	carol.Collect(50 * time.Millisecond)

	bob.Close()
	pumpUntil(t, func() bool { return len(host.svc.Agents()) == 1 }, host.svc)
	assert.True(t, testutil.Find(carol.Until(protocol.KindPlayerLeave, waitFor), protocol.PlayerLeave{MultiplayerID: "1"}))
}

func TestHost_UnexpectedMessagesAreDropped(t *testing.T) {
	host := hosting(t, "Alice", origin)
	lc := joinRaw(t, host, bobRequest())

	lc.Send(protocol.ConnectAccept{MultiplayerID: "9"})
	lc.Send(protocol.PlayerJoin{Name: "Mallory", MultiplayerID: "9"})
	lc.Send(bobRequest())
	lc.SendRaw([]byte("Nonsense|1\n"))
	lc.Send(protocol.LocationUpdate{MultiplayerID: "1", X: 5, Y: 5})
	pumpUntil(t, func() bool {
		a, _ := agentByID(host.svc, "1")
		return a.Location.X == 5
	}, host.svc)

	assert.Len(t, host.svc.Agents(), 1)
	assert.Equal(t, multiplayer.RoleHosting, host.svc.Role())
}

func TestHost_QuitTerminatesSession(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	host.player.SetMultiplayerID("solo")
	require.NoError(t, host.svc.Host("127.0.0.1", 0))
	lc := joinRaw(t, host, bobRequest())
	lc.Collect(50 * time.Millisecond)

	require.NoError(t, host.svc.Quit())

	assert.Equal(t, protocol.ConnectTerminate{}, lc.Next(waitFor))
	assert.True(t, lc.Closed(waitFor))
	assert.Equal(t, multiplayer.RoleIdle, host.svc.Role())
	assert.Equal(t, "solo", host.player.MultiplayerID())
	assert.Empty(t, host.svc.Agents())
	assert.Empty(t, host.registry.Rendered())
	assert.Empty(t, host.svc.ServerAddr())

	require.NoError(t, host.svc.Quit())
	require.NoError(t, host.svc.Host("127.0.0.1", 0))
	assert.Equal(t, "0", host.player.MultiplayerID())
}

func TestIllegalStateTransitions(t *testing.T) {
	host := hosting(t, "Alice", origin)
	assert.ErrorIs(t, host.svc.Host("127.0.0.1", 0), multiplayer.ErrIllegalState)
	assert.ErrorIs(t, host.svc.Join(context.Background(), "127.0.0.1", 1), multiplayer.ErrIllegalState)

	idle := newPeer(t, "Bob", origin)
	require.NoError(t, idle.svc.Quit())
	idle.svc.ReadUpdates()
	idle.svc.WriteUpdates()
	assert.Equal(t, multiplayer.RoleIdle, idle.svc.Role())
	assert.False(t, idle.svc.Assigned())
}

func TestIllegalStateTransitions_WhileJoined(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinHost(t, host, "Bob", origin)

	assert.ErrorIs(t, bob.svc.Host("127.0.0.1", 0), multiplayer.ErrIllegalState)
	h, port := hostPort(t, host.svc.ServerAddr())
	assert.ErrorIs(t, bob.svc.Join(context.Background(), h, port), multiplayer.ErrIllegalState)
	assert.Equal(t, multiplayer.RoleJoined, bob.svc.Role())
	assert.Equal(t, "1", bob.player.MultiplayerID())
	assert.Empty(t, bob.svc.ServerAddr())
}

func TestJoin_Timeout(t *testing.T) {
	p := newPeer(t, "Bob", origin)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := p.svc.Join(ctx, "127.0.0.1", 1)
	assert.ErrorIs(t, err, transport.ErrConnectionTimeout)
	assert.True(t, p.notices.Has("Connection timed out"))
	assert.Equal(t, multiplayer.RoleIdle, p.svc.Role())
}

func joinHost(t *testing.T, host *peer, name string, loc world.Location) *peer {
	t.Helper()
	client := newPeer(t, name, loc)
	h, port := hostPort(t, host.svc.ServerAddr())
	require.NoError(t, client.svc.Join(context.Background(), h, port))
	assert.Equal(t, multiplayer.RoleJoined, client.svc.Role())
	pumpUntil(t, client.svc.Assigned, host.svc, client.svc)
	return client
}

func TestJoin_ReceivesIDAndCatchUp(t *testing.T) {
	host := newPeer(t, "Alice", origin)
	_, err := host.registry.Spawn(&npc.Template{ID: "rat", Name: "Rat", TileID: 40, Spawn: npc.Spawn{X: 2, Y: 2}})
	require.NoError(t, err)
	require.NoError(t, host.svc.Host("127.0.0.1", 0))

	bobLoc := origin
	bobLoc.X, bobLoc.Y = 3, 4
	bob := joinHost(t, host, "Bob", bobLoc)
	assert.Equal(t, "1", bob.player.MultiplayerID())

	pumpUntil(t, func() bool { return len(bob.svc.Agents()) == 2 }, host.svc, bob.svc)
	_, ok := agentByID(bob.svc, "0")
	assert.True(t, ok)
	_, ok = agentByID(bob.svc, "m1")
	assert.True(t, ok)
	_, ok = agentByID(bob.svc, "1")
	assert.False(t, ok)
	assert.True(t, bob.registry.IsRendered("0"))
	assert.True(t, bob.registry.IsRendered("m1"))
	assert.False(t, bob.registry.IsRendered("1"))
}

func TestJoin_PositionsFlowBothWays(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinHost(t, host, "Bob", origin)
	pumpUntil(t, func() bool { return len(bob.svc.Agents()) == 1 }, host.svc, bob.svc)

	moved := origin
	moved.X = 7
	bob.player.SetLocation(moved)
	bob.svc.WriteUpdates()
	pumpUntil(t, func() bool {
		a, _ := agentByID(host.svc, "1")
		return a.Location == moved
	}, host.svc)

	// Bob moves on locally; the host's copy of Bob is now stale.
	ahead := moved
	ahead.X = 11
	bob.player.SetLocation(ahead)

	moved.Y = 9
	host.player.SetLocation(moved)
	host.svc.WriteUpdates()
	pumpUntil(t, func() bool {
		a, _ := agentByID(bob.svc, "0")
		return a.Location == moved
	}, bob.svc)
	// The host's update for Bob is an echo and does not move him back.
	assert.Equal(t, ahead, bob.player.Location())
}

func TestJoin_QuitAnnouncesLeave(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinHost(t, host, "Bob", origin)
	pumpUntil(t, func() bool { return len(host.svc.Agents()) == 1 }, host.svc)

	require.NoError(t, bob.svc.Quit())
	assert.Equal(t, multiplayer.RoleIdle, bob.svc.Role())
	assert.Empty(t, bob.player.MultiplayerID())
	assert.Empty(t, bob.svc.Agents())
	assert.Empty(t, bob.registry.Rendered())

	pumpUntil(t, func() bool { return len(host.svc.Agents()) == 0 }, host.svc)
	assert.True(t, host.notices.Has("Bob left the game"))
}

func TestJoin_HostEndsSession(t *testing.T) {
	host := hosting(t, "Alice", origin)
	bob := joinHost(t, host, "Bob", origin)

	require.NoError(t, host.svc.Quit())
	pumpUntil(t, func() bool { return bob.svc.Role() == multiplayer.RoleIdle }, bob.svc)
	assert.True(t, bob.notices.Has("Host ended the session"))
	assert.Empty(t, bob.svc.Agents())
}

// fakeHost accepts one client on a bare transport server so tests can script
// exactly what the client sees.
func fakeHost(t *testing.T) (*transport.Server, *peer, string) {
	t.Helper()
	srv := transport.NewServer(testutil.NetworkConfig(), zaptest.NewLogger(t).Named("fake"))
	require.NoError(t, srv.Bind("127.0.0.1", 0))
	t.Cleanup(func() { _ = srv.Close() })

	client := newPeer(t, "Bob", origin)
	h, port := hostPort(t, srv.Addr())
	require.NoError(t, client.svc.Join(context.Background(), h, port))

	var env transport.Envelope
	require.Eventually(t, func() bool {
		envs := srv.ReadAll()
		if len(envs) == 0 {
			return false
		}
		env = envs[0]
		return true
	}, waitFor, pollFor)
	assert.Equal(t, protocol.NewConnectRequest(world.Snapshot(client.player)), env.Message)
	return srv, client, env.ConnID
}

func TestJoin_UnassignedAcceptsOnlyConnectAccept(t *testing.T) {
	srv, bob, connID := fakeHost(t)

	require.NoError(t, srv.WriteTo(connID, protocol.PlayerJoin{Name: "Early", MultiplayerID: "5"}))
	require.NoError(t, srv.WriteTo(connID, protocol.ConnectAccept{MultiplayerID: "7", X: 2, Y: 6}))
	require.NoError(t, srv.WriteTo(connID, protocol.PlayerJoin{Name: "Bob", MultiplayerID: "7"}))
	require.NoError(t, srv.WriteTo(connID, protocol.PlayerJoin{Name: "Carol", MultiplayerID: "9"}))

	pumpUntil(t, func() bool { return len(bob.svc.Agents()) > 0 }, bob.svc)
	assert.True(t, bob.svc.Assigned())
	assert.Equal(t, "7", bob.player.MultiplayerID())
	assert.Equal(t, world.Coordinate{X: 2, Y: 6}, bob.player.Location().Coordinate)
	require.Len(t, bob.svc.Agents(), 1)
	assert.Equal(t, "9", bob.svc.Agents()[0].MultiplayerID)
}

func TestJoin_LostHostConnection(t *testing.T) {
	srv, bob, connID := fakeHost(t)
	require.NoError(t, srv.WriteTo(connID, protocol.ConnectAccept{MultiplayerID: "1"}))
	pumpUntil(t, bob.svc.Assigned, bob.svc)

	require.NoError(t, srv.CloseClient(connID))
	pumpUntil(t, func() bool { return bob.svc.Role() == multiplayer.RoleIdle }, bob.svc)
	assert.True(t, bob.notices.Has("Lost connection to host"))
	assert.Empty(t, bob.player.MultiplayerID())
}

func TestHost_TurnClockAdvances(t *testing.T) {
	var mu sync.Mutex
	var turns []uint64
	host := hosting(t, "Alice", origin, multiplayer.WithTurnHandler(func(n uint64) {
		mu.Lock()
		defer mu.Unlock()
		turns = append(turns, n)
	}))

	require.Eventually(t, func() bool { return host.svc.Turns() >= 2 }, waitFor, pollFor)
	spent := host.player.SpentActionPoints()
	assert.GreaterOrEqual(t, spent, 0.0)
	assert.LessOrEqual(t, spent, testutil.SessionConfig().ActionPointsPerTurn)

	require.NoError(t, host.svc.Quit())
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(turns), 2)
	assert.Equal(t, []uint64{1, 2}, turns[:2])
	assert.Equal(t, 0.0, host.player.SpentActionPoints())
}

func TestHealth_ReportsFaultedTurnHandler(t *testing.T) {
	host := hosting(t, "Alice", origin, multiplayer.WithTurnHandler(func(uint64) {
		panic("turn handler exploded")
	}))
	require.Eventually(t, func() bool { return host.svc.Health() != nil }, waitFor, pollFor)
	assert.ErrorIs(t, host.svc.Health(), multiplayer.ErrThreadFault)
	assert.Contains(t, host.svc.Health().Error(), "turn clock")

	// The session itself keeps working.
	lc := joinRaw(t, host, bobRequest())
	assert.Equal(t, protocol.ConnectAccept{MultiplayerID: "1", X: 3, Y: 4}, lc.Next(waitFor))
	require.NoError(t, host.svc.Quit())
}
