// Package main runs a headless tilenet peer that either hosts a session or
// joins one, driving the session from a fixed-rate simulation loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tilenet/internal/config"
	"github.com/cory-johannsen/tilenet/internal/game/npc"
	"github.com/cory-johannsen/tilenet/internal/game/world"
	"github.com/cory-johannsen/tilenet/internal/multiplayer"
	"github.com/cory-johannsen/tilenet/internal/observability"
	"github.com/cory-johannsen/tilenet/internal/server"
	"github.com/cory-johannsen/tilenet/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file; empty uses defaults and TILENET_ environment")
	mode := flag.String("mode", "host", "session role: host or join")
	host := flag.String("host", "", "address to bind (host) or connect to (join); defaults to network.host or this machine's address")
	port := flag.Int("port", 0, "session port; defaults to network.port, or 9999 when joining with port 0")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if *port == 0 {
		*port = cfg.Network.Port
	}

	p := cfg.Player
	player := world.NewPlayer(p.Name, p.TileID, p.Dexterity, world.Location{
		MapIndex:   p.LocationIndex,
		LevelIndex: p.LevelIndex,
		Coordinate: world.Coordinate{X: p.X, Y: p.Y},
	})
	registry := npc.NewRegistry()
	notifier := multiplayer.NotifierFunc(func(text string) {
		fmt.Fprintln(os.Stdout, text)
	})

	var opts []multiplayer.Option
	if *mode == "host" {
		spawned, err := spawnMonsters(registry, cfg.NPC.TemplatesDir)
		if err != nil {
			logger.Fatal("spawning monsters", zap.Error(err))
		}
		logger.Info("monsters spawned", zap.Int("count", spawned))
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		opts = append(opts, multiplayer.WithTurnHandler(func(uint64) { registry.Wander(rng) }))
	}

	svc := multiplayer.NewService(cfg.Network, cfg.Session, logger, player, registry, notifier, opts...)

	switch *mode {
	case "host":
		if *host == "" {
			*host = cfg.Network.Host
		}
		if err := svc.Host(*host, *port); err != nil {
			logger.Fatal("hosting session", zap.Error(err))
		}
		addr := svc.ServerAddr()
		_, bound, err := net.SplitHostPort(addr)
		if err != nil {
			logger.Fatal("reading bound address", zap.String("addr", addr), zap.Error(err))
		}
		fmt.Fprintf(os.Stdout, "Hosting on %s (share %s)\n", addr, net.JoinHostPort(transport.LocalAddress(), bound))
	case "join":
		if *host == "" {
			*host = transport.LocalAddress()
		}
		// Port 0 only makes sense for a listener.
		if *port == 0 {
			*port = transport.DefaultPort
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Network.ConnectTimeout)
		err := svc.Join(ctx, *host, *port)
		cancel()
		if err != nil {
			logger.Fatal("joining session", zap.Error(err))
		}
	default:
		logger.Fatal("unknown mode", zap.String("mode", *mode))
	}

	lc := server.NewLifecycle(logger, cfg.Session.StopTimeout)
	lc.Add("session", server.ComponentFuncs{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		StopFn: svc.Quit,
	})
	lc.Add("simulation", server.ComponentFuncs{
		StartFn: func(ctx context.Context) error {
			return simulate(ctx, svc, cfg.Simulation.TickInterval(), logger)
		},
	})

	logger.Info("tilenet ready",
		zap.String("mode", *mode),
		zap.String("player", p.Name),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lc.Run(context.Background()); err != nil {
		logger.Error("tilenet stopped with errors", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// spawnMonsters loads templates from dir and spawns them into registry.
// An empty dir spawns nothing.
func spawnMonsters(registry *npc.Registry, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	templates, err := npc.LoadTemplates(dir)
	if err != nil {
		return 0, err
	}
	return registry.SpawnAll(templates)
}

// simulate drives the session once per tick until ctx is done, the session ends,
// or a session goroutine faults.
func simulate(ctx context.Context, svc *multiplayer.Service, tick time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		svc.ReadUpdates()
		if svc.Role() == multiplayer.RoleIdle {
			logger.Info("session ended")
			return nil
		}
		svc.WriteUpdates()
		if err := svc.Health(); err != nil {
			return fmt.Errorf("session unhealthy: %w", err)
		}
	}
}
