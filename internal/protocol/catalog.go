package protocol

import (
	"fmt"
	"strconv"
)

// Entry describes one catalog type: its wire name, declared field names in wire
// order, and the decoder that rebuilds a typed value from text fields.
type Entry struct {
	Kind   Kind
	Fields []string
	build  func(r *fieldReader) Message
}

// Arity returns the declared number of fields.
func (e Entry) Arity() int { return len(e.Fields) }

var catalog = map[Kind]Entry{
	KindConnectRequest: {
		Kind:   KindConnectRequest,
		Fields: []string{"name", "tile_id", "dexterity", "location_index", "level_index", "x", "y"},
		build: func(r *fieldReader) Message {
			return ConnectRequest{
				Name:          r.str(),
				TileID:        r.int("tile_id"),
				Dexterity:     r.int("dexterity"),
				LocationIndex: r.int("location_index"),
				LevelIndex:    r.int("level_index"),
				X:             r.int("x"),
				Y:             r.int("y"),
			}
		},
	},
	KindConnectAccept: {
		Kind:   KindConnectAccept,
		Fields: []string{"multiplayer_id", "x", "y"},
		build: func(r *fieldReader) Message {
			return ConnectAccept{
				MultiplayerID: r.str(),
				X:             r.int("x"),
				Y:             r.int("y"),
			}
		},
	},
	KindConnectTerminate: {
		Kind:   KindConnectTerminate,
		Fields: nil,
		build:  func(*fieldReader) Message { return ConnectTerminate{} },
	},
	KindPlayerJoin: {
		Kind:   KindPlayerJoin,
		Fields: []string{"name", "tile_id", "dexterity", "multiplayer_id", "location_index", "level_index", "x", "y"},
		build: func(r *fieldReader) Message {
			return PlayerJoin{
				Name:          r.str(),
				TileID:        r.int("tile_id"),
				Dexterity:     r.int("dexterity"),
				MultiplayerID: r.str(),
				LocationIndex: r.int("location_index"),
				LevelIndex:    r.int("level_index"),
				X:             r.int("x"),
				Y:             r.int("y"),
			}
		},
	},
	KindPlayerLeave: {
		Kind:   KindPlayerLeave,
		Fields: []string{"multiplayer_id"},
		build: func(r *fieldReader) Message {
			return PlayerLeave{MultiplayerID: r.str()}
		},
	},
	KindLocationUpdate: {
		Kind:   KindLocationUpdate,
		Fields: []string{"multiplayer_id", "location_index", "level_index", "x", "y", "tile_id"},
		build: func(r *fieldReader) Message {
			return LocationUpdate{
				MultiplayerID: r.str(),
				LocationIndex: r.int("location_index"),
				LevelIndex:    r.int("level_index"),
				X:             r.int("x"),
				Y:             r.int("y"),
				TileID:        r.int("tile_id"),
			}
		},
	},
}

// Lookup returns the catalog entry for the given wire name.
//
// Postcondition: Returns (entry, true) if name is a catalog type, or (Entry{}, false) otherwise.
func Lookup(name string) (Entry, bool) {
	e, ok := catalog[Kind(name)]
	return e, ok
}

// Kinds returns every catalog kind.
func Kinds() []Kind {
	return []Kind{
		KindConnectRequest,
		KindConnectAccept,
		KindConnectTerminate,
		KindPlayerJoin,
		KindPlayerLeave,
		KindLocationUpdate,
	}
}

// fieldReader consumes text fields in order, recording the first cast failure.
type fieldReader struct {
	kind   Kind
	fields []string
	pos    int
	err    error
}

func (r *fieldReader) next() string {
	v := r.fields[r.pos]
	r.pos++
	return v
}

func (r *fieldReader) str() string { return r.next() }

func (r *fieldReader) int(name string) int {
	raw := r.next()
	v, err := strconv.Atoi(raw)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%w: %s.%s = %q", ErrInvalidField, r.kind, name, raw)
	}
	return v
}
