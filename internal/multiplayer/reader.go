package multiplayer

import (
	"time"

	"github.com/cory-johannsen/tilenet/internal/transport"
)

// pollServer returns the host reader loop. Every poll interval it moves decoded
// messages and then disconnect events into inbox, blocking while inbox is full.
func (s *Service) pollServer(srv *transport.Server, inbox chan<- event) func(stop <-chan struct{}) {
	interval := s.session.PollInterval
	return func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			for _, env := range srv.ReadAll() {
				if !push(inbox, stop, event{connID: env.ConnID, msg: env.Message}) {
					return
				}
			}
			for _, id := range srv.Disconnected() {
				if !push(inbox, stop, event{connID: id, disconnected: true}) {
					return
				}
			}
		}
	}
}

// pollClient returns the client reader loop. It exits after reporting the loss
// of the host connection.
func (s *Service) pollClient(cl *transport.Client, inbox chan<- event) func(stop <-chan struct{}) {
	interval := s.session.PollInterval
	return func(stop <-chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			msgs, err := cl.ReadAll()
			for _, m := range msgs {
				if !push(inbox, stop, event{connID: cl.ID(), msg: m}) {
					return
				}
			}
			if err != nil {
				push(inbox, stop, event{connID: cl.ID(), disconnected: true})
				return
			}
		}
	}
}

func push(inbox chan<- event, stop <-chan struct{}, ev event) bool {
	select {
	case inbox <- ev:
		return true
	case <-stop:
		return false
	}
}
