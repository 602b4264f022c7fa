// Package queue defines the lifecycle messages exchanged over the broker
// and the consumer that records them.
package queue

import "time"

// LifecycleQueueName is the durable queue lifecycle events are routed to.
const LifecycleQueueName = "responder.lifecycle"

// LifecycleEvent is published when the responder starts serving and when it
// stops.  It lets tutorial operators watch rollouts without scraping logs.
type LifecycleEvent struct {
	Service string `json:"service"`
	State   string `json:"state"` // "running" or "stopped"
	Addr    string `json:"addr"`
	Env     string `json:"env"`
	Host    string `json:"host,omitempty"`
	At      string `json:"at"` // RFC3339 UTC
}

// NewLifecycleEvent stamps an event with the current UTC time.
func NewLifecycleEvent(service, state, addr, env, host string) LifecycleEvent {
	return LifecycleEvent{
		Service: service,
		State:   state,
		Addr:    addr,
		Env:     env,
		Host:    host,
		At:      time.Now().UTC().Format(time.RFC3339),
	}
}
