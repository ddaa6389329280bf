package realtime

import (
	"sort"
	"sync"
)

// Conn is a live client connection as seen by the Registry.
type Conn interface {
	// ID returns the connection's unique id.
	ID() string

	// Send queues data for delivery without blocking. It reports false
	// when the message was dropped (buffer full or connection closed).
	Send(data []byte) bool
}

// JoinAck confirms a topic join or leave to the client.
type JoinAck struct {
	Topic      Topic `json:"topic"`
	Subscribed bool  `json:"subscribed"`
}

// Payload returns the subscription_confirmed payload.
func (a JoinAck) Payload() map[string]any {
	return map[string]any{
		"topic":      a.Topic.String(),
		"subscribed": a.Subscribed,
	}
}

// Registry tracks live connections and their topic memberships.
//
// Lock ordering: the registry lock is never held while sending. Members
// and All return snapshots; delivery happens after the lock is released.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]Conn
	memberships map[string]map[Topic]struct{}
	topics      map[Topic]map[string]Conn
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]Conn),
		memberships: make(map[string]map[Topic]struct{}),
		topics:      make(map[Topic]map[string]Conn),
	}
}

// Register adds a connection. Registering an id again replaces the
// connection but keeps its memberships.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	r.conns[id] = conn
	if _, ok := r.memberships[id]; !ok {
		r.memberships[id] = make(map[Topic]struct{})
	}
	for topic := range r.memberships[id] {
		r.topics[topic][id] = conn
	}
}

// Join adds topic to the connection's memberships. It is idempotent and
// never validates the topic. Unregistered connections get the ack but no
// membership.
func (r *Registry) Join(conn Conn, topic Topic) JoinAck {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	topics, ok := r.memberships[id]
	if ok {
		topics[topic] = struct{}{}
		members := r.topics[topic]
		if members == nil {
			members = make(map[string]Conn)
			r.topics[topic] = members
		}
		members[id] = r.conns[id]
	}
	return JoinAck{Topic: topic, Subscribed: true}
}

// Leave removes topic from the connection's memberships. Leaving a topic
// the connection never joined is a no-op.
func (r *Registry) Leave(conn Conn, topic Topic) JoinAck {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(conn.ID(), topic)
	return JoinAck{Topic: topic, Subscribed: false}
}

func (r *Registry) leaveLocked(id string, topic Topic) {
	if topics, ok := r.memberships[id]; ok {
		delete(topics, topic)
	}
	if members, ok := r.topics[topic]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.topics, topic)
		}
	}
}

// Deregister removes the connection and all its memberships. It reports
// whether the connection was registered; calling it again is a no-op.
func (r *Registry) Deregister(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	topics, ok := r.memberships[id]
	if !ok {
		return false
	}
	for topic := range topics {
		r.leaveLocked(id, topic)
	}
	delete(r.memberships, id)
	delete(r.conns, id)
	return true
}

// Members returns a snapshot of the connections in topic.
func (r *Registry) Members(topic Topic) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.topics[topic]
	out := make([]Conn, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Topics returns the connection's memberships, sorted.
func (r *Registry) Topics(conn Conn) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := r.memberships[conn.ID()]
	out := make([]Topic, 0, len(topics))
	for topic := range topics {
		out = append(out, topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TopicCounts returns the member count of every non-empty topic.
func (r *Registry) TopicCounts() map[Topic]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Topic]int, len(r.topics))
	for topic, members := range r.topics {
		counts[topic] = len(members)
	}
	return counts
}
