package pubsub

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tileboard/pkg/logx"
)

const defaultBuffer = 32

// Message is one event delivered to a connection.
type Message struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	Time  time.Time `json:"-"`
}

// Broker owns the namespaces. It does not own any background goroutines.
type Broker struct {
	log     logx.Logger
	metrics *Metrics

	mu  sync.Mutex
	nss map[string]*Namespace
}

func NewBroker(log logx.Logger, m *Metrics) *Broker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Broker{log: log, metrics: m, nss: map[string]*Namespace{}}
}

// Namespace returns the namespace called name, creating it on first use.
func (b *Broker) Namespace(name string) *Namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ns, ok := b.nss[name]; ok {
		return ns
	}
	ns := &Namespace{
		name:    name,
		log:     b.log.With(logx.Namespace(name)),
		metrics: b.metrics,
		conns:   map[string]*Conn{},
		rooms:   map[string]map[string]*Conn{},
	}
	b.nss[name] = ns
	return ns
}

// Lookup returns an existing namespace without creating one.
func (b *Broker) Lookup(name string) (*Namespace, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.nss[name]
	return ns, ok
}

// Names returns the namespace names, sorted.
func (b *Broker) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.nss))
	for n := range b.nss {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Namespace is an isolated set of connections and rooms.
type Namespace struct {
	name    string
	log     logx.Logger
	metrics *Metrics

	mu        sync.RWMutex
	conns     map[string]*Conn
	rooms     map[string]map[string]*Conn
	onConnect []func(conn string)
}

func (n *Namespace) Name() string { return n.name }

// OnConnect registers fn to run for every connection created afterwards.
func (n *Namespace) OnConnect(fn func(conn string)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.onConnect = append(n.onConnect, fn)
	n.mu.Unlock()
}

// Connect opens a connection with the given buffer size (<=0 uses a default)
// and runs the connect handlers before returning.
func (n *Namespace) Connect(buffer int) *Conn {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	c := &Conn{
		id:    uuid.NewString(),
		ns:    n,
		ch:    make(chan Message, buffer),
		rooms: map[string]struct{}{},
	}

	n.mu.Lock()
	n.conns[c.id] = c
	handlers := append([]func(string){}, n.onConnect...)
	n.mu.Unlock()

	n.metrics.connected(n.name, 1)
	n.log.Debug("connection opened", logx.Conn(c.id))

	for _, fn := range handlers {
		fn(c.id)
	}
	return c
}

// Join adds conn to room. Unknown connections are ignored.
func (n *Namespace) Join(conn, room string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[conn]
	if !ok {
		return
	}
	members := n.rooms[room]
	if members == nil {
		members = map[string]*Conn{}
		n.rooms[room] = members
	}
	members[conn] = c
	c.rooms[room] = struct{}{}
}

// Leave removes conn from room.
func (n *Namespace) Leave(conn, room string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leaveLocked(conn, room)
}

func (n *Namespace) leaveLocked(conn, room string) {
	members := n.rooms[room]
	if members == nil {
		return
	}
	if c, ok := members[conn]; ok {
		delete(c.rooms, room)
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(n.rooms, room)
	}
}

// Emit delivers an event to every connection in room without blocking.
// Connections whose buffer is full miss the message.
func (n *Namespace) Emit(room, event string, data any) {
	msg := Message{Event: event, Data: data, Time: time.Now()}

	// Sends are non-blocking, so holding the read lock keeps Disconnect from
	// closing a channel mid-send.
	n.mu.RLock()
	defer n.mu.RUnlock()
	sent := 0
	for _, c := range n.rooms[room] {
		select {
		case c.ch <- msg:
			sent++
		default:
			c.dropped.Add(1)
			n.metrics.drop(n.name)
		}
	}
	n.metrics.deliver(n.name, sent)
}

// Disconnect removes conn from every room and closes its message channel.
func (n *Namespace) Disconnect(conn string) {
	n.mu.Lock()
	c, ok := n.conns[conn]
	if !ok {
		n.mu.Unlock()
		return
	}
	for room := range c.rooms {
		n.leaveLocked(conn, room)
	}
	delete(n.conns, conn)
	close(c.ch)
	n.mu.Unlock()

	n.metrics.connected(n.name, -1)
	n.log.Debug("connection closed", logx.Conn(conn), logx.Uint64("dropped", c.Dropped()))
}

// Connections returns the number of open connections.
func (n *Namespace) Connections() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

// Members returns the number of connections in room.
func (n *Namespace) Members(room string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.rooms[room])
}

// Conn is one client connection. Its channel is closed on Disconnect.
type Conn struct {
	id      string
	ns      *Namespace
	ch      chan Message
	rooms   map[string]struct{} // guarded by ns.mu
	dropped atomic.Uint64
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Messages() <-chan Message { return c.ch }

// Dropped reports how many messages this connection missed.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// Close disconnects c from its namespace. It is safe to call more than once.
func (c *Conn) Close() { c.ns.Disconnect(c.id) }
