package feed

// broadcast.go - the outbound server push stream named in spec.md §6
// ("Inbound — WebSocket to clients: a server push stream for option chain
// and commodity futures/options caches, emitting periodic snapshots ≈1 Hz
// during market hours, ≈0.5 Hz otherwise"). Adapted from the teacher's
// internal/websocket Hub/Client: register/unregister channels, a
// sync.Pool-backed JSON buffer, and slow-client eviction, generalized from
// pair/balance/stats push messages to periodic option-chain snapshots.

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"dhancore/internal/core"
	"dhancore/internal/models"
	"dhancore/pkg/utils"

	"github.com/gorilla/websocket"
)

const (
	broadcastWriteWait      = 10 * time.Second
	broadcastPongWait       = 60 * time.Second
	broadcastPingPeriod     = (broadcastPongWait * 9) / 10
	broadcastMaxMessageSize = 65536
	clientSendBufferSize    = 256

	marketHoursInterval = time.Second
	afterHoursInterval  = 2 * time.Second
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 1024)) },
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MarketHours reports whether an exchange segment is currently open,
// controlling the broadcaster's push interval. Satisfied structurally by
// *marketclock.Clock.
type MarketHours interface {
	IsExchangeOpen(exchange string) bool
}

// chainSnapshotMessage is the typed payload for one underlying/expiry
// push, mirroring the teacher's typed-message-over-map[string]interface{}
// convention (cheaper to marshal, no reflection over an untyped map).
type chainSnapshotMessage struct {
	Type string                      `json:"type"`
	Skel *models.OptionChainSkeleton `json:"data"`
}

// wsClient is one registered push connection.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// OptionChainBroadcaster periodically pushes every available option-chain
// snapshot to every registered client, at a rate that tightens during
// market hours and relaxes outside them.
type OptionChainBroadcaster struct {
	chain core.OptionChainReader
	hours MarketHours
	log   *utils.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
}

// NewOptionChainBroadcaster builds a broadcaster reading snapshots from
// chain and gating its push interval on hours.
func NewOptionChainBroadcaster(chain core.OptionChainReader, hours MarketHours, log *utils.Logger) *OptionChainBroadcaster {
	return &OptionChainBroadcaster{
		chain:      chain,
		hours:      hours,
		log:        log,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// ServeWS upgrades r to a WebSocket connection and registers it to receive
// the periodic push stream.
func (b *OptionChainBroadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Warn("broadcast: websocket upgrade failed", utils.Err(err))
		}
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, clientSendBufferSize)}
	b.register <- client

	go b.writePump(client)
	go b.readPump(client)
}

// readPump discards inbound frames (this stream is server-to-client only)
// but still owns the read deadline/pong handling, and unregisters the
// client once the connection drops.
func (b *OptionChainBroadcaster) readPump(c *wsClient) {
	defer func() {
		b.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(broadcastMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(broadcastPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(broadcastPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *OptionChainBroadcaster) writePump(c *wsClient) {
	ticker := time.NewTicker(broadcastPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(broadcastWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(broadcastWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Run drives both the register/unregister loop and the periodic snapshot
// push. Call this once in its own goroutine; it returns when ctx is done.
func (b *OptionChainBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(afterHoursInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for c := range b.clients {
				close(c.send)
			}
			b.clients = make(map[*wsClient]bool)
			b.mu.Unlock()
			return

		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			b.mu.Unlock()

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.send)
			}
			b.mu.Unlock()

		case <-ticker.C:
			ticker.Reset(b.nextInterval())
			b.pushSnapshots()
		}
	}
}

func (b *OptionChainBroadcaster) nextInterval() time.Duration {
	if b.hours != nil && b.hours.IsExchangeOpen(models.ExchangeNSE) {
		return marketHoursInterval
	}
	return afterHoursInterval
}

func (b *OptionChainBroadcaster) pushSnapshots() {
	b.mu.RLock()
	n := len(b.clients)
	b.mu.RUnlock()
	if n == 0 {
		return
	}

	for _, underlying := range b.chain.AvailableUnderlyings() {
		expiries, err := b.chain.AvailableExpiries(underlying)
		if err != nil {
			continue
		}
		for _, expiry := range expiries {
			skel, err := b.chain.GetChain(underlying, expiry)
			if err != nil {
				continue
			}
			b.broadcast(&chainSnapshotMessage{Type: "option_chain_snapshot", Skel: skel})
		}
	}
}

// broadcast marshals message once and fans it out to every client,
// dropping (and evicting) any client whose send buffer is full rather
// than blocking the push loop on a slow reader.
func (b *OptionChainBroadcaster) broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		if b.log != nil {
			b.log.Warn("broadcast: marshal failed", utils.Err(err))
		}
		return
	}
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	var slow []*wsClient
	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	if len(slow) == 0 {
		return
	}

	b.mu.Lock()
	for _, c := range slow {
		if _, ok := b.clients[c]; ok {
			delete(b.clients, c)
			close(c.send)
		}
	}
	b.mu.Unlock()
}

// ClientCount reports the number of currently registered push clients.
func (b *OptionChainBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
