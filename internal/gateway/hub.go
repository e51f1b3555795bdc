package gateway

import (
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"TradeCast/internal/service/identity"
	gwmetrics "TradeCast/internal/service/metrics"
	applogger "TradeCast/pkg/logger"
)

const maxConnsPerUser = 8

// Reserved group prefixes. Membership in these is derived from the verified
// identity at registration time and cannot be joined or left by the client.
const (
	UserGroupPrefix = "user:"
	TierGroupPrefix = "tier:"
)

// UserGroup returns the per-user group name.
func UserGroup(userID string) string { return UserGroupPrefix + userID }

// TierGroup returns the per-tier group name.
func TierGroup(tier string) string { return TierGroupPrefix + tier }

func reservedGroup(name string) bool {
	return strings.HasPrefix(name, UserGroupPrefix) || strings.HasPrefix(name, TierGroupPrefix)
}

// Config bounds per-connection buffering and timers.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

type client struct {
	writer *clientWriter
	id     identity.Identity
	groups map[string]struct{}
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn  *websocket.Conn
	id    identity.Identity
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn   *websocket.Conn
	reason string
}

func (cmdUnregister) hubCmd() {}

type cmdJoin struct {
	conn  *websocket.Conn
	group string
	errCh chan error
}

func (cmdJoin) hubCmd() {}

type cmdLeave struct {
	conn  *websocket.Conn
	group string
	errCh chan error
}

func (cmdLeave) hubCmd() {}

type cmdPush struct {
	group   string
	data    []byte
	replyCh chan int
}

func (cmdPush) hubCmd() {}

type cmdSend struct {
	conn *websocket.Conn
	data []byte
}

func (cmdSend) hubCmd() {}

type cmdCount struct {
	group   string
	replyCh chan int
}

func (cmdCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// Hub is the single owner of the connection registry. All mutation goes
// through the command channel, so there is no lock to get wrong.
type Hub struct {
	cmdCh   chan hubCmd
	cfg     Config
	conns   map[*websocket.Conn]*client
	groups  map[string]map[*websocket.Conn]struct{}
	l       *applogger.Logger
	stopped chan struct{}
}

func NewHub(cfg Config, l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	gwmetrics.Register()
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		cfg:     cfg,
		conns:   make(map[*websocket.Conn]*client),
		groups:  make(map[string]map[*websocket.Conn]struct{}),
		l:       l,
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.conn, c.reason)
		case cmdJoin:
			c.errCh <- h.handleJoin(c.conn, c.group)
		case cmdLeave:
			c.errCh <- h.handleLeave(c.conn, c.group)
		case cmdPush:
			c.replyCh <- h.handlePush(c.group, c.data)
		case cmdSend:
			if cl, ok := h.conns[c.conn]; ok {
				select {
				case cl.writer.sendCh <- c.data:
				default:
				}
			}
		case cmdCount:
			c.replyCh <- len(h.groups[c.group])
		case cmdStop:
			h.handleStop()
			close(h.stopped)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	userGroup := UserGroup(c.id.UserID)
	if len(h.groups[userGroup]) >= maxConnsPerUser {
		h.l.Warn("gateway rejecting connection, per-user limit reached",
			applogger.String("user_id", c.id.UserID),
			applogger.Int("limit", maxConnsPerUser),
		)
		c.conn.Close()
		c.errCh <- errTooManyConns
		return
	}

	cl := &client{
		writer: newClientWriter(c.conn, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.cfg.PingInterval),
		id:     c.id,
		groups: make(map[string]struct{}),
	}
	h.conns[c.conn] = cl
	h.addToGroup(c.conn, cl, userGroup)
	h.addToGroup(c.conn, cl, TierGroup(string(c.id.RiskTier)))

	gwmetrics.GatewayConnections.WithLabelValues(string(c.id.RiskTier)).Inc()
	h.l.Info("gateway client registered",
		applogger.String("user_id", c.id.UserID),
		applogger.String("risk_tier", string(c.id.RiskTier)),
	)
	c.errCh <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn, reason string) {
	cl, exists := h.conns[conn]
	if !exists {
		return
	}

	cl.writer.stop()
	for group := range cl.groups {
		h.removeFromGroup(conn, group)
	}
	delete(h.conns, conn)

	gwmetrics.GatewayConnections.WithLabelValues(string(cl.id.RiskTier)).Dec()
	gwmetrics.GatewayDisconnects.WithLabelValues(reason).Inc()
	h.l.Info("gateway client unregistered",
		applogger.String("user_id", cl.id.UserID),
		applogger.String("reason", reason),
	)
}

func (h *Hub) handleJoin(conn *websocket.Conn, group string) error {
	cl, exists := h.conns[conn]
	if !exists {
		return errUnknownConn
	}
	if group == "" || reservedGroup(group) {
		return errReservedGroup
	}
	h.addToGroup(conn, cl, group)
	return nil
}

func (h *Hub) handleLeave(conn *websocket.Conn, group string) error {
	cl, exists := h.conns[conn]
	if !exists {
		return errUnknownConn
	}
	if reservedGroup(group) {
		return errReservedGroup
	}
	if _, member := cl.groups[group]; !member {
		return nil
	}
	delete(cl.groups, group)
	h.removeFromGroup(conn, group)
	return nil
}

// handlePush enqueues data to every member of group and returns how many
// connections accepted it. Slow clients are disconnected rather than allowed
// to stall the rest of the group.
func (h *Hub) handlePush(group string, data []byte) int {
	members := h.groups[group]
	if len(members) == 0 {
		return 0
	}

	sent := 0
	var slow []*websocket.Conn
	for conn := range members {
		cl := h.conns[conn]
		select {
		case cl.writer.sendCh <- data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		cl := h.conns[conn]
		gwmetrics.GatewayDropped.WithLabelValues(string(cl.id.RiskTier)).Inc()
		h.l.Warn("gateway disconnecting slow client",
			applogger.String("user_id", cl.id.UserID),
			applogger.String("group", group),
		)
		h.handleUnregister(conn, "slow")
	}
	return sent
}

func (h *Hub) handleStop() {
	for conn, cl := range h.conns {
		cl.writer.stop()
		gwmetrics.GatewayConnections.WithLabelValues(string(cl.id.RiskTier)).Dec()
		delete(h.conns, conn)
	}
	h.groups = make(map[string]map[*websocket.Conn]struct{})
}

func (h *Hub) addToGroup(conn *websocket.Conn, cl *client, group string) {
	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[*websocket.Conn]struct{})
	}
	h.groups[group][conn] = struct{}{}
	cl.groups[group] = struct{}{}
}

func (h *Hub) removeFromGroup(conn *websocket.Conn, group string) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// --- Public API ---

// Register adds a verified connection. Identity must already be resolved;
// unauthenticated sockets never reach the hub.
func (h *Hub) Register(conn *websocket.Conn, id identity.Identity) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{conn: conn, id: id, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection and all its group memberships.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{conn: conn, reason: "closed"}
}

// Join adds the connection to a supplementary group.
func (h *Hub) Join(conn *websocket.Conn, group string) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdJoin{conn: conn, group: group, errCh: errCh}
	return <-errCh
}

// Leave removes the connection from a supplementary group.
func (h *Hub) Leave(conn *websocket.Conn, group string) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdLeave{conn: conn, group: group, errCh: errCh}
	return <-errCh
}

// Push sends data to every member of group and reports how many connections
// accepted it. Zero means nobody was listening.
func (h *Hub) Push(group string, data []byte) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdPush{group: group, data: data, replyCh: replyCh}
	return <-replyCh
}

// Send enqueues data to one connection, best effort.
func (h *Hub) Send(conn *websocket.Conn, data []byte) {
	h.cmdCh <- cmdSend{conn: conn, data: data}
}

// Count returns the current member count of a group.
func (h *Hub) Count(group string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdCount{group: group, replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and shuts the hub down.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
	<-h.stopped
}
