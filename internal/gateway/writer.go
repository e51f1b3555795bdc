package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// clientWriter owns all writes for one connection. Gorilla connections allow a
// single concurrent writer, so everything funnels through sendCh.
type clientWriter struct {
	conn         *websocket.Conn
	sendCh       chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration
}

func newClientWriter(conn *websocket.Conn, sendBuffer int, writeTimeout, pingInterval time.Duration) *clientWriter {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	cw := &clientWriter{
		conn:         conn,
		sendCh:       make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := time.NewTicker(cw.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(cw.writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cw.conn.SetWriteDeadline(time.Now().Add(cw.writeTimeout))
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}
