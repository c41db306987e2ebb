package serve

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"stillcam/notify"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
	// Captures queued per client before new ones are dropped.
	clientBacklog = 16
)

// EventStream pushes every capture to connected websocket clients.
type EventStream struct {
	upgrader websocket.Upgrader
	cs       map[chan *notify.Capture]bool
	addc     chan chan *notify.Capture
	delc     chan chan *notify.Capture
	countc   chan chan int
	notify   chan *notify.Capture
}

func NewEventStream() *EventStream {
	m := &EventStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan *notify.Capture]bool),
		addc:   make(chan chan *notify.Capture),
		delc:   make(chan chan *notify.Capture),
		countc: make(chan chan int),
		notify: make(chan *notify.Capture),
	}
	go func() {
		for {
			select {
			case c := <-m.addc:
				m.cs[c] = true
			case c := <-m.delc:
				delete(m.cs, c)
			case r := <-m.countc:
				r <- len(m.cs)
			case n := <-m.notify:
				for k := range m.cs {
					select {
					case k <- n:
					default:
						log.Warnf("Event client is behind, dropping capture %s", n.Identifier)
					}
				}
			}
		}
	}()
	return m
}

// Captured implements notify.Listener.
func (m *EventStream) Captured(c *notify.Capture) error {
	m.notify <- c
	return nil
}

// Clients returns the number of connected clients.
func (m *EventStream) Clients() int {
	r := make(chan int)
	m.countc <- r
	return <-r
}

func (m *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for event stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *EventStream) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to capture event socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from capture event socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan *notify.Capture, clientBacklog)
	m.addc <- notifyc
	defer func() { m.delc <- notifyc }()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case c := <-notifyc:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(c); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
