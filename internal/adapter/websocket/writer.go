package websocket

import (
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/classpoll/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// clientWriter owns all writes to one connection. Frames queue in a bounded
// buffer and a single goroutine writes them, interleaved with pings.
type clientWriter struct {
	connection  *ws.Conn
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
	sendChannel chan []byte
	doneChannel chan struct{}
	flushSignal chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *ws.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
		flushSignal: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// Send queues a frame and reports false when the buffer is full.
// Frames sent after the writer stopped are dropped; the reader side reports the disconnect.
func (cw *clientWriter) Send(frame []byte) bool {
	select {
	case <-cw.doneChannel:
		return true
	case <-cw.flushSignal:
		return true
	default:
	}

	select {
	case cw.sendChannel <- frame:
		return true
	default:
		return false
	}
}

// Close queues a flush of whatever is still buffered, then a close frame
// carrying reason. It returns at once; the writer goroutine does the I/O.
func (cw *clientWriter) Close(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.flushSignal)
		go cw.finish(reason)
	})
}

func (cw *clientWriter) finish(reason string) {
	cw.wg.Wait()

	closeMsg := ws.FormatCloseMessage(ws.CloseNormalClosure, reason)
	cw.updateWriteDeadline()
	_ = cw.connection.WriteMessage(ws.CloseMessage, closeMsg)
	_ = cw.connection.Close()
}

// Abort drops queued frames and closes the connection without waiting.
func (cw *clientWriter) Abort() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
}

// stop aborts and waits for the writer goroutine to exit.
func (cw *clientWriter) stop() {
	cw.Abort()
	cw.wg.Wait()
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			if !cw.write(msg) {
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(ws.PingMessage, nil); err != nil {
				cw.metrics.PingFailures.Inc()
				return
			}
		case <-cw.flushSignal:
			cw.flush()
			return
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) flush() {
	for {
		select {
		case msg := <-cw.sendChannel:
			if !cw.write(msg) {
				return
			}
		default:
			return
		}
	}
}

func (cw *clientWriter) write(msg []byte) bool {
	start := cw.clock.Now()
	cw.updateWriteDeadline()
	if err := cw.connection.WriteMessage(ws.TextMessage, msg); err != nil {
		return false
	}
	cw.metrics.MessageSendDuration.Observe(cw.clock.Since(start).Seconds())
	return true
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
