package session

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlink/livebridge/pkg/gateway/live/protocol"
	"github.com/voxlink/livebridge/pkg/gateway/live/queue"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter drains the session queue onto the client socket. It is
// the only writer while the session is active. Idle gaps are bridged
// with protocol-level pings so proxies keep the connection open.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	queue        *queue.Queue
	pingInterval time.Duration
	writeTimeout time.Duration
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	for {
		waitCtx, cancel := context.WithTimeout(w.ctx, pingInterval)
		ev, err := w.queue.Dequeue(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := w.writeEvent(ev, writeTimeout); err != nil {
				return err
			}
		case errors.Is(err, queue.ErrClosed) || w.ctx.Err() != nil:
			w.drainOnShutdown(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

// drainOnShutdown gives already-queued events, in particular a terminal
// error event, a short window to reach the client before the close frame.
func (w *outboundWriter) drainOnShutdown(writeTimeout time.Duration) {
	flushTimeout := 100 * time.Millisecond
	if writeTimeout > 0 && writeTimeout < flushTimeout {
		flushTimeout = writeTimeout
	}
	deadline := time.Now().Add(flushTimeout)

	maxFlushEvents := 8
	for i := 0; i < maxFlushEvents; i++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		ev, err := w.queue.Dequeue(ctx)
		cancel()
		if err != nil {
			return
		}
		if err := w.writeEvent(ev, writeTimeout); err != nil {
			return
		}
	}
}

func (w *outboundWriter) writeEvent(ev protocol.Event, writeTimeout time.Duration) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, data)
}
