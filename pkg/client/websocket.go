package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xyself/blivedm/pkg/events"
	"github.com/xyself/blivedm/pkg/protocol"
)

// readLoop feeds inbound messages to the event loop until the connection
// fails or the session stops. The read error, if any, is sent on errc
// before msgs is closed.
func (c *Client) readLoop(conn *websocket.Conn, msgs chan<- []byte, errc chan<- error) {
	defer close(msgs)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		select {
		case msgs <- data:
		case <-c.stop:
			return
		}
	}
}

// eventLoop handles inbound messages and heartbeat ticks, one at a time.
// Every callback of the session runs here.
func (c *Client) eventLoop(msgs <-chan []byte, errc <-chan error) {
	var exitErr error
	defer func() {
		c.shutdown(exitErr)
	}()

	for {
		select {
		case <-c.stop:
			return

		case msg, ok := <-msgs:
			if !ok {
				exitErr = c.readError(errc)
				return
			}
			if c.stopping() {
				return
			}
			if err := c.handleMessage(msg); err != nil {
				exitErr = err
				return
			}

		case <-c.ka.C():
			// A tick and a stop may be ready together.
			if c.stopping() {
				return
			}
			c.sendHeartbeat()
		}
	}
}

func (c *Client) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Client) readError(errc <-chan error) error {
	var err error
	select {
	case err = <-errc:
	default:
	}
	if err == nil || c.stopping() {
		return nil
	}
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure) {
		c.logger.Error("read error", "room_id", c.RoomID(), "error", err)
	}
	return fmt.Errorf("client: read: %w", err)
}

// shutdown runs when the event loop exits.
func (c *Client) shutdown(err error) {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	if c.state < StateClosing {
		c.state = StateClosing
	}
	c.mu.Unlock()

	c.ka.stop()
	c.closeTransport()
	c.finish(err)
}

func (c *Client) closeTransport() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return
	}
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.conn.Close()
}

// handleMessage processes one transport message. A non-nil error ends
// the session.
func (c *Client) handleMessage(msg []byte) error {
	frames, err := protocol.DecodeFrames(msg)
	if err != nil {
		c.reportDecodeError(err)
	}

	for i := range frames {
		f := &frames[i]
		c.metrics.Frame(f.Operation.String())

		switch f.Operation {
		case protocol.OpAuthReply:
			if err := c.handleAuthReply(f.Body); err != nil {
				return err
			}
		case protocol.OpHeartbeatReply:
			c.handleHeartbeatReply(f)
		case protocol.OpNotification:
			_ = c.router.Dispatch(c.ctx, c.view, f.Body)
		default:
			c.logger.Debug("unexpected frame", "room_id", c.RoomID(), "op", f.Operation.String())
		}

		// A callback may have stopped the session.
		if c.stopping() {
			return nil
		}
	}
	return nil
}

// reportDecodeError logs and counts each error of a joined decode error.
func (c *Client) reportDecodeError(err error) {
	errs := []error{err}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		errs = j.Unwrap()
	}
	for _, e := range errs {
		kind := "frame"
		var de *protocol.DecompressionError
		if errors.As(e, &de) {
			kind = "decompress"
		}
		c.metrics.FrameError(kind)
		c.logger.Warn("frame decode error", "room_id", c.RoomID(), "kind", kind, "error", e)
	}
}

func (c *Client) handleAuthReply(body []byte) error {
	if err := parseAuthReply(body); err != nil {
		c.logger.Warn("auth rejected", "room_id", c.RoomID(), "error", err)
		return err
	}

	c.mu.Lock()
	if c.state != StateAuthenticating {
		c.mu.Unlock()
		c.logger.Debug("ignoring auth reply", "room_id", c.RoomID())
		return nil
	}
	c.state = StateLive
	c.live = true
	c.mu.Unlock()

	c.metrics.SessionLive()
	c.ka.start()
	c.logger.Info("session live", "room_id", c.RoomID())

	if cb := c.handler.OnSessionStart; cb != nil {
		c.callback("OnSessionStart", func() { cb(c.view) })
	}
	return nil
}

func (c *Client) handleHeartbeatReply(f *protocol.Frame) {
	popularity, err := f.Popularity()
	if err != nil {
		c.logger.Warn("heartbeat reply decode error", "room_id", c.RoomID(), "error", err)
		return
	}
	c.metrics.Popularity(c.RoomID(), popularity)
	if cb := c.handler.OnHeartbeat; cb != nil {
		c.callback("OnHeartbeat", func() { cb(c.view, events.Heartbeat{Popularity: popularity}) })
	}
}

func (c *Client) sendHeartbeat() {
	if err := c.send(protocol.OpHeartbeat, nil); err != nil {
		c.logger.Warn("heartbeat error", "room_id", c.RoomID(), "error", err)
		return
	}
	c.metrics.HeartbeatSent()
}

// send writes one frame.
func (c *Client) send(op protocol.Operation, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, protocol.Encode(op, body))
}
