// Package session runs one bridge per client connection: a WebSocket
// on one side, a realtime model session on the other, and a tool
// backend in between. The bridge owns the session lifecycle and the
// three relay loops that make up the ACTIVE phase.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlink/livebridge/pkg/gateway/live/protocol"
	"github.com/voxlink/livebridge/pkg/gateway/live/queue"
	"github.com/voxlink/livebridge/pkg/gateway/tools/mcp"
	"github.com/voxlink/livebridge/pkg/gateway/upstream"
)

// State is the bridge lifecycle phase, advancing monotonically.
type State int32

const (
	StateConnecting State = iota
	StateNegotiating
	StateDiscoveringTools
	StateEstablishingUpstream
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateDiscoveringTools:
		return "discovering_tools"
	case StateEstablishingUpstream:
		return "establishing_upstream"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the slice of *websocket.Conn the bridge uses. Reads happen
// only in negotiate and the client loop; writes only in the delivery
// loop plus the direct writes that bracket it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ToolGateway is what the bridge needs from the tool backend.
type ToolGateway interface {
	List(ctx context.Context) ([]mcp.ToolDescriptor, error)
	Call(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Config carries per-session settings, resolved before New.
type Config struct {
	Model              string
	SystemInstruction  string
	ResponseModalities []string
	InputAudioMIMEType string

	NegotiationTimeout time.Duration
	DiscoveryTimeout   time.Duration
	ConnectTimeout     time.Duration
	ToolTimeout        time.Duration
	GracePeriod        time.Duration
	PingInterval       time.Duration
	WriteTimeout       time.Duration

	ToolsRequired bool
}

func (c *Config) applyDefaults() {
	if c.InputAudioMIMEType == "" {
		c.InputAudioMIMEType = "audio/pcm;rate=16000"
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = 2 * time.Second
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

type Dependencies struct {
	SessionID string
	Conn      Conn
	Logger    *slog.Logger
	Upstream  upstream.Connector
	Tools     ToolGateway
	Config    Config
}

// Bridge is one live session.
type Bridge struct {
	id        string
	conn      Conn
	logger    *slog.Logger
	connector upstream.Connector
	tools     ToolGateway
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	queue  *queue.Queue
	state  atomic.Int32

	pendingFirst protocol.Event
	firstRead    chan clientFrame
}

// clientFrame is one raw read off the client socket, carried through
// the negotiation handoff.
type clientFrame struct {
	data []byte
	err  error
}

func New(deps Dependencies) (*Bridge, error) {
	if deps.Conn == nil {
		return nil, errors.New("session: nil conn")
	}
	if deps.Upstream == nil {
		return nil, errors.New("session: nil upstream connector")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		id:        deps.SessionID,
		conn:      deps.Conn,
		logger:    logger,
		connector: deps.Upstream,
		tools:     deps.Tools,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		queue:     queue.New(),
	}, nil
}

func (b *Bridge) ID() string { return b.id }

func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Cancel aborts the session from outside (shutdown, tracker).
func (b *Bridge) Cancel() {
	b.cancel()
}

// Notify queues an advisory error event for the client, used to warn
// about impending shutdown without closing the session.
func (b *Bridge) Notify(message string) error {
	b.queue.Enqueue(protocol.Error{Message: message})
	return nil
}

// Run drives the whole session lifecycle and blocks until it ends.
// The client always observes a terminal error event or a clean close.
func (b *Bridge) Run() error {
	defer b.cancel()
	defer b.setState(StateClosed)
	defer func() { _ = b.conn.Close() }()

	b.setState(StateNegotiating)
	override, err := b.negotiate()
	if err != nil {
		b.logger.Info("session ended during negotiation", "session_id", b.id, "error", err)
		return err
	}

	model := b.cfg.Model
	instruction := b.cfg.SystemInstruction
	modalities := b.cfg.ResponseModalities
	if override != nil {
		if strings.TrimSpace(override.Model) != "" {
			model = strings.TrimSpace(override.Model)
		}
		if override.SystemInstruction != "" {
			instruction = override.SystemInstruction
		}
		if len(override.ResponseModalities) > 0 {
			modalities = override.ResponseModalities
		}
	}

	b.setState(StateDiscoveringTools)
	descriptors, err := b.discoverTools()
	if err != nil {
		b.writeEventDirect(protocol.Error{Message: "tool backend unavailable"})
		return err
	}
	if len(descriptors) > 0 {
		instruction = foldToolNames(instruction, descriptors)
	}

	b.setState(StateEstablishingUpstream)
	us, err := b.establishUpstream(upstream.SessionConfig{
		Model:              model,
		SystemInstruction:  instruction,
		ResponseModalities: modalities,
		Tools:              descriptors,
	})
	if err != nil {
		b.writeEventDirect(protocol.Error{Message: fmt.Sprintf("upstream connect failed: %v", err)})
		return err
	}

	b.setState(StateActive)
	if err := b.writeEventDirect(protocol.Ready{Model: model}); err != nil {
		_ = us.Close()
		return fmt.Errorf("send ready: %w", err)
	}
	b.logger.Info("session active", "session_id", b.id, "model", model, "tools", len(descriptors))

	return b.runActive(us)
}

// negotiate waits a bounded time for the optional first client frame.
// A config frame overrides defaults; any other frame is replayed into
// the client loop once active; a timeout or malformed frame means
// defaults. Only a hard transport error aborts the session.
//
// The wait races a timer against a pending read rather than arming a
// read deadline: an expired deadline poisons the websocket conn (every
// later read returns the same i/o timeout), so a silent client would
// otherwise kill the session right after ready. On timeout the
// still-pending read becomes the client loop's first delivery.
func (b *Bridge) negotiate() (*protocol.Config, error) {
	reads := make(chan clientFrame, 1)
	go func() {
		_, data, err := b.conn.ReadMessage()
		reads <- clientFrame{data: data, err: err}
	}()

	timer := time.NewTimer(b.cfg.NegotiationTimeout)
	defer timer.Stop()

	var res clientFrame
	select {
	case <-timer.C:
		b.firstRead = reads
		return nil, nil
	case res = <-reads:
	}
	if res.err != nil {
		return nil, fmt.Errorf("client read: %w", res.err)
	}

	ev, err := protocol.Decode(res.data)
	if err != nil {
		b.logger.Warn("malformed first frame, using defaults", "session_id", b.id, "error", err)
		return nil, nil
	}
	if cfg, ok := ev.(protocol.Config); ok {
		return &cfg, nil
	}
	b.pendingFirst = ev
	return nil, nil
}

// discoverTools lists the tool backend once. Failure is fatal only when
// tools are configured as required; otherwise the session runs toolless.
func (b *Bridge) discoverTools() ([]mcp.ToolDescriptor, error) {
	if b.tools == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.DiscoveryTimeout)
	defer cancel()

	descriptors, err := b.tools.List(ctx)
	if err != nil {
		if b.cfg.ToolsRequired {
			return nil, fmt.Errorf("tool discovery: %w", err)
		}
		b.logger.Warn("tool discovery failed, continuing without tools", "session_id", b.id, "error", err)
		b.tools = nil
		return nil, nil
	}
	return descriptors, nil
}

func foldToolNames(instruction string, descriptors []mcp.ToolDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	return strings.TrimRight(instruction, " \n") + "\n\n" +
		"You can only answer using MCP data. Available tools: " + strings.Join(names, ", ") + ". " +
		"If the data is not available from MCP, say you don't know."
}

// establishUpstream connects with the full config, then retries once
// with the reduced config before giving up.
func (b *Bridge) establishUpstream(cfg upstream.SessionConfig) (upstream.Session, error) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.ConnectTimeout)
	defer cancel()

	us, err := b.connector.Connect(ctx, cfg)
	if err == nil {
		return us, nil
	}
	b.logger.Warn("upstream connect failed, retrying with reduced config", "session_id", b.id, "error", err)

	cfg.Degraded = true
	retryCtx, retryCancel := context.WithTimeout(b.ctx, b.cfg.ConnectTimeout)
	defer retryCancel()
	us, err = b.connector.Connect(retryCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("upstream connect: %w", err)
	}
	return us, nil
}

// runActive runs the three relay loops and supervises them: the first
// one to finish, for whatever reason, brings the session down. The
// others must unblock within the grace period.
func (b *Bridge) runActive(us upstream.Session) error {
	type loopExit struct {
		name string
		err  error
	}
	results := make(chan loopExit, 3)

	go func() { results <- loopExit{"client_read", b.clientLoop(us)} }()
	go func() { results <- loopExit{"upstream_receive", b.receiveLoop(us)} }()

	writer := &outboundWriter{
		ws:           b.conn,
		ctx:          b.ctx,
		queue:        b.queue,
		pingInterval: b.cfg.PingInterval,
		writeTimeout: b.cfg.WriteTimeout,
	}
	go func() { results <- loopExit{"client_write", writer.Run()} }()

	first := <-results
	b.setState(StateClosing)
	b.cancel()
	_ = us.Close()
	_ = b.conn.SetReadDeadline(time.Now())
	b.queue.Close()

	grace := time.NewTimer(b.cfg.GracePeriod)
	defer grace.Stop()
	for remaining := 2; remaining > 0; remaining-- {
		select {
		case <-results:
		case <-grace.C:
			b.logger.Warn("relay loops did not stop within grace period", "session_id", b.id)
			_ = b.conn.Close()
			remaining = 0
		}
	}

	b.logger.Info("session closed",
		"session_id", b.id,
		"cause", first.name,
		"error", errString(first.err))
	return first.err
}

// clientLoop forwards client events to the upstream session. Decode
// failures and unknown types are reported and skipped; transport read
// errors and upstream send errors end the session.
func (b *Bridge) clientLoop(us upstream.Session) error {
	if b.pendingFirst != nil {
		ev := b.pendingFirst
		b.pendingFirst = nil
		if err := b.forwardClientEvent(us, ev); err != nil {
			return err
		}
	}
	for {
		var data []byte
		var err error
		if b.firstRead != nil {
			res := <-b.firstRead
			b.firstRead = nil
			data, err = res.data, res.err
		} else {
			_, data, err = b.conn.ReadMessage()
		}
		if err != nil {
			if b.ctx.Err() != nil || isExpectedClose(err) {
				return nil
			}
			return fmt.Errorf("client read: %w", err)
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			b.queue.Enqueue(protocol.Error{Message: err.Error()})
			continue
		}
		if err := b.forwardClientEvent(us, ev); err != nil {
			return err
		}
	}
}

func (b *Bridge) forwardClientEvent(us upstream.Session, ev protocol.Event) error {
	switch msg := ev.(type) {
	case protocol.Audio:
		mime := msg.MIMEType
		if mime == "" {
			mime = b.cfg.InputAudioMIMEType
		}
		if err := us.SendAudio(msg.Data, mime); err != nil {
			b.queue.Enqueue(protocol.Error{Message: fmt.Sprintf("upstream send error: %v", err)})
			return fmt.Errorf("upstream send audio: %w", err)
		}
	case protocol.Text:
		if strings.TrimSpace(msg.Text) == "" {
			return nil
		}
		if err := us.SendText(msg.Text); err != nil {
			b.queue.Enqueue(protocol.Error{Message: fmt.Sprintf("upstream send error: %v", err)})
			return fmt.Errorf("upstream send text: %w", err)
		}
	case protocol.Interrupt:
		// Best effort: a failed activity-end leaves the model talking,
		// which the client can retry, so it does not end the session.
		if err := us.SendActivityEnd(); err != nil {
			b.logger.Warn("activity end failed", "session_id", b.id, "error", err)
		}
	case protocol.Ping:
		b.queue.Enqueue(protocol.Pong{})
	case protocol.Config:
		// Config after the first frame is a no-op.
	default:
		b.queue.Enqueue(protocol.Error{Message: "Unknown message type: " + ev.EventType()})
	}
	return nil
}

// receiveLoop translates upstream events into outbound client events
// and dispatches tool-call batches. An upstream interruption flushes
// the queue and then enqueues exactly one interrupted marker.
func (b *Bridge) receiveLoop(us upstream.Session) error {
	for {
		ev, err := us.Receive()
		if err != nil {
			if b.ctx.Err() != nil {
				return nil
			}
			b.queue.Enqueue(protocol.Error{Message: fmt.Sprintf("upstream receive error: %v", err)})
			return fmt.Errorf("upstream receive: %w", err)
		}
		switch msg := ev.(type) {
		case upstream.AudioChunk:
			b.queue.Enqueue(protocol.Audio{Data: msg.Data, MIMEType: msg.MIMEType})
		case upstream.TextChunk:
			if strings.TrimSpace(msg.Text) != "" {
				b.queue.Enqueue(protocol.Text{Text: msg.Text})
			}
		case upstream.ToolCallBatch:
			if err := b.dispatchToolBatch(us, msg.Calls); err != nil {
				b.queue.Enqueue(protocol.Error{Message: fmt.Sprintf("upstream send error: %v", err)})
				return err
			}
		case upstream.Interrupted:
			dropped := b.queue.Flush()
			b.queue.Enqueue(protocol.Interrupted{})
			b.logger.Debug("model interrupted", "session_id", b.id, "dropped", dropped)
		case upstream.TurnComplete:
			// Nothing to relay.
		}
	}
}

// dispatchToolBatch resolves one batch sequentially in arrival order
// and answers it with a single upstream reply. Gateway failures become
// error entries in the reply, never session failures; only the reply
// send itself can fail the loop.
func (b *Bridge) dispatchToolBatch(us upstream.Session, calls []upstream.FunctionCall) error {
	responses := make([]upstream.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		if call.ID == "" {
			b.logger.Warn("tool call missing id", "session_id", b.id, "tool", call.Name)
			b.queue.Enqueue(protocol.Error{Message: "Tool call missing id: " + call.Name})
			continue
		}
		if call.Name == "" {
			responses = append(responses, upstream.FunctionResponse{
				ID:       call.ID,
				Name:     "unknown_tool",
				Response: map[string]any{"error": "missing_function_name"},
			})
			continue
		}
		if b.tools == nil {
			responses = append(responses, upstream.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"error": "tool backend unavailable"},
			})
			continue
		}

		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.ToolTimeout)
		payload, err := b.tools.Call(ctx, call.Name, call.Args)
		cancel()
		if err != nil {
			b.logger.Warn("tool call failed", "session_id", b.id, "tool", call.Name, "error", err)
			responses = append(responses, upstream.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: map[string]any{"error": err.Error()},
			})
			continue
		}
		responses = append(responses, upstream.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"output": payload},
		})
	}

	if len(responses) == 0 {
		return nil
	}
	if err := us.SendToolResponses(responses); err != nil {
		return fmt.Errorf("upstream tool response: %w", err)
	}
	return nil
}

// writeEventDirect writes outside the delivery loop: before it starts
// and on the error paths that precede it.
func (b *Bridge) writeEventDirect(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout)); err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
