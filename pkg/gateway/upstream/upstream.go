// Package upstream defines the boundary between the session bridge and
// the realtime model provider. Provider wire messages are translated
// exactly once, at this boundary, into explicit ServerEvent variants;
// nothing past this package probes provider payload shapes.
package upstream

import (
	"context"

	"github.com/voxlink/livebridge/pkg/gateway/tools/mcp"
)

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// FunctionResponse is one entry of a tool reply batch. Response holds
// either {"output": payload} or {"error": message}.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ServerEvent is one signal received from the upstream session.
type ServerEvent interface {
	serverEvent()
}

// AudioChunk is a model audio part with its output mime type.
type AudioChunk struct {
	Data     []byte
	MIMEType string
}

// TextChunk is a model text part.
type TextChunk struct {
	Text string
}

// ToolCallBatch groups the function calls delivered in one upstream
// message; the bridge answers the whole batch with one reply.
type ToolCallBatch struct {
	Calls []FunctionCall
}

// Interrupted means the model was cut off; output buffered downstream
// is stale.
type Interrupted struct{}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

func (AudioChunk) serverEvent()    {}
func (TextChunk) serverEvent()     {}
func (ToolCallBatch) serverEvent() {}
func (Interrupted) serverEvent()   {}
func (TurnComplete) serverEvent()  {}

// Session is an established upstream realtime session. Send methods
// report failures explicitly; the caller decides whether a given
// failure tears the session down. Receive blocks until the next event
// or a terminal error.
type Session interface {
	SendAudio(data []byte, mimeType string) error
	SendText(text string) error
	SendActivityEnd() error
	SendToolResponses(responses []FunctionResponse) error
	Receive() (ServerEvent, error)
	Close() error
}

// SessionConfig is everything needed to establish an upstream session.
// Degraded requests the reduced connect config (modalities, instruction
// and tools only) used on the connect retry path.
type SessionConfig struct {
	Model              string
	SystemInstruction  string
	ResponseModalities []string
	Tools              []mcp.ToolDescriptor
	Degraded           bool
}

// Connector establishes upstream sessions. The bridge holds one per
// client connection.
type Connector interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
