package upstream

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// OutputAudioMIMEType is the format Gemini Live emits model audio in.
const OutputAudioMIMEType = "audio/pcm;rate=24000"

// GeminiConnector establishes Gemini Live sessions. Each Connect builds
// its own API client, so one misbehaving session cannot poison another.
type GeminiConnector struct {
	apiKey string
}

func NewGeminiConnector(apiKey string) *GeminiConnector {
	return &GeminiConnector{apiKey: apiKey}
}

func (c *GeminiConnector) Connect(ctx context.Context, cfg SessionConfig) (Session, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	live, err := client.Live.Connect(ctx, cfg.Model, liveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return &geminiSession{live: live}, nil
}

func liveConfig(cfg SessionConfig) *genai.LiveConnectConfig {
	modalities := make([]genai.Modality, 0, len(cfg.ResponseModalities))
	for _, m := range cfg.ResponseModalities {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		modalities = append(modalities, genai.Modality(m))
	}
	if len(modalities) == 0 {
		modalities = []genai.Modality{genai.ModalityAudio}
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: modalities,
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		lc.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, tool := range cfg.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.InputSchema,
			})
		}
		lc.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	// The degraded config drops the activity-detection tuning; some
	// model versions reject it and the retry path needs a connect that
	// cannot fail on optional knobs.
	if !cfg.Degraded {
		lc.RealtimeInputConfig = &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				Disabled:                 false,
				StartOfSpeechSensitivity: genai.StartSensitivityLow,
				EndOfSpeechSensitivity:   genai.EndSensitivityLow,
				PrefixPaddingMs:          genai.Ptr[int32](20),
				SilenceDurationMs:        genai.Ptr[int32](100),
			},
			ActivityHandling: genai.ActivityHandlingStartOfActivityInterrupts,
			TurnCoverage:     genai.TurnCoverageTurnIncludesAllInput,
		}
	}
	return lc
}

// geminiSession adapts a genai live session to the Session interface.
// One upstream message can carry several signals (tool calls plus
// content parts plus the interrupted flag), so translation buffers
// pending events and Receive drains them one at a time.
type geminiSession struct {
	live    *genai.Session
	pending []ServerEvent
}

func (s *geminiSession) SendAudio(data []byte, mimeType string) error {
	return s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *geminiSession) SendText(text string) error {
	return s.live.SendRealtimeInput(genai.LiveRealtimeInput{Text: text})
}

func (s *geminiSession) SendActivityEnd() error {
	return s.live.SendRealtimeInput(genai.LiveRealtimeInput{
		ActivityEnd: &genai.ActivityEnd{},
	})
}

func (s *geminiSession) SendToolResponses(responses []FunctionResponse) error {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	return s.live.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

func (s *geminiSession) Receive() (ServerEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		msg, err := s.live.Receive()
		if err != nil {
			return nil, err
		}
		s.pending = translateServerMessage(msg)
	}
}

func (s *geminiSession) Close() error {
	return s.live.Close()
}

// translateServerMessage maps one provider message onto ServerEvent
// variants. Tool calls first, then content parts, then the interrupted
// flag: a flush must come after the parts it is meant to discard.
func translateServerMessage(msg *genai.LiveServerMessage) []ServerEvent {
	if msg == nil {
		return nil
	}
	var events []ServerEvent

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]FunctionCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			calls = append(calls, FunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		if len(calls) > 0 {
			events = append(events, ToolCallBatch{Calls: calls})
		}
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					mime := part.InlineData.MIMEType
					if mime == "" {
						mime = OutputAudioMIMEType
					}
					events = append(events, AudioChunk{Data: part.InlineData.Data, MIMEType: mime})
				}
				if part.Text != "" {
					events = append(events, TextChunk{Text: part.Text})
				}
			}
		}
		if sc.Interrupted {
			events = append(events, Interrupted{})
		}
		if sc.TurnComplete {
			events = append(events, TurnComplete{})
		}
	}

	return events
}
