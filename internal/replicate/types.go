package replicate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// InFlight reports whether the prediction may still change.
func (s Status) InFlight() bool {
	return s == StatusStarting || s == StatusProcessing
}

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Prediction represents a prediction as returned by the Replicate API.
type Prediction struct {
	ID          string            `json:"id"`
	Version     string            `json:"version,omitempty"`
	Status      Status            `json:"status"`
	Output      Output            `json:"output"`
	Error       any               `json:"error,omitempty"`
	Logs        string            `json:"logs,omitempty"`
	URLs        map[string]string `json:"urls,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ErrorMessage flattens the upstream error field, which is a string on most
// models and an object on some.
func (p Prediction) ErrorMessage() string {
	switch e := p.Error.(type) {
	case nil:
		return ""
	case string:
		return e
	case map[string]any:
		for _, k := range []string{"message", "detail", "code"} {
			if s, ok := e[k].(string); ok && s != "" {
				return s
			}
		}
	}
	b, _ := json.Marshal(p.Error)
	return string(b)
}

// CreateRequest is the body of a prediction creation call.
type CreateRequest struct {
	Version string      `json:"version"`
	Input   PromptInput `json:"input"`
}

// PromptInput is the model input for text generation models.
type PromptInput struct {
	Prompt string `json:"prompt"`
}

// StatusRequest asks the relay for the current state of a prediction.
type StatusRequest struct {
	ID string `json:"id"`
}

// OutputKind tags the shape an output value arrived in.
type OutputKind int

const (
	OutputNone OutputKind = iota
	OutputText
	OutputChunks
	OutputContent
	OutputTextField
	OutputUnknown
)

func (k OutputKind) String() string {
	switch k {
	case OutputNone:
		return "none"
	case OutputText:
		return "text"
	case OutputChunks:
		return "chunks"
	case OutputContent:
		return "content"
	case OutputTextField:
		return "text_field"
	default:
		return "unknown"
	}
}

// Output is the model output of a prediction. Its shape is not fixed by the
// upstream contract, so it is decoded once into a tagged value.
type Output struct {
	Kind   OutputKind
	Value  string
	Chunks []string
	Raw    json.RawMessage
}

// TextOutput builds a plain string output.
func TextOutput(s string) Output {
	return Output{Kind: OutputText, Value: s}
}

// ChunkOutput builds a streamed output made of string chunks.
func ChunkOutput(chunks ...string) Output {
	return Output{Kind: OutputChunks, Chunks: chunks}
}

// Present reports whether the upstream sent any output at all.
func (o Output) Present() bool {
	return o.Kind != OutputNone
}

// Text normalizes the output to a single string. ok is false for shapes that
// carry no text.
func (o Output) Text() (string, bool) {
	switch o.Kind {
	case OutputText, OutputContent, OutputTextField:
		return o.Value, true
	case OutputChunks:
		return strings.Join(o.Chunks, ""), true
	default:
		return "", false
	}
}

func (o *Output) UnmarshalJSON(data []byte) error {
	*o = Output{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	o.Raw = append(json.RawMessage(nil), trimmed...)

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode output string: %w", err)
		}
		o.Kind, o.Value = OutputText, s
	case '[':
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode output array: %w", err)
		}
		chunks := make([]string, 0, len(items))
		for _, it := range items {
			switch v := it.(type) {
			case nil:
				chunks = append(chunks, "")
			case string:
				chunks = append(chunks, v)
			default:
				o.Kind = OutputUnknown
				return nil
			}
		}
		o.Kind, o.Chunks = OutputChunks, chunks
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("decode output object: %w", err)
		}
		if s, ok := obj["content"].(string); ok && s != "" {
			o.Kind, o.Value = OutputContent, s
			return nil
		}
		if s, ok := obj["text"].(string); ok && s != "" {
			o.Kind, o.Value = OutputTextField, s
			return nil
		}
		o.Kind = OutputUnknown
	default:
		o.Kind = OutputUnknown
	}
	return nil
}

func (o Output) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutputNone:
		return []byte("null"), nil
	case OutputText:
		return json.Marshal(o.Value)
	case OutputChunks:
		return json.Marshal(o.Chunks)
	case OutputContent:
		return json.Marshal(map[string]string{"content": o.Value})
	case OutputTextField:
		return json.Marshal(map[string]string{"text": o.Value})
	default:
		if len(o.Raw) > 0 {
			return o.Raw, nil
		}
		return []byte("null"), nil
	}
}
