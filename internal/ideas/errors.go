package ideas

import "fmt"

// Kind names why model output could not be turned into ideas.
type Kind string

const (
	KindInvalidOutputFormat Kind = "invalid_output_format"
	KindEmptyOutput         Kind = "empty_output"
	KindJSONParse           Kind = "json_parse_error"
	KindInvalidStructure    Kind = "invalid_response_structure"
)

var (
	ErrInvalidOutputFormat = &ParseError{Kind: KindInvalidOutputFormat}
	ErrEmptyOutput         = &ParseError{Kind: KindEmptyOutput}
	ErrJSONParse           = &ParseError{Kind: KindJSONParse}
	ErrInvalidStructure    = &ParseError{Kind: KindInvalidStructure}
)

// ParseError carries the offending text so it can be shown for diagnosis.
type ParseError struct {
	Kind   Kind
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "ideas: " + string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}
