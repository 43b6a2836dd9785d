package ai

import (
	"errors"
	"time"

	"ideaforge/internal/ideas"
	"ideaforge/internal/prediction"
)

// Code is the user-facing category of a failed generation.
type Code string

const (
	CodeConnectivity Code = "cors_blocked"
	CodeCredits      Code = "credits"
	CodeToken        Code = "token"
	CodeRateLimit    Code = "rate_limit"
	CodeTimeout      Code = "timeout"
	CodeJSONParse    Code = "json_parse"
	CodeGeneral      Code = "general"
)

// Problem explains a failed generation to the user.
type Problem struct {
	Code        Code   `json:"code"`
	Kind        string `json:"kind,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
	// ShowFallback means the static recommendations were substituted.
	ShowFallback bool   `json:"show_fallback"`
	RawOutput    string `json:"raw_output,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

type message struct {
	title, description, action string
	fallback                   bool
}

var messages = map[Code]message{
	CodeConnectivity: {
		"Replicate API unreachable",
		"The prediction API could not be reached. Recommendations below were prepared from your description.",
		"More information",
		true,
	},
	CodeCredits: {
		"Insufficient Replicate credit",
		"Your Replicate account does not have enough credit. Sample recommendations are shown instead.",
		"Top up Replicate",
		true,
	},
	CodeToken: {
		"Invalid Replicate token",
		"The Replicate API token is invalid or lacks the required permissions.",
		"Check the token",
		false,
	},
	CodeRateLimit: {
		"Rate limit exceeded",
		"Too many requests were sent to the Replicate API. Wait a moment before trying again.",
		"Try again shortly",
		false,
	},
	CodeTimeout: {
		"Request timed out",
		"The Replicate API did not answer in time. Sample recommendations are shown instead.",
		"Try again",
		true,
	},
	CodeJSONParse: {
		"Could not parse the Replicate response",
		"The model did not return clean JSON. Adjust the description or try again.",
		"Try again",
		true,
	},
	CodeGeneral: {
		"Replicate API problem",
		"Something went wrong while talking to the Replicate API. Recommendations below were prepared from your description.",
		"Try again",
		true,
	},
}

// Classify maps a generation error to a Problem. It returns nil for nil.
func Classify(err error) *Problem {
	if err == nil {
		return nil
	}
	p := &Problem{Code: CodeGeneral, Detail: err.Error()}

	var perr *prediction.Error
	var parseErr *ideas.ParseError
	switch {
	case errors.As(err, &perr):
		p.Kind = string(perr.Kind)
		p.StatusCode = perr.StatusCode
		p.Code = codeFor(perr.Kind)
		if perr.RetryAfter > 0 {
			p.RetryAfter = int((perr.RetryAfter + time.Second - 1) / time.Second)
		}
	case errors.As(err, &parseErr):
		p.Kind = string(parseErr.Kind)
		p.Code = CodeJSONParse
		p.RawOutput = parseErr.Raw
	}

	m := messages[p.Code]
	p.Title, p.Description, p.Action, p.ShowFallback = m.title, m.description, m.action, m.fallback
	return p
}

func codeFor(k prediction.Kind) Code {
	switch k {
	case prediction.KindConnection:
		return CodeConnectivity
	case prediction.KindInsufficientBalance:
		return CodeCredits
	case prediction.KindInvalidCredential:
		return CodeToken
	case prediction.KindRateLimited:
		return CodeRateLimit
	case prediction.KindRequestTimeout, prediction.KindStatusTimeout, prediction.KindPredictionTimeout:
		return CodeTimeout
	default:
		return CodeGeneral
	}
}
