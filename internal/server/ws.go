package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ideaforge/internal/ai"
	"ideaforge/internal/prediction"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

func newUpgrader(origins originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.allows,
	}
}

type wsInbound struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type wsOutbound struct {
	Type         string         `json:"type"`
	Epoch        uint64         `json:"epoch,omitempty"`
	PredictionID string         `json:"predictionId,omitempty"`
	Attempt      int            `json:"attempt,omitempty"`
	Status       string         `json:"status,omitempty"`
	Result       *ai.Result     `json:"result,omitempty"`
	More         *ai.MoreResult `json:"more,omitempty"`
	Code         string         `json:"code,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// handleWS runs one ai.Session per connection. A new search supersedes the
// previous one; its late result is reported as stale instead of committed.
func (h *apiHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		log.Printf("ws: set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writeCh := make(chan wsOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	var session *ai.Session
	session = ai.NewSession(h.opts.Recommender, func(epoch uint64, p prediction.Progress) {
		if session.Snapshot().Epoch != epoch {
			return
		}
		pushWS(writeCh, wsOutbound{
			Type:         "progress",
			Epoch:        epoch,
			PredictionID: p.PredictionID,
			Attempt:      p.Attempt,
			Status:       string(p.Status),
		})
	})

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushWS(writeCh, wsOutbound{Type: "pong"})
		case "search":
			if strings.TrimSpace(in.Description) == "" {
				pushWS(writeCh, wsOutbound{Type: "error", Code: "invalid_argument", Message: "description is required"})
				continue
			}
			go func(description string) {
				res, epoch, err := session.Search(ctx, description)
				switch {
				case errors.Is(err, ai.ErrStale):
					pushWS(writeCh, wsOutbound{Type: "stale", Epoch: epoch})
				case err != nil:
					pushWS(writeCh, wsOutbound{Type: "error", Epoch: epoch, Code: "invalid_argument", Message: err.Error()})
				default:
					pushWS(writeCh, wsOutbound{Type: "result", Epoch: epoch, Result: &res})
				}
			}(in.Description)
		case "more":
			go func(category string) {
				res, epoch, err := session.More(ctx, category)
				switch {
				case errors.Is(err, ai.ErrStale):
					pushWS(writeCh, wsOutbound{Type: "stale", Epoch: epoch})
				case err != nil:
					pushWS(writeCh, wsOutbound{Type: "error", Epoch: epoch, Code: "failed_precondition", Message: err.Error()})
				default:
					pushWS(writeCh, wsOutbound{Type: "more", Epoch: epoch, More: &res})
				}
			}(in.Category)
		default:
			pushWS(writeCh, wsOutbound{Type: "error", Code: "invalid_argument", Message: "unsupported type: " + in.Type})
		}
	}
}

// pushWS never blocks; when the buffer is full the oldest message is dropped.
func pushWS(writeCh chan wsOutbound, out wsOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
