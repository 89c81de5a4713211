package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
	"github.com/gorilla/websocket"
)

// SignerSetter is implemented by ledger backends that need to learn the
// signing identity when a wallet connects.
type SignerSetter interface {
	SetSigner(actor string)
}

// WSHandler bridges the presentation layer to the orchestration core: it
// accepts the user intents over a websocket and streams status and mirror
// snapshots back.
type WSHandler struct {
	client   *app.Client
	signer   SignerSetter
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(client *app.Client, signer SignerSetter, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		client: client,
		signer: signer,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type connectPayload struct {
	Address string `json:"address"`
}

type submitPayload struct {
	QuizID int64 `json:"quizId"`
	Answer int   `json:"answer"`
}

type verifyPayload struct {
	QuizID int64 `json:"quizId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type connectedPayload struct {
	Address   string `json:"address"`
	State     string `json:"state"`
	ContextID string `json:"contextId"`
}

type snapshotPayload struct {
	Quizzes    []domain.QuizEntity   `json:"quizzes"`
	Selections map[int64]int         `json:"selections"`
	History    []domain.HistoryEntry `json:"history"`
	Stats      domain.Stats          `json:"stats"`
}

// ServeWS upgrades the request and runs the intent/notification loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	statusDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write error", "err", err)
				return
			}
		}
	}()

	trySend := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-closeSignals:
		}
	}

	statuses, cancelStatus := h.client.SubscribeStatus()
	go func() {
		defer close(statusDone)
		for {
			select {
			case status, ok := <-statuses:
				if !ok {
					return
				}
				trySend(outboundMessage[any]{Type: "status", Payload: status})
			case <-closeSignals:
				return
			}
		}
	}()

	// Intents block on remote finality, so each one runs on its own
	// goroutine and the read loop stays responsive.
	var pending sync.WaitGroup
	dispatch := func(fn func()) {
		pending.Add(1)
		go func() {
			defer pending.Done()
			fn()
		}()
	}

	snapshot := func() {
		trySend(outboundMessage[any]{Type: "snapshot", Payload: snapshotPayload{
			Quizzes:    h.client.Quizzes(),
			Selections: h.client.Selections(),
			History:    h.client.History(),
			Stats:      h.client.Stats(),
		}})
	}

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "connect":
			var payload connectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Address == "" {
				trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid connect payload"}})
				continue
			}
			dispatch(func() {
				if h.signer != nil {
					h.signer.SetSigner(payload.Address)
				}
				if err := h.client.Connect(ctx, payload.Address); err != nil {
					h.logger.Error("connect failed", "actor", payload.Address, "err", err)
				}
				trySend(outboundMessage[any]{Type: "connected", Payload: connectedPayload{
					Address:   payload.Address,
					State:     h.client.State().String(),
					ContextID: h.client.ContextID(),
				}})
				snapshot()
			})
		case "disconnect":
			h.client.Disconnect()
			snapshot()
		case "createQuiz":
			var payload app.NewQuiz
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid quiz payload"}})
				continue
			}
			dispatch(func() {
				if err := h.client.CreateQuiz(ctx, payload); err != nil {
					trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
					return
				}
				snapshot()
			})
		case "submitAnswer":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			dispatch(func() {
				if err := h.client.SubmitAnswer(ctx, payload.QuizID, payload.Answer); err != nil {
					trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
					return
				}
				snapshot()
			})
		case "verifyAnswer":
			var payload verifyPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid verify payload"}})
				continue
			}
			dispatch(func() {
				if err := h.client.VerifyAnswer(ctx, payload.QuizID); err != nil {
					trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
					return
				}
				snapshot()
			})
		case "refresh":
			dispatch(func() {
				if err := h.client.Refresh(ctx); err != nil {
					return
				}
				snapshot()
			})
		case "checkAvailability":
			dispatch(func() {
				_ = h.client.CheckAvailability(ctx)
			})
		default:
			trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	pending.Wait()
	cancelStatus()
	<-statusDone
	close(send)
	<-writerDone
}
