// internal/services/voice/handler.go
package voice

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	commonauth "platform-services/internal/common/auth"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
)

type Handler struct {
	pipeline     *Pipeline
	maxUtterance int
	idleTimeout  time.Duration
	upgrader     websocket.Upgrader
	logger       logger.Logger
}

func NewHandler(pipeline *Pipeline, maxUtteranceBytes int, idleTimeout time.Duration, log logger.Logger) *Handler {
	return &Handler{
		pipeline:     pipeline,
		maxUtterance: maxUtteranceBytes,
		idleTimeout:  idleTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/stream", authMiddleware(http.HandlerFunc(h.Stream)))
	return mux
}

// session serializes writes to the socket. The gorilla connection allows at
// most one concurrent writer.
type session struct {
	conn   *websocket.Conn
	writeM sync.Mutex

	buffer []byte
	jobs   chan Utterance
}

func (s *session) SendControl(msg ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) SendAudio(audio []byte) error {
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stream upgrades to a WebSocket and runs the utterance loop until the client
// goes away or idles out.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := commonauth.UserID(r.Context())
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	metrics.VoiceSessionsActive.Inc()
	defer metrics.VoiceSessionsActive.Dec()

	sess := &session{
		conn: conn,
		jobs: make(chan Utterance, 4),
	}

	// One worker per socket keeps a single pipeline in flight; further
	// utterances queue behind it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for job := range sess.jobs {
			h.pipeline.Run(r.Context(), job, sess)
		}
	}()
	defer func() {
		close(sess.jobs)
		<-done
	}()

	h.logger.WithFields(map[string]interface{}{
		"user_id": userID,
	}).Info("voice session opened")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WithError(err).Debug("voice session read ended")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(sess.buffer)+len(data) > h.maxUtterance {
				sess.buffer = nil
				_ = sess.SendControl(ControlMessage{
					Type: MsgError,
					Code: string(commonerrors.ErrCodePayloadTooLarge),
				})
				continue
			}
			sess.buffer = append(sess.buffer, data...)

		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = sess.SendControl(ControlMessage{
					Type: MsgError,
					Code: string(commonerrors.ErrCodeValidationFailed),
				})
				continue
			}
			h.handleControl(sess, msg, userID, token)
		}
	}
}

func (h *Handler) handleControl(sess *session, msg ControlMessage, userID, token string) {
	switch msg.Type {
	case MsgEndOfUtterance:
		if len(sess.buffer) == 0 {
			return
		}
		audio := sess.buffer
		sess.buffer = nil
		h.enqueue(sess, Utterance{UserID: userID, Token: token, Audio: audio})

	case MsgTextFallback:
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		h.enqueue(sess, Utterance{UserID: userID, Token: token, Text: msg.Text})

	default:
		_ = sess.SendControl(ControlMessage{
			Type: MsgError,
			Code: string(commonerrors.ErrCodeValidationFailed),
		})
	}
}

func (h *Handler) enqueue(sess *session, u Utterance) {
	select {
	case sess.jobs <- u:
	default:
		// Queue is full; drop rather than stall the read loop.
		_ = sess.SendControl(ControlMessage{
			Type: MsgError,
			Code: string(commonerrors.ErrCodeRateLimited),
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on WebSocket requests; allow the token as
	// a query parameter.
	return r.URL.Query().Get("token")
}
