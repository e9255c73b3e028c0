package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types from client.
const (
	wsMsgReview = "review"
	wsMsgParse  = "parse"
)

// WebSocket message types to client.
const (
	wsMsgParsed   = "parsed"
	wsMsgProgress = "progress"
	wsMsgResult   = "result"
	wsMsgError    = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsReviewRequest is the payload for "review" and "parse" messages.
type wsReviewRequest struct {
	Diff    string `json:"diff"`
	Context string `json:"context,omitempty"`
}

// wsProgress reports one agent finishing.
type wsProgress struct {
	Agent  string `json:"agent"`
	Status string `json:"status"`
}

// wsConn serializes writes; agents report progress from their own goroutines.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("ws marshal: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		log.Printf("ws write: %v", err)
	}
}

func (c *wsConn) sendError(errMsg string) {
	c.send(wsMsgError, map[string]string{"message": errMsg})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	wc := &wsConn{conn: conn}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read: %v", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			wc.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgReview:
			s.handleWSReview(r, wc, msg.Data)
		case wsMsgParse:
			s.handleWSParse(wc, msg.Data)
		default:
			wc.sendError("unknown message type: " + msg.Type)
		}
	}
}

func (s *Server) handleWSReview(r *http.Request, wc *wsConn, data json.RawMessage) {
	var req wsReviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		wc.sendError("invalid review data")
		return
	}

	doc, err := diff.Parse(req.Diff)
	if err != nil {
		wc.sendError("parsing diff: " + err.Error())
		return
	}

	orch := s.orchestrate(func(agent string, status model.OutcomeStatus) {
		wc.send(wsMsgProgress, wsProgress{Agent: agent, Status: status.String()})
	})

	result, err := orch.Review(r.Context(), doc, req.Context)
	if err != nil {
		wc.sendError(err.Error())
		return
	}
	wc.send(wsMsgResult, result)
}

func (s *Server) handleWSParse(wc *wsConn, data json.RawMessage) {
	var req wsReviewRequest
	if err := json.Unmarshal(data, &req); err != nil {
		wc.sendError("invalid parse data")
		return
	}

	doc, err := diff.Parse(req.Diff)
	if err != nil {
		wc.sendError("parsing diff: " + err.Error())
		return
	}

	nFiles, added, deleted := doc.Stats()
	parsed := parseResponse{
		Stats: diffStatsJSON{Files: nFiles, Added: added, Deleted: deleted},
	}
	for _, f := range doc.Files {
		parsed.Files = append(parsed.Files, fileJSON{
			Name:      f.Name(),
			OldPath:   f.OldPath,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDeleted,
			IsRenamed: f.IsRenamed,
			IsBinary:  f.IsBinary,
			Added:     f.Added,
			Deleted:   f.Deleted,
			Hunks:     len(f.Hunks),
		})
	}
	wc.send(wsMsgParsed, parsed)
}
