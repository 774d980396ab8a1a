// Package server exposes the engine over HTTP: document ingestion (plain
// POST and a websocket stream), the query admin endpoint, health and
// metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/percodb/percodb/internal/match"
	"github.com/percodb/percodb/internal/metrics"
	"github.com/percodb/percodb/internal/percolator"
	"github.com/percodb/percodb/pkg"
)

var upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Server struct {
	engine *percolator.Engine
	router *gin.Engine
}

func New(engine *percolator.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{engine: engine, router: router}

	router.POST("/documents", s.handleDocuments)
	router.GET("/ws", s.handleWs)
	router.POST("/queries", s.handleAdmin)
	router.GET("/queries", s.handleListQueries)
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler { return s.router }

type ingestRequest struct {
	Documents []match.Document `json:"documents" binding:"required,min=1"`
}

// handleDocuments accepts a document batch for asynchronous matching. The
// 202 response only acknowledges buffering; match results surface through
// the configured sinks.
func (s *Server) handleDocuments(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i, doc := range req.Documents {
		if doc.Id == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("document %d is missing an id", i),
			})
			return
		}
	}

	if err := s.engine.Ingest(req.Documents); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(req.Documents)})
}

type wsReply struct {
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	Accepted int    `json:"accepted,omitempty"`
}

// handleWs streams documents over a websocket. Each text message is one
// ingest request; every message gets a status reply so clients can apply
// backpressure.
func (s *Server) handleWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		pkg.ErrorLog(err)
		return
	}
	pkg.InfoLog("New connection established")
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("unexpected close", err)
			} else {
				pkg.DebugLog("connection closed", err)
			}
			return
		}

		var req ingestRequest
		if err := json.Unmarshal(message, &req); err != nil {
			conn.WriteJSON(wsReply{Status: http.StatusBadRequest, Message: err.Error()})
			continue
		}
		if len(req.Documents) == 0 {
			conn.WriteJSON(wsReply{Status: http.StatusBadRequest, Message: "no documents in message"})
			continue
		}

		if err := s.engine.Ingest(req.Documents); err != nil {
			conn.WriteJSON(wsReply{Status: http.StatusServiceUnavailable, Message: err.Error()})
			return
		}
		conn.WriteJSON(wsReply{Status: http.StatusAccepted, Accepted: len(req.Documents)})
	}
}

func (s *Server) handleListQueries(c *gin.Context) {
	snapshot := s.engine.Registry().Snapshot()

	queries := make([]gin.H, 0, len(snapshot))
	for id, rec := range snapshot {
		queries = append(queries, gin.H{
			"query_id":   id,
			"query_name": rec.Name,
			"query":      rec.Raw,
		})
	}

	c.JSON(http.StatusOK, gin.H{"size": len(queries), "queries": queries})
}
