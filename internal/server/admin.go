package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/percodb/percodb/internal/registry"
)

// Admin command vocabulary, matched case-insensitively.
const (
	CommandUpdate  = "UPDATE"
	CommandDelete  = "DELETE"
	CommandRefresh = "REFRESH"
	CommandReread  = "REREAD"
)

var supportedCommands = strings.Join([]string{
	CommandUpdate, CommandDelete, CommandRefresh, CommandReread,
}, ", ")

type adminRequest struct {
	Command   string `json:"command" binding:"required"`
	QueryId   string `json:"query_id"`
	QueryName string `json:"query_name"`
}

// handleAdmin mutates the live query corpus. UPDATE pulls one definition
// from the source, DELETE drops one, REFRESH recompiles everything in
// place and REREAD replaces the corpus from the source wholesale.
func (s *Server) handleAdmin(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch strings.ToUpper(req.Command) {
	case CommandUpdate:
		if req.QueryId == "" || req.QueryName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "UPDATE requires query_id and query_name"})
			return
		}
		if err := s.engine.Update(c.Request.Context(), req.QueryId, req.QueryName); err != nil {
			s.adminError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "query " + req.QueryId + " updated"})

	case CommandDelete:
		if req.QueryId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "DELETE requires query_id"})
			return
		}
		if err := s.engine.Delete(req.QueryId); err != nil {
			s.adminError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "query " + req.QueryId + " deleted"})

	case CommandRefresh:
		refreshed, failed := s.engine.Refresh()
		c.JSON(http.StatusOK, gin.H{"ok": true, "refreshed": refreshed, "failed": failed})

	case CommandReread:
		if err := s.engine.Reread(c.Request.Context()); err != nil {
			s.adminError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "size": s.engine.Registry().Len()})

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown command " + req.Command + ", supported: " + supportedCommands,
		})
	}
}

func (s *Server) adminError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, registry.ErrNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
