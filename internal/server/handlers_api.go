package server

import (
	"encoding/json"
	"net/http"

	"traitors-table/internal/media/vivox"

	"github.com/gin-gonic/gin"
)

type statePathRequest struct {
	Path string `uri:"path" binding:"storepath"`
}

type mediaTokenRequest struct {
	Seat    int    `json:"seat" binding:"required,min=1,max=25"`
	Action  string `json:"action" binding:"required,oneof=login join"`
	Channel string `json:"channel" binding:"omitempty,channel"`
}

var statePathMessages = bindMessages{
	"Path": {"storepath": "invalid state path"},
}

var mediaTokenMessages = bindMessages{
	"Seat":    {"required": "seat is required", "min": "seat must be between 1 and 25", "max": "seat must be between 1 and 25"},
	"Action":  {"required": "action is required", "oneof": "action must be login or join"},
	"Channel": {"channel": "channel contains unsupported characters"},
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"revision": s.store.Revision(),
		"clients":  s.hub.count(),
		"journal":  s.db != nil,
	})
}

func (s *Server) handleStateGet(c *gin.Context) {
	var req statePathRequest
	if !bindURI(c, &req, statePathMessages, "") {
		return
	}
	snap, err := s.store.Read(c.Request.Context(), req.Path)
	if err != nil {
		writeError(c, storeErrorStatus(err), err.Error())
		return
	}
	if !snap.Exists() {
		writeError(c, http.StatusNotFound, "not found")
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleStatePut(c *gin.Context) {
	var req statePathRequest
	if !bindURI(c, &req, statePathMessages, "") {
		return
	}
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		writeError(c, http.StatusBadRequest, "body must be a JSON value")
		return
	}
	s.writeAndRespond(c, req.Path, func() error {
		return s.store.Write(c.Request.Context(), req.Path, json.RawMessage(body))
	})
}

func (s *Server) handleStatePatch(c *gin.Context) {
	var req statePathRequest
	if !bindURI(c, &req, statePathMessages, "") {
		return
	}
	var fields map[string]json.RawMessage
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		writeError(c, http.StatusBadRequest, "body must be a non-empty JSON object")
		return
	}
	update := make(map[string]any, len(fields))
	for key, value := range fields {
		update[key] = value
	}
	s.writeAndRespond(c, req.Path, func() error {
		return s.store.Update(c.Request.Context(), req.Path, update)
	})
}

func (s *Server) handleStateDelete(c *gin.Context) {
	var req statePathRequest
	if !bindURI(c, &req, statePathMessages, "") {
		return
	}
	if err := s.store.Write(c.Request.Context(), req.Path, nil); err != nil {
		writeError(c, storeErrorStatus(err), err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) writeAndRespond(c *gin.Context, path string, write func() error) {
	if err := write(); err != nil {
		writeError(c, storeErrorStatus(err), err.Error())
		return
	}
	snap, err := s.store.Read(c.Request.Context(), path)
	if err != nil {
		writeError(c, storeErrorStatus(err), err.Error())
		return
	}
	s.log.Info().Str("path", snap.Path).Int64("version", snap.Version).Msg("state written over http")
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleMediaToken(c *gin.Context) {
	var req mediaTokenRequest
	if !bindJSON(c, &req, mediaTokenMessages, "invalid token request") {
		return
	}
	if !s.tokens.Configured() {
		writeError(c, http.StatusServiceUnavailable, "media tokens are not configured")
		return
	}
	channel := req.Channel
	if req.Action == vivox.ActionJoin && channel == "" {
		channel = s.cfg.MediaChannel
	}
	user := vivox.SeatUser(req.Seat)
	token, err := s.tokens.Token(user, req.Action, channel)
	if err != nil {
		s.log.Error().Err(err).Int("seat", req.Seat).Msg("media token failed")
		writeError(c, http.StatusInternalServerError, "failed to issue token")
		return
	}
	resp := gin.H{
		"token":    token,
		"user":     user,
		"user_uri": s.tokens.UserURI(user),
	}
	if req.Action == vivox.ActionJoin {
		resp["channel_uri"] = s.tokens.ChannelURI(channel)
	}
	c.JSON(http.StatusOK, resp)
}

