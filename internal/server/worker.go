package server

import (
	"context"
	"errors"
	"net/http"

	"worktracker/internal/activity"
	"worktracker/internal/view"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
}

type selectRequest struct {
	ID int64 `json:"id" binding:"required"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type answerRequest struct {
	Keep bool `json:"keep"`
}

type activityRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// respond 手势执行后返回最新界面
func (s *Server) respond(c *gin.Context, err error) {
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.screen.Current())
}

func (s *Server) gesture(fn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, fn(c.Request.Context()))
	}
}

func (s *Server) handleGetView(c *gin.Context) {
	c.JSON(http.StatusOK, s.screen.Current())
}

// handleLogin 空用户名由控制器以提示框形式拒绝
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.worker.Login(c.Request.Context(), req.Username))
}

func (s *Server) handleSelectClient(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.worker.SelectClient(c.Request.Context(), req.ID))
}

func (s *Server) handleSelectProject(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.worker.SelectProject(c.Request.Context(), req.ID))
}

func (s *Server) handleEditNotes(c *gin.Context) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.respond(c, s.worker.EditNotes(c.Request.Context(), req.Notes))
}

func (s *Server) handleAnswerPrompt(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.screen.Answer(c.Param("id"), req.Keep); err != nil {
		if errors.Is(err, view.ErrUnknownPrompt) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.screen.Current())
}

func (s *Server) handleDismissAlert(c *gin.Context) {
	s.screen.DismissAlert()
	c.JSON(http.StatusOK, s.screen.Current())
}

// handleActivity 浏览器页面转发的输入手势
func (s *Server) handleActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := activity.ParseInputKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.worker.Input(kind)
	c.Status(http.StatusNoContent)
}
