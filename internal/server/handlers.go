package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/steveyegge/fintrack/internal/model"
)

type createdResponse struct {
	ID int64 `json:"id"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		s.logger.Printf("WARNING: health check: database unreachable: %v", err)
		c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Version: s.cfg.Version})
		return
	}
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	var p model.TransactionPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := p.Decode()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.repo.CreateTransaction(c.Request.Context(), currentUser(c), tx)
	if err != nil {
		s.logger.Printf("ERROR: create transaction: %v", err)
		fail(c, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	ok(c, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleListTransactions(c *gin.Context) {
	txs, err := s.repo.ListTransactions(c.Request.Context(), currentUser(c))
	if err != nil {
		s.logger.Printf("ERROR: list transactions: %v", err)
		fail(c, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	ok(c, http.StatusOK, txs)
}

func (s *Server) handleDeleteTransaction(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	err := s.repo.DeleteTransaction(c.Request.Context(), currentUser(c), id)
	s.finishDelete(c, "transaction", err)
}

func (s *Server) handleCreateGoal(c *gin.Context) {
	var p model.GoalPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	g, err := p.Decode()
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.repo.CreateGoal(c.Request.Context(), currentUser(c), g)
	if errors.Is(err, ErrDuplicate) {
		fail(c, http.StatusConflict, "a goal already exists for "+g.Period())
		return
	}
	if err != nil {
		s.logger.Printf("ERROR: create goal: %v", err)
		fail(c, http.StatusInternalServerError, "failed to create goal")
		return
	}

	ok(c, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleListGoals(c *gin.Context) {
	goals, err := s.repo.ListGoals(c.Request.Context(), currentUser(c))
	if err != nil {
		s.logger.Printf("ERROR: list goals: %v", err)
		fail(c, http.StatusInternalServerError, "failed to list goals")
		return
	}
	ok(c, http.StatusOK, goals)
}

func (s *Server) handleDeleteGoal(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	err := s.repo.DeleteGoal(c.Request.Context(), currentUser(c), id)
	s.finishDelete(c, "goal", err)
}

func (s *Server) finishDelete(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		fail(c, http.StatusNotFound, what+" not found")
	case err != nil:
		s.logger.Printf("ERROR: delete %s: %v", what, err)
		fail(c, http.StatusInternalServerError, "failed to delete "+what)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
