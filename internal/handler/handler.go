package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"pointsystem/internal/model"
	"pointsystem/internal/service"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the point API on top of PointService.
type Handler struct {
	pointService *service.PointService
	log          *zap.Logger
}

// NewHandler creates the point API handler.
func NewHandler(pointService *service.PointService, log *zap.Logger) *Handler {
	return &Handler{pointService: pointService, log: log}
}

// ============================================================
// Request and response views
// ============================================================

// PointRequest is the body of charge and use.
// Zero and negative amounts are rejected by the service, not by binding.
type PointRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
}

// UserPoint is the account view: {id, point, updateMillis}.
type UserPoint struct {
	ID           int64 `json:"id"`
	Point        int64 `json:"point"`
	UpdateMillis int64 `json:"updateMillis"`
}

// PointHistory is the history view: {id, userId, amount, type, timeMillis}.
type PointHistory struct {
	ID            int64                 `json:"id"`
	UserID        int64                 `json:"userId"`
	Amount        int64                 `json:"amount"`
	Type          model.TransactionType `json:"type"`
	TimeMillis    int64                 `json:"timeMillis"`
	TransactionNo string                `json:"transactionNo"`
	BalanceAfter  int64                 `json:"balanceAfter"`
}

func toUserPoint(a *model.Account) UserPoint {
	return UserPoint{ID: a.UserID, Point: a.Balance, UpdateMillis: a.UpdateMillis()}
}

func toPointHistory(t *model.PointTransaction) PointHistory {
	return PointHistory{
		ID:            t.ID,
		UserID:        t.UserID,
		Amount:        t.Amount,
		Type:          t.Type,
		TimeMillis:    t.TimeMillis(),
		TransactionNo: t.TransactionNo,
		BalanceAfter:  t.BalanceAfter,
	}
}

// userID parses the :id path parameter as a non-negative int64.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		response.ParamError(c, "invalid user id: "+c.Param("id"))
		return 0, false
	}
	return id, true
}

// ============================================================
// Query endpoints
// ============================================================

// GetPoint returns the user's balance.
// GET /point/:id
func (h *Handler) GetPoint(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	account, err := h.pointService.GetPoint(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toUserPoint(account))
}

// GetHistories returns the user's history, oldest first.
// GET /point/:id/histories
func (h *Handler) GetHistories(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	histories, err := h.pointService.GetHistories(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]PointHistory, 0, len(histories))
	for _, t := range histories {
		out = append(out, toPointHistory(t))
	}
	response.Success(c, out)
}

// ============================================================
// Balance endpoints
// ============================================================

// Charge adds points.
// PATCH /point/:id/charge
func (h *Handler) Charge(c *gin.Context) {
	h.mutate(c, h.pointService.Charge)
}

// Use spends points.
// PATCH /point/:id/use
func (h *Handler) Use(c *gin.Context) {
	h.mutate(c, h.pointService.Use)
}

// mutation is Charge or Use.
type mutation func(ctx context.Context, userID, amount int64) (*model.PointTransaction, error)

func (h *Handler) mutate(c *gin.Context, apply mutation) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request body: "+err.Error())
		return
	}

	trans, err := apply(c.Request.Context(), id, *req.Amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, toPointHistory(trans))
}

// Open provisions an account with zero points.
// POST /point/:id
func (h *Handler) Open(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	account, err := h.pointService.Open(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toUserPoint(account))
}

// Usable reports whether the current balance covers amount.
// GET /point/:id/usable?amount=n
func (h *Handler) Usable(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid amount: "+c.Query("amount"))
		return
	}

	usable, err := h.pointService.CanUse(c.Request.Context(), id, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"usable": usable})
}

// ============================================================
// Error mapping
// ============================================================

// fail writes the envelope for err: domain errors become 4xx with a business
// code, anything else is logged and becomes 500.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, http.StatusBadRequest, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrAccountNotFound):
		response.BusinessError(c, http.StatusNotFound, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrAccountExists):
		response.BusinessError(c, http.StatusConflict, response.CodeAccountExists, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, http.StatusBadRequest, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrBalanceLimitExceeded):
		response.BusinessError(c, http.StatusBadRequest, response.CodeBalanceLimitExceeded, err.Error())
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.ServerError(c, "internal server error")
	}
}
