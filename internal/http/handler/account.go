package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/http/middleware"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
)

// Balance returns the caller's points balance.
func (h *Handler) Balance(ctx context.Context, call pipeline.Call) (any, error) {
	resp, err := h.Accounts.Balance(ctx, call.AccountID)
	if err != nil {
		return nil, accountError(err)
	}
	return resp, nil
}

// Profile returns the caller's profile.
func (h *Handler) Profile(ctx context.Context, call pipeline.Call) (any, error) {
	resp, err := h.Accounts.Profile(ctx, call.AccountID)
	if err != nil {
		return nil, accountError(err)
	}
	return resp, nil
}

type echoResponse struct {
	AccountID int64           `json:"account_id"`
	Encrypted bool            `json:"encrypted"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Echo returns the decrypted payload. It stands in for downstream handlers
// that consume protected request bodies.
func (h *Handler) Echo(_ context.Context, call pipeline.Call) (any, error) {
	if len(call.Payload) > 0 && !json.Valid(call.Payload) {
		return nil, pipeline.BadRequest("Payload must be JSON")
	}
	return echoResponse{
		AccountID: call.AccountID,
		Encrypted: call.Encrypted,
		Payload:   json.RawMessage(call.Payload),
	}, nil
}

// IssueXReq mints a fresh rotating token for a session-authenticated client.
func (h *Handler) IssueXReq(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		respondRejection(c, pipeline.Reject(pipeline.KindUnauthenticated, "Authentication required"))
		return
	}
	resp, err := h.Accounts.IssueXReq(c.Request.Context(), session.AccountID)
	if err != nil {
		h.Logger.Error("issue request token failed", zap.Error(err), zap.Int64("account_id", session.AccountID))
		respondRejection(c, pipeline.Internal())
		return
	}
	c.JSON(http.StatusOK, pipeline.SuccessBody{Status: "success", Data: resp})
}
