package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/headerauth"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
	"github.com/smallbiznis/rewardguard/internal/service"
)

type deviceLoginRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceLogin enrolls a device. The body may be plain JSON or an encrypted
// envelope; when key material is supplied the response is encrypted too.
func (h *Handler) DeviceLogin(c *gin.Context) {
	raw, err := readBody(c)
	if err != nil {
		respondRejection(c, pipeline.BadRequest("Unable to read request body"))
		return
	}

	keyMaterial := c.GetHeader(headerauth.HeaderKeyMaterial)
	body := ciphergate.ParseBody(raw)
	payload, err := body.Open(keyMaterial)
	if err != nil {
		h.Logger.Info("device login decryption failed", zap.String("reason", ciphergate.ReasonOf(err).String()))
		respondRejection(c, pipeline.Reject(pipeline.KindDecryption, "Unable to decrypt request"))
		return
	}

	var req deviceLoginRequest
	if err := decodeJSON(payload, &req); err != nil {
		respondRejection(c, pipeline.BadRequest("Invalid payload"))
		return
	}

	resp, err := h.Enrollment.Enroll(c.Request.Context(), req.DeviceID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceID) {
			respondRejection(c, pipeline.BadRequest("Device ID is required"))
			return
		}
		h.Logger.Error("device login failed", zap.Error(err))
		respondRejection(c, pipeline.Internal())
		return
	}

	if keyMaterial == "" {
		respondSuccess(c, resp)
		return
	}
	envelope, err := ciphergate.SealJSON(resp, keyMaterial)
	if err != nil {
		h.Logger.Error("device login encryption failed", zap.Error(err))
		respondRejection(c, pipeline.Internal())
		return
	}
	c.JSON(http.StatusOK, pipeline.SuccessBody{Status: "success", Encrypted: true, Data: envelope.Data})
}
