package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/headerauth"
	"github.com/smallbiznis/rewardguard/internal/http/middleware"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
	"github.com/smallbiznis/rewardguard/internal/service"
)

const maxBodyBytes = 1 << 20

// Enroller performs device login.
type Enroller interface {
	Enroll(ctx context.Context, deviceID string) (*service.EnrollmentResponse, error)
}

// Accounts serves account-scoped data.
type Accounts interface {
	Balance(ctx context.Context, accountID int64) (service.BalanceResponse, error)
	Profile(ctx context.Context, accountID int64) (service.ProfileResponse, error)
	IssueXReq(ctx context.Context, accountID int64) (service.XReqResponse, error)
}

// Runner runs the protected-route pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, h pipeline.Handler) (pipeline.Result, *pipeline.Rejection)
}

// Handler exposes HTTP handlers for every route in the capability table.
type Handler struct {
	Enrollment Enroller
	Accounts   Accounts
	Config     *service.ConfigService
	Pipeline   Runner
	Logger     *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(enrollment Enroller, accounts Accounts, cfg *service.ConfigService, runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.L()
	}
	return &Handler{
		Enrollment: enrollment,
		Accounts:   accounts,
		Config:     cfg,
		Pipeline:   runner,
		Logger:     logger.Named("http"),
	}
}

// Protected adapts a pipeline handler to gin for the given route.
func (h *Handler) Protected(routeID string, next pipeline.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c)
		if err != nil {
			respondRejection(c, pipeline.BadRequest("Unable to read request body"))
			return
		}

		result, rej := h.Pipeline.Run(c.Request.Context(), pipeline.Request{
			RouteID: routeID,
			Method:  c.Request.Method,
			URL:     c.Request.URL,
			Header:  c.Request.Header,
			Body:    body,
		}, func(ctx context.Context, call pipeline.Call) (any, error) {
			middleware.SetAccountID(c, call.AccountID)
			return next(ctx, call)
		})
		if rej != nil {
			respondRejection(c, rej)
			return
		}
		if result.NextToken != nil {
			c.Header(headerauth.HeaderNextToken, result.NextToken.Value)
		}
		c.JSON(http.StatusOK, result.Body)
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
}

func respondRejection(c *gin.Context, rej *pipeline.Rejection) {
	c.AbortWithStatusJSON(rej.Status, rej.Body())
}

func respondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, pipeline.SuccessBody{Status: "success", Data: data})
}

// accountError maps service errors for account-scoped handlers.
func accountError(err error) error {
	if errors.Is(err, service.ErrAccountNotFound) {
		return pipeline.Reject(pipeline.KindUnauthenticated, "Account not found")
	}
	return err
}

func decodeJSON(payload []byte, v any) error {
	if len(payload) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(payload, v)
}
