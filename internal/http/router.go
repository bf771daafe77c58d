package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/rewardguard/internal/http/middleware"
	"github.com/smallbiznis/rewardguard/internal/middleware"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
)

// NewRouter wires Gin routes and middleware from the capability table.
func NewRouter(cfg config.Config, h *handler.Handler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg))

	public := map[string]gin.HandlerFunc{
		RouteDeviceLogin: h.DeviceLogin,
		RouteConfig:      h.ClientConfig,
		RouteHealth:      h.Health,
	}
	session := map[string]gin.HandlerFunc{
		RouteXReqIssue: h.IssueXReq,
	}
	protected := map[string]pipeline.Handler{
		RouteBalance: h.Balance,
		RouteProfile: h.Profile,
		RouteEcho:    h.Echo,
	}

	for _, route := range Routes {
		chain := []gin.HandlerFunc{httpmiddleware.Route(route.ID)}
		if route.RateLimited && rateLimiter != nil {
			chain = append(chain, rateLimiter.Limit(route.ID))
		}

		switch route.Capability {
		case Public:
			fn, ok := public[route.ID]
			if !ok {
				panic(fmt.Sprintf("http: no handler bound for public route %q", route.ID))
			}
			chain = append(chain, fn)
		case Session:
			fn, ok := session[route.ID]
			if !ok {
				panic(fmt.Sprintf("http: no handler bound for session route %q", route.ID))
			}
			chain = append(chain, authMiddleware.ValidateSession, fn)
		case Protected:
			fn, ok := protected[route.ID]
			if !ok {
				panic(fmt.Sprintf("http: no handler bound for protected route %q", route.ID))
			}
			chain = append(chain, h.Protected(route.ID, fn))
		default:
			panic(fmt.Sprintf("http: route %q has unknown capability %s", route.ID, route.Capability))
		}

		r.Handle(route.Method, route.Path, chain...)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, pipeline.ErrorBody{Status: "error", Code: "NOT_FOUND", Message: "Route not found"})
	})

	return r
}
