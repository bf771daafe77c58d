// Package pipeline runs the per-request authentication pass for protected
// routes: header checks, session auth, integrity hash, single-use token
// claim and payload decryption, then the downstream handler.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/headerauth"
	"github.com/smallbiznis/rewardguard/internal/jwt"
	"github.com/smallbiznis/rewardguard/internal/seedvault"
	"github.com/smallbiznis/rewardguard/internal/telemetry"
)

// SessionValidator authenticates the bearer session token.
type SessionValidator interface {
	ValidateSessionToken(token string) (jwt.Session, error)
}

// TokenGuard claims and mints rotating tokens.
type TokenGuard interface {
	Claim(ctx context.Context, accountID int64, token string) (domain.ClaimOutcome, error)
	Issue(ctx context.Context, accountID int64) (domain.RotatingToken, error)
}

// KeySource derives key material from the account's master secret.
type KeySource interface {
	RequestKey(ctx context.Context, accountID int64, window string) (string, error)
}

// Recorder receives advisory security telemetry.
type Recorder interface {
	Metric(m domain.SecurityMetric)
	Violation(v domain.SecurityViolation)
}

// Request is the transport-neutral view of an inbound call.
type Request struct {
	RouteID string
	Method  string
	URL     *url.URL
	Header  http.Header
	Body    []byte
}

// Call is what a downstream handler receives once the request is accepted.
type Call struct {
	AccountID int64
	DeviceID  string
	Headers   headerauth.SecurityHeaders
	// Payload is the decrypted (or plain) request body.
	Payload   []byte
	Encrypted bool
}

// Handler is a downstream business handler.
type Handler func(ctx context.Context, call Call) (any, error)

// Result is an accepted request's response.
type Result struct {
	Body      SuccessBody
	NextToken *domain.RotatingToken
}

// Pipeline wires the validators together.
type Pipeline struct {
	sessions    SessionValidator
	guard       TokenGuard
	keys        KeySource
	recorder    Recorder
	enforceHash bool
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New constructs a Pipeline.
func New(sessions SessionValidator, guard TokenGuard, keys KeySource, recorder Recorder, cfg config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.L()
	}
	return &Pipeline{
		sessions:    sessions,
		guard:       guard,
		keys:        keys,
		recorder:    recorder,
		enforceHash: cfg.EnforceRequestHash,
		logger:      logger.Named("pipeline"),
		tracer:      telemetry.Tracer("pipeline"),
	}
}

// BearerToken extracts the bearer credential from an Authorization header.
func BearerToken(header http.Header) string {
	value := strings.TrimSpace(header.Get("Authorization"))
	if len(value) < 7 || !strings.EqualFold(value[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[7:])
}

// Authenticate validates only the session token.
func (p *Pipeline) Authenticate(header http.Header) (jwt.Session, *Rejection) {
	token := BearerToken(header)
	if token == "" {
		return jwt.Session{}, Reject(KindUnauthenticated, "Authentication required")
	}
	session, err := p.sessions.ValidateSessionToken(token)
	if err != nil {
		return jwt.Session{}, Reject(KindUnauthenticated, "Invalid or expired session")
	}
	return session, nil
}

// Run authenticates req and invokes h. Any failure short-circuits with a
// Rejection; once a token is claimed the claim stays committed.
func (p *Pipeline) Run(ctx context.Context, req Request, h Handler) (Result, *Rejection) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run", trace.WithAttributes(
		attribute.String("route.id", req.RouteID),
	))
	defer span.End()

	result, rej := p.run(ctx, span, req, h)
	if rej != nil {
		span.SetStatus(codes.Error, rej.Code)
		span.SetAttributes(attribute.String("rejection.code", rej.Code))
	}
	return result, rej
}

func (p *Pipeline) run(ctx context.Context, span trace.Span, req Request, h Handler) (Result, *Rejection) {
	headers, err := headerauth.Parse(req.Header)
	if err != nil {
		var missing *headerauth.MissingHeaderError
		if errors.As(err, &missing) {
			return Result{}, p.reject(req, 0, Reject(KindMissingHeader, "Missing security header: "+missing.Name))
		}
		return Result{}, p.reject(req, 0, Reject(KindInvalidFormat, err.Error()))
	}

	session, rej := p.Authenticate(req.Header)
	if rej != nil {
		return Result{}, p.reject(req, 0, rej)
	}
	accountID := session.AccountID
	span.SetAttributes(attribute.Int64("account.id", accountID))

	if !headerauth.VerifyDigest(headers.RequestHash, req.Method, req.URL, headers.Window, accountID, req.Body) {
		mismatch := Reject(KindHashMismatch, "Request integrity check failed")
		if p.enforceHash {
			return Result{}, p.reject(req, accountID, mismatch)
		}
		p.violation(req, accountID, mismatch)
	}

	outcome, err := p.guard.Claim(ctx, accountID, headers.Token)
	if err != nil {
		p.logger.Error("token claim failed", zap.Error(err), zap.Int64("account_id", accountID), zap.String("route", req.RouteID))
		return Result{}, p.reject(req, accountID, Internal())
	}
	if rej := claimRejection(outcome); rej != nil {
		return Result{}, p.reject(req, accountID, rej)
	}

	body := ciphergate.ParseBody(req.Body)
	keyMaterial := headers.KeyMaterial
	if body.Shape == ciphergate.ShapeEncrypted && keyMaterial == "" {
		keyMaterial, err = p.keys.RequestKey(ctx, accountID, headers.Window)
		if err != nil && !errors.Is(err, seedvault.ErrNoSecret) && !errors.Is(err, seedvault.ErrSealed) {
			p.logger.Error("load request key failed", zap.Error(err), zap.Int64("account_id", accountID))
			return Result{}, p.reject(req, accountID, Internal())
		}
	}
	payload, err := body.Open(keyMaterial)
	if err != nil {
		p.logger.Info("request decryption failed",
			zap.Int64("account_id", accountID),
			zap.String("route", req.RouteID),
			zap.String("reason", ciphergate.ReasonOf(err).String()),
		)
		return Result{}, p.reject(req, accountID, Reject(KindDecryption, "Unable to decrypt request"))
	}

	data, err := h(ctx, Call{
		AccountID: accountID,
		DeviceID:  session.DeviceID,
		Headers:   headers,
		Payload:   payload,
		Encrypted: body.Shape == ciphergate.ShapeEncrypted,
	})
	if err != nil {
		rej := AsRejection(err)
		if rej.Kind == KindInternal {
			p.logger.Error("handler failed", zap.Error(err), zap.Int64("account_id", accountID), zap.String("route", req.RouteID))
		}
		return Result{}, p.reject(req, accountID, rej)
	}

	result := Result{Body: SuccessBody{Status: "success", Data: data}}
	if keyMaterial != "" && body.Shape == ciphergate.ShapeEncrypted {
		envelope, err := ciphergate.SealJSON(data, keyMaterial)
		if err != nil {
			p.logger.Error("response encryption failed", zap.Error(err), zap.Int64("account_id", accountID))
			return Result{}, p.reject(req, accountID, Internal())
		}
		result.Body = SuccessBody{Status: "success", Encrypted: true, Data: envelope.Data}
	}

	next, err := p.guard.Issue(ctx, accountID)
	if err != nil {
		// The client can recover through the session-only issuance route.
		p.logger.Warn("issue next token failed", zap.Error(err), zap.Int64("account_id", accountID))
	} else {
		result.NextToken = &next
	}

	p.recorder.Metric(domain.SecurityMetric{
		AccountID:    accountID,
		Route:        req.RouteID,
		HeadersCount: headers.Count(),
		Encrypted:    body.Shape == ciphergate.ShapeEncrypted,
	})
	return result, nil
}

func claimRejection(outcome domain.ClaimOutcome) *Rejection {
	switch outcome {
	case domain.ClaimAccepted:
		return nil
	case domain.ClaimMalformed:
		return Reject(KindMalformedToken, "Malformed request token")
	case domain.ClaimReplay:
		return Reject(KindReplay, "Request token already used")
	case domain.ClaimExpired:
		return Reject(KindExpired, "Request token expired")
	default:
		return Reject(KindUnknownToken, "Invalid request token")
	}
}

func (p *Pipeline) reject(req Request, accountID int64, rej *Rejection) *Rejection {
	p.violation(req, accountID, rej)
	return rej
}

func (p *Pipeline) violation(req Request, accountID int64, rej *Rejection) {
	p.logger.Info("security violation",
		zap.Int64("account_id", accountID),
		zap.String("route", req.RouteID),
		zap.String("kind", rej.Kind.String()),
		zap.String("code", rej.Code),
	)
	p.recorder.Violation(domain.SecurityViolation{
		AccountID:     accountID,
		Route:         req.RouteID,
		ViolationType: rej.Code,
		Message:       rej.Message,
	})
}
