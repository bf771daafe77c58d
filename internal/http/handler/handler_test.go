package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/headerauth"
	"github.com/smallbiznis/rewardguard/internal/http/handler"
	"github.com/smallbiznis/rewardguard/internal/pipeline"
	"github.com/smallbiznis/rewardguard/internal/service"
)

type fakeEnroller struct {
	deviceID string
	resp     *service.EnrollmentResponse
	err      error
}

func (f *fakeEnroller) Enroll(_ context.Context, deviceID string) (*service.EnrollmentResponse, error) {
	f.deviceID = deviceID
	return f.resp, f.err
}

type fakeAccounts struct {
	err error
}

func (f *fakeAccounts) Balance(_ context.Context, id int64) (service.BalanceResponse, error) {
	return service.BalanceResponse{AccountID: id, Points: 120}, f.err
}

func (f *fakeAccounts) Profile(_ context.Context, id int64) (service.ProfileResponse, error) {
	return service.ProfileResponse{ID: id, DeviceID: "D1"}, f.err
}

func (f *fakeAccounts) IssueXReq(context.Context, int64) (service.XReqResponse, error) {
	return service.XReqResponse{XReq: "fresh"}, f.err
}

type fakeRunner struct {
	req  pipeline.Request
	call pipeline.Call
	rej  *pipeline.Rejection
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request, h pipeline.Handler) (pipeline.Result, *pipeline.Rejection) {
	f.req = req
	if f.rej != nil {
		return pipeline.Result{}, f.rej
	}
	f.call = pipeline.Call{AccountID: 42, Payload: req.Body}
	data, err := h(ctx, f.call)
	if err != nil {
		return pipeline.Result{}, pipeline.AsRejection(err)
	}
	return pipeline.Result{
		Body:      pipeline.SuccessBody{Status: "success", Data: data},
		NextToken: &domain.RotatingToken{Value: "next-token"},
	}, nil
}

func newHandler(enroller *fakeEnroller, accounts *fakeAccounts, runner *fakeRunner) *handler.Handler {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{ServiceName: "rewardguard", XReqTTL: 90 * time.Second}
	return handler.NewHandler(enroller, accounts, service.NewConfigService(cfg), runner, zap.NewNop())
}

func serve(fn gin.HandlerFunc, method, body string, header http.Header) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, "/", fn)
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelopeBody struct {
	Status    string          `json:"status"`
	Encrypted bool            `json:"encrypted"`
	Code      string          `json:"code"`
	Data      json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDeviceLoginPlain(t *testing.T) {
	enroller := &fakeEnroller{resp: &service.EnrollmentResponse{Token: "session", XReq: "first"}}
	h := newHandler(enroller, &fakeAccounts{}, &fakeRunner{})

	w := serve(h.DeviceLogin, http.MethodPost, `{"device_id":"D1"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "D1", enroller.deviceID)

	body := decode(t, w)
	require.Equal(t, "success", body.Status)
	require.False(t, body.Encrypted)
	require.Contains(t, string(body.Data), `"xreq":"first"`)
}

func TestDeviceLoginEncrypted(t *testing.T) {
	enroller := &fakeEnroller{resp: &service.EnrollmentResponse{Token: "session", XReq: "first"}}
	h := newHandler(enroller, &fakeAccounts{}, &fakeRunner{})

	env, err := ciphergate.SealJSON(map[string]string{"device_id": "D2"}, "client-key")
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	w := serve(h.DeviceLogin, http.MethodPost, string(raw), http.Header{headerauth.HeaderKeyMaterial: {"client-key"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "D2", enroller.deviceID)

	body := decode(t, w)
	require.True(t, body.Encrypted)
	var sealed string
	require.NoError(t, json.Unmarshal(body.Data, &sealed))
	plain, err := ciphergate.Decrypt(sealed, "client-key")
	require.NoError(t, err)
	require.Contains(t, string(plain), `"token":"session"`)
}

func TestDeviceLoginRejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		err    error
		status int
		code   string
	}{
		{name: "invalid json", body: `{`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "empty body", body: ``, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "missing device", body: `{}`, err: service.ErrInvalidDeviceID, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{
			name:   "undecryptable",
			body:   `{"encrypted":true,"data":"not-base64!"}`,
			header: http.Header{headerauth.HeaderKeyMaterial: {"client-key"}},
			status: http.StatusBadRequest,
			code:   "DECRYPTION_FAILED",
		},
		{name: "storage failure", body: `{"device_id":"D1"}`, err: errors.New("db down"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeEnroller{err: tt.err}, &fakeAccounts{}, &fakeRunner{})
			w := serve(h.DeviceLogin, http.MethodPost, tt.body, tt.header)
			require.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			require.Equal(t, "error", body.Status)
			require.Equal(t, tt.code, body.Code)
		})
	}
}

func TestProtectedWritesNextToken(t *testing.T) {
	runner := &fakeRunner{}
	h := newHandler(&fakeEnroller{}, &fakeAccounts{}, runner)

	w := serve(h.Protected("echo", h.Echo), http.MethodPost, `{"n":1}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "next-token", w.Header().Get(headerauth.HeaderNextToken))
	require.Equal(t, "echo", runner.req.RouteID)
	require.Equal(t, `{"n":1}`, string(runner.req.Body))
	require.JSONEq(t, `{"status":"success","data":{"account_id":42,"encrypted":false,"payload":{"n":1}}}`, w.Body.String())
}

func TestProtectedRejection(t *testing.T) {
	runner := &fakeRunner{rej: pipeline.Reject(pipeline.KindReplay, "Request token already used")}
	h := newHandler(&fakeEnroller{}, &fakeAccounts{}, runner)

	w := serve(h.Protected("balance", h.Balance), http.MethodGet, "", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, w.Header().Get(headerauth.HeaderNextToken))
	require.JSONEq(t, `{"status":"error","code":"XREQ_REPLAY_DETECTED","message":"Request token already used"}`, w.Body.String())
}

func TestProtectedAccountMissing(t *testing.T) {
	h := newHandler(&fakeEnroller{}, &fakeAccounts{err: service.ErrAccountNotFound}, &fakeRunner{})

	w := serve(h.Protected("profile", h.Profile), http.MethodGet, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "UNAUTHENTICATED", decode(t, w).Code)
}

func TestEchoRejectsNonJSON(t *testing.T) {
	h := newHandler(&fakeEnroller{}, &fakeAccounts{}, &fakeRunner{})

	_, err := h.Echo(context.Background(), pipeline.Call{AccountID: 1, Payload: []byte("plain text")})
	rej := pipeline.AsRejection(err)
	require.Equal(t, pipeline.KindBadRequest, rej.Kind)
}

func TestIssueXReqRequiresSession(t *testing.T) {
	h := newHandler(&fakeEnroller{}, &fakeAccounts{}, &fakeRunner{})

	w := serve(h.IssueXReq, http.MethodPost, "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClientConfigAndHealth(t *testing.T) {
	h := newHandler(&fakeEnroller{}, &fakeAccounts{}, &fakeRunner{})

	w := serve(h.ClientConfig, http.MethodGet, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"X-Req-Next"`)

	w = serve(h.Health, http.MethodGet, "", nil)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
