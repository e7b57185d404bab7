package http

import (
	"anchor/internal/api/http/handlers"
	"anchor/internal/api/http/mw"
	"anchor/internal/batch"
	"anchor/internal/batchstore"
	"anchor/internal/domain"
	"anchor/internal/intents"
	"anchor/internal/metrics"
	"anchor/internal/netting"
	"anchor/internal/prices"
	"anchor/internal/security"
	"anchor/internal/service"
	"anchor/internal/testutil"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Test Helpers ==========

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// scopeVerifier accepts "Bearer <subject>[:scope]"
type scopeVerifier struct{}

func (scopeVerifier) VerifyBearer(h string) (*security.Claims, error) {
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || tok == "" {
		return nil, security.ErrNoBearerToken
	}
	sub, scope, _ := strings.Cut(tok, ":")
	return &security.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}, Scope: scope}, nil
}

func newRouter(t *testing.T, withJWT bool) http.Handler {
	t.Helper()

	log := testutil.NewLogger()
	store := intents.NewMemoryStore(log)
	repo := batchstore.NewMemoryRepository()
	p, err := prices.NewStaticProvider(nil)
	require.NoError(t, err)

	orch, err := batch.NewOrchestrator(log, batch.Deps{
		Store:  store,
		Netter: netting.NewEngine(log, netting.DefaultDustEpsilon),
		Prices: p,
		Repo:   repo,
	})
	require.NoError(t, err)

	m := metrics.New()
	svc, err := service.NewBatcherService(log, service.Deps{Store: store, Processor: orch, Repo: repo, Metrics: m})
	require.NoError(t, err)

	h, err := handlers.NewHandler(log, svc)
	require.NoError(t, err)

	mws := Middlewares{Logging: mw.NewLogging(log), Gzip: mw.NewGzip(0, log)}
	if withJWT {
		mws.JWT, err = mw.NewJWTMiddleware(scopeVerifier{})
		require.NoError(t, err)
	}
	return BuildRouter(h, m.Handler(), mws)
}

func do(t *testing.T, h http.Handler, method, path, auth string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func intentBody(fromToken, toToken, fromChain, toChain string, amount any) map[string]any {
	return map[string]any{
		"userAddress": "0xuser",
		"fromToken":   fromToken,
		"toToken":     toToken,
		"fromChain":   fromChain,
		"toChain":     toChain,
		"amount":      amount,
	}
}

func submit(t *testing.T, h http.Handler, body map[string]any) string {
	t.Helper()

	code, env := do(t, h, http.MethodPost, "/api/intents", "", body)
	require.Equal(t, http.StatusCreated, code, env.Error.Message)

	var out struct {
		IntentID string `json:"intentId"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "pending", out.Status)
	return out.IntentID
}

// ========== Tests ==========

func TestRouter_TechEndpoints(t *testing.T) {
	h := newRouter(t, false)

	code, env := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Status)

	code, _ = do(t, h, http.MethodGet, "/readiness", "", nil)
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anchor_batches_total")
}

func TestRouter_IntentLifecycle(t *testing.T) {
	h := newRouter(t, false)

	a := submit(t, h, intentBody("USDC", "USDT", "chain1", "chain2", "1000"))
	b := submit(t, h, intentBody("USDT", "USDC", "chain2", "chain1", 400))

	code, env := do(t, h, http.MethodGet, "/api/intents/"+a, "", nil)
	require.Equal(t, http.StatusOK, code)
	var got domain.SwapIntent
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "0xuser", got.Recipient)

	code, env = do(t, h, http.MethodGet, "/api/queue/stats", "", nil)
	require.Equal(t, http.StatusOK, code)
	var st domain.QueueStats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 2, st.Pending)

	// process
	code, env = do(t, h, http.MethodPost, "/api/batches/process", "", nil)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	var processed struct {
		Processed bool                `json:"processed"`
		BatchID   string              `json:"batchId"`
		Summary   domain.BatchSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &processed))
	require.True(t, processed.Processed)
	assert.Equal(t, 2, processed.Summary.TotalIntents)
	assert.Equal(t, 3, processed.Summary.TotalSwaps)
	batchID := processed.BatchID

	// summary + latest
	code, env = do(t, h, http.MethodGet, "/api/batches/"+batchID+"/summary", "", nil)
	require.Equal(t, http.StatusOK, code)
	var sum domain.BatchSummary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, processed.Summary.MerkleRoot, sum.MerkleRoot)

	code, env = do(t, h, http.MethodGet, "/api/batches/latest", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, batchID, sum.BatchID)

	// proofs
	code, env = do(t, h, http.MethodGet, "/api/batches/"+batchID+"/proofs", "", nil)
	require.Equal(t, http.StatusOK, code)
	var proofs map[string][]domain.MerkleProof
	require.NoError(t, json.Unmarshal(env.Data, &proofs))
	assert.Len(t, proofs[a], 2)
	assert.Len(t, proofs[b], 1)

	code, env = do(t, h, http.MethodGet, "/api/batches/"+batchID+"/proofs?intentId="+b, "", nil)
	require.Equal(t, http.StatusOK, code)
	var one []domain.MerkleProof
	require.NoError(t, json.Unmarshal(env.Data, &one))
	require.Len(t, one, 1)

	code, _ = do(t, h, http.MethodGet, "/api/batches/"+batchID+"/proofs?intentId=intent-nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// verify
	code, env = do(t, h, http.MethodPost, "/api/proofs/verify", "", map[string]any{"proof": one[0], "root": sum.MerkleRoot})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"valid":true}`, string(env.Data))

	code, env = do(t, h, http.MethodPost, "/api/proofs/verify", "", map[string]any{"proof": one[0], "root": "0x1234"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"valid":false}`, string(env.Data))

	// settle
	code, env = do(t, h, http.MethodPost, "/api/batches/"+batchID+"/settled", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"batchId":"`+batchID+`","settled":2}`, string(env.Data))

	code, env = do(t, h, http.MethodGet, "/api/intents?status=settled", "", nil)
	require.Equal(t, http.StatusOK, code)
	var settled []domain.SwapIntent
	require.NoError(t, json.Unmarshal(env.Data, &settled))
	assert.Len(t, settled, 2)
}

func TestRouter_Errors(t *testing.T) {
	h := newRouter(t, false)

	code, env := do(t, h, http.MethodPost, "/api/intents", "", intentBody("USDC", "USDT", "chain1", "chain2", "0"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_intent", env.Error.Code)

	code, env = do(t, h, http.MethodPost, "/api/intents", "", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)

	code, _ = do(t, h, http.MethodGet, "/api/intents?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, h, http.MethodGet, "/api/intents/intent-missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)

	for _, path := range []string{"/api/batches/batch-missing/summary", "/api/batches/batch-missing/proofs", "/api/batches/latest"} {
		code, _ = do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, code, path)
	}

	code, _ = do(t, h, http.MethodPost, "/api/batches/batch-missing/settled", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	// empty queue is a no-op, not an error
	code, env = do(t, h, http.MethodPost, "/api/batches/process", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"processed":false,"reason":"no pending intents"}`, string(env.Data))

	code, _ = do(t, h, http.MethodPost, "/api/proofs/verify", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_JWTAndScopes(t *testing.T) {
	h := newRouter(t, true)

	code, _ := do(t, h, http.MethodGet, "/api/queue/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, h, http.MethodGet, "/api/queue/stats", "Bearer alice", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, h, http.MethodPost, "/api/batches/process", "Bearer alice", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, h, http.MethodPost, "/api/batches/process", "Bearer ops:"+security.ScopeBatchWrite, nil)
	assert.Equal(t, http.StatusOK, code)

	// tech endpoints stay open
	code, _ = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
}
