// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/shearguard/internal/auth"
	"github.com/tomtom215/shearguard/internal/gate"
	"github.com/tomtom215/shearguard/internal/journal"
	"github.com/tomtom215/shearguard/internal/orchestrator"
	"github.com/tomtom215/shearguard/internal/predict"
	"github.com/tomtom215/shearguard/internal/registry"
	"github.com/tomtom215/shearguard/internal/submissions"
	"github.com/tomtom215/shearguard/internal/validation"
)

type fakeLifecycle struct {
	mu          sync.Mutex
	retrainRes  *orchestrator.Result
	retrainErr  error
	rollbackErr error
	infoErr     error
	rolledTo    string
	resets      int
	retrainCtx  context.Context
	ctxErr      error
	hadDeadline bool
}

func (f *fakeLifecycle) Retrain(ctx context.Context) (*orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrainCtx = ctx
	f.ctxErr = ctx.Err()
	_, f.hadDeadline = ctx.Deadline()
	return f.retrainRes, f.retrainErr
}

func (f *fakeLifecycle) Rollback(_ context.Context, version string) (*orchestrator.RollbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rollbackErr != nil {
		return nil, f.rollbackErr
	}
	f.rolledTo = version
	return &orchestrator.RollbackResult{Version: version, PreviousVersion: "v1.1.5"}, nil
}

func (f *fakeLifecycle) ResetToOrigin(_ context.Context) (*orchestrator.ResetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return &orchestrator.ResetResult{ClearedSamples: 4}, nil
}

func (f *fakeLifecycle) CurrentModelInfo(_ context.Context) (*orchestrator.ModelInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &orchestrator.ModelInfo{
		Record:     registry.VersionRecord{Version: "v1.0.0", Status: registry.StatusActive},
		Consistent: true,
	}, nil
}

func (f *fakeLifecycle) ListVersions(_ context.Context) ([]registry.VersionRecord, error) {
	return []registry.VersionRecord{{Version: "v1.0.0", Status: registry.StatusActive}}, nil
}

func (f *fakeLifecycle) State() orchestrator.State { return orchestrator.StateIdle }

type fakePredictor struct{ err error }

func (p fakePredictor) Predict(_ context.Context, in *predict.Input) (*predict.Prediction, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	return &predict.Prediction{ShearStrengthKN: 212.5, Confidence: 0.79, ModelVersion: "v1.0.0", Input: in.Features()}, nil
}

type fakeQueue struct {
	reviewErr error
	reviewer  string
}

func (q *fakeQueue) Submit(_ context.Context, in submissions.NewSubmission) (*submissions.Submission, error) {
	if err := validation.Validate(&in); err != nil {
		return nil, err
	}
	return &submissions.Submission{ID: "sub-1", Researcher: in.Researcher, Sample: in.Sample, Status: submissions.StatusPending}, nil
}

func (q *fakeQueue) List(_ context.Context, status submissions.Status) ([]submissions.Submission, error) {
	return []submissions.Submission{{ID: "sub-1", Status: submissions.StatusPending}}, nil
}

func (q *fakeQueue) Review(_ context.Context, id string, approve bool, reviewer string) (*submissions.Submission, error) {
	if q.reviewErr != nil {
		return nil, q.reviewErr
	}
	q.reviewer = reviewer
	status := submissions.StatusRejected
	if approve {
		status = submissions.StatusApproved
	}
	return &submissions.Submission{ID: id, Status: status, Reviewer: reviewer}, nil
}

type fakeAttempts struct{ limit int }

func (a *fakeAttempts) List(_ context.Context, limit int) ([]journal.Attempt, error) {
	a.limit = limit
	return []journal.Attempt{{ID: "a1", Kind: journal.KindRetrain, Outcome: journal.OutcomePromoted}}, nil
}

type testServer struct {
	handler   http.Handler
	lifecycle *fakeLifecycle
	queue     *fakeQueue
	attempts  *fakeAttempts
}

func newTestServer(t *testing.T, withAdmin bool, mutationsPerHour int) *testServer {
	t.Helper()
	ts := &testServer{
		lifecycle: &fakeLifecycle{},
		queue:     &fakeQueue{},
		attempts:  &fakeAttempts{},
	}
	h := NewHandler(HandlerDeps{
		Lifecycle:       ts.lifecycle,
		Predictor:       fakePredictor{},
		Submissions:     ts.queue,
		Attempts:        ts.attempts,
		MutationTimeout: time.Minute,
	})

	cfg := RouterConfig{Middleware: DefaultMiddlewareConfig()}
	if withAdmin {
		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		authn, err := auth.NewBasicAuthenticator("admin", "", string(hash))
		if err != nil {
			t.Fatal(err)
		}
		cfg.Admin = authn
		cfg.Mutations = auth.NewMutationLimiter(mutationsPerHour)
	}
	ts.handler = NewRouter(h, cfg)
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (ts *testServer) do(t *testing.T, method, path, body string, admin bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:s3cret-pass")))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

const validBeam = `{"h_mm":500,"d_mm":450,"b_mm":300,"a_mm":1200,"abyd":2.67,"fck_Mpa":35,` +
	`"rho":0.02,"fyk_Mpa":500,"da_mm":20,"Plate_Top_mm":100,"Plate_Bottom_mm":100}`

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, false, 1)

	rec, env := ts.do(t, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
	var h HealthResponse
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.ModelVersion != "v1.0.0" || h.State != "IDLE" {
		t.Errorf("health = %+v", h)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	ts.lifecycle.infoErr = registry.ErrNotInitialized
	rec, _ = ts.do(t, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded health = %d, want 503", rec.Code)
	}
}

func TestPredict(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, false, 1)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/predict", validBeam, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict = %d %s", rec.Code, rec.Body.String())
	}
	var p predict.Prediction
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.ShearStrengthKN != 212.5 || p.ModelVersion != "v1.0.0" {
		t.Errorf("prediction = %+v", p)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestPredictRejectsBadInput(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, false, 1)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing field", `{"h_mm":500}`, ErrCodeValidationFailed},
		{"out of range", strings.Replace(validBeam, `"rho":0.02`, `"rho":0.5`, 1), ErrCodeValidationFailed},
		{"unknown field", strings.Replace(validBeam, `"h_mm"`, `"height"`, 1), ErrCodeBadRequest},
		{"not json", `beam`, ErrCodeBadRequest},
		{"empty", ``, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := ts.do(t, http.MethodPost, "/api/v1/predict", tt.body, false)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestPredictWithoutModel(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerDeps{
		Lifecycle: &fakeLifecycle{},
		Predictor: fakePredictor{err: fmt.Errorf("load current: %w", registry.ErrNotFound)},
	})
	router := NewRouter(h, RouterConfig{Middleware: DefaultMiddlewareConfig()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(validBeam))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestAdminRoutesAbsentWithoutCredentials(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, false, 1)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/admin/retrain", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when admin is not configured", rec.Code)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 5)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/admin/retrain", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
	if env.Error == nil || env.Error.Code != ErrCodeUnauthorized {
		t.Errorf("error = %+v", env.Error)
	}
	if ts.lifecycle.retrainCtx != nil {
		t.Error("retrain must not run without credentials")
	}
}

func TestRetrainResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		res      *orchestrator.Result
		err      error
		status   int
		code     string
		promoted bool
	}{
		{
			name:     "promoted",
			res:      &orchestrator.Result{Outcome: orchestrator.OutcomePromoted, Promoted: true, Version: "v1.1.5"},
			status:   http.StatusOK,
			promoted: true,
		},
		{
			name:   "rejected",
			res:    &orchestrator.Result{Outcome: orchestrator.OutcomeRejected, Gate: gate.Result{Decision: gate.Reject}},
			status: http.StatusOK,
		},
		{name: "no data", err: orchestrator.ErrNoData, status: http.StatusUnprocessableEntity, code: ErrCodeNoData},
		{
			name:   "rollback failed",
			err:    &orchestrator.RollbackError{Cause: errors.New("train"), RollbackErr: errors.New("disk"), BackupVersion: "v1.0.x"},
			status: http.StatusInternalServerError,
			code:   ErrCodeRollbackFailed,
		},
		{name: "corrupt", err: registry.ErrCorruptState, status: http.StatusInternalServerError, code: ErrCodeCorruptState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, true, 5)
			ts.lifecycle.retrainRes = tt.res
			ts.lifecycle.retrainErr = tt.err

			rec, env := ts.do(t, http.MethodPost, "/api/v1/admin/retrain", "", true)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if env.Error == nil || env.Error.Code != tt.code {
					t.Errorf("error = %+v, want %s", env.Error, tt.code)
				}
				return
			}
			var res orchestrator.Result
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatal(err)
			}
			if res.Promoted != tt.promoted {
				t.Errorf("promoted = %v, want %v", res.Promoted, tt.promoted)
			}
		})
	}
}

func TestRetrainSurvivesClientCancel(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 5)
	ts.lifecycle.retrainRes = &orchestrator.Result{Outcome: orchestrator.OutcomeRejected}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/retrain", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:s3cret-pass")))
	cancel()
	ts.handler.ServeHTTP(httptest.NewRecorder(), req)

	if ts.lifecycle.retrainCtx == nil {
		t.Fatal("retrain was not called")
	}
	if err := ts.lifecycle.ctxErr; err != nil {
		t.Errorf("retrain context inherited client cancellation: %v", err)
	}
	if !ts.lifecycle.hadDeadline {
		t.Error("retrain context should carry the mutation timeout")
	}
}

func TestRollbackEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 10)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/admin/rollback", `{"version":"v1.0.0"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("rollback = %d %s", rec.Code, rec.Body.String())
	}
	if ts.lifecycle.rolledTo != "v1.0.0" {
		t.Errorf("rolled to %q", ts.lifecycle.rolledTo)
	}

	rec, env := ts.do(t, http.MethodPost, "/api/v1/admin/rollback", `{"version":"latest"}`, true)
	if rec.Code != http.StatusBadRequest || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("bad version = %d %+v", rec.Code, env.Error)
	}

	ts.lifecycle.rollbackErr = fmt.Errorf("get v9.9.9: %w", registry.ErrNotFound)
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/rollback", `{"version":"v9.9.9"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown version = %d, want 404", rec.Code)
	}
}

func TestMutationBudget(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 1)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/admin/reset", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("first reset = %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/reset", "", true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second reset = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if ts.lifecycle.resets != 1 {
		t.Errorf("resets = %d, want 1", ts.lifecycle.resets)
	}

	// Reads are not part of the budget.
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/versions", "", true)
	if rec.Code != http.StatusOK {
		t.Errorf("versions after budget = %d", rec.Code)
	}
}

func TestSubmissionFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 5)

	body := `{"researcher":{"name":"Dr. Chen","email":"chen@example.edu"},` +
		`"beam":` + strings.TrimSuffix(validBeam, "}") + `,"V_Kn":245.3}}`
	rec, env := ts.do(t, http.MethodPost, "/api/v1/submissions", body, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d %s", rec.Code, rec.Body.String())
	}
	var sub submissions.Submission
	if err := json.Unmarshal(env.Data, &sub); err != nil {
		t.Fatal(err)
	}
	if sub.Sample.VKn != 245.3 {
		t.Errorf("V_Kn = %v", sub.Sample.VKn)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/submissions", `{"researcher":{"name":"x","email":"nope"},"beam":{"V_Kn":1}}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid submission = %d, want 400", rec.Code)
	}

	rec, env = ts.do(t, http.MethodGet, "/api/v1/admin/submissions?status=pending", "", true)
	if rec.Code != http.StatusOK || env.Meta.Count == nil || *env.Meta.Count != 1 {
		t.Errorf("list = %d %+v", rec.Code, env.Meta)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/submissions?status=lost", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/submissions/sub-1/review", `{"approve":true}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("review = %d %s", rec.Code, rec.Body.String())
	}
	if ts.queue.reviewer != "admin" {
		t.Errorf("reviewer = %q, want authenticated admin", ts.queue.reviewer)
	}

	ts.queue.reviewErr = submissions.ErrAlreadyReviewed
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/admin/submissions/sub-1/review", `{"approve":false}`, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("re-review = %d, want 409", rec.Code)
	}
}

func TestAttemptsLimit(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, true, 5)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/admin/attempts", "", true)
	if rec.Code != http.StatusOK || ts.attempts.limit != defaultAttemptLimit {
		t.Errorf("default = %d limit %d", rec.Code, ts.attempts.limit)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/attempts?limit=5", "", true)
	if rec.Code != http.StatusOK || ts.attempts.limit != 5 {
		t.Errorf("limit=5 = %d limit %d", rec.Code, ts.attempts.limit)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/admin/attempts?limit=0", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, false, 1)

	ts.do(t, http.MethodGet, "/health", "", false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shearguard_") {
		t.Error("metrics output has no shearguard collectors")
	}
}
