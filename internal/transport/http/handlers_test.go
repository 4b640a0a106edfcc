package httptransport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"collecta/internal/catalog"
	"collecta/internal/entry/models"
	"collecta/internal/entry/store"
	jwttoken "collecta/internal/jwt_token"
	"collecta/internal/membership"
	"collecta/internal/platform/metrics"
	"collecta/internal/sweeper"
	"collecta/internal/workflow"
	id "collecta/pkg/domain"
	"collecta/pkg/testutil"
)

const testCatalog = `
categories:
  - id: census
    name: School census
    deadline: 2026-11-01
    fields:
      - id: students
        type: number
        required: true
        rules:
          min_value: 10
          max_value: 5000
          warning: {min: 3000}
      - id: has_lab
        type: select
        required: true
        options: ["yes", "no"]
      - id: lab_seats
        type: number
        depends_on: {field: has_lab, condition: equals, value: "yes", required: true}
`

const adminToken = "operator-token"

type stubSweeper struct {
	report sweeper.Report
	err    error
	runs   int
}

func (s *stubSweeper) Run(context.Context) (sweeper.Report, error) {
	s.runs++
	return s.report, s.err
}

type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	sweeper *stubSweeper
	dbErr   error

	unit          id.UnitID
	ownerToken    string
	reviewerToken string
	strangerToken string
	reviewer      id.ActorID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	cat, err := catalog.Parse([]byte(testCatalog))
	s.Require().NoError(err)

	s.unit = id.UnitID(uuid.New())
	owner := id.ActorID(uuid.New())
	s.reviewer = id.ActorID(uuid.New())
	members := membership.NewInMemoryStore()
	s.Require().NoError(members.Add(ctx, membership.Membership{ActorID: owner, UnitID: s.unit, Role: membership.RoleOwner}))
	s.Require().NoError(members.Add(ctx, membership.Membership{ActorID: s.reviewer, UnitID: s.unit, Role: membership.RoleReviewer}))
	authority, err := membership.New(members)
	s.Require().NoError(err)

	wf, err := workflow.New(store.NewInMemoryStore(), cat, authority)
	s.Require().NoError(err)

	tokens := jwttoken.NewJWTService("handler-test-signing-key", "collecta")
	s.ownerToken = s.token(tokens, owner)
	s.reviewerToken = s.token(tokens, s.reviewer)
	s.strangerToken = s.token(tokens, id.ActorID(uuid.New()))

	s.sweeper = &stubSweeper{}
	s.dbErr = nil
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(wf, cat, jwttoken.NewJWTServiceAdapter(tokens), logger,
		WithMetrics(metrics.New(reg), reg),
		WithSweeper(s.sweeper, adminToken),
		WithHealthCheck("database", func(context.Context) error { return s.dbErr }),
	)
	s.router = h.Router()
}

func (s *HandlerSuite) token(svc *jwttoken.JWTService, actor id.ActorID) string {
	tok, err := svc.GenerateAccessToken(actor, "", time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *HandlerSuite) groupPath(suffix string) string {
	return "/units/" + s.unit.String() + "/categories/census" + suffix
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		testutil.WithBearer(req, token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) save(values map[string]string) {
	rec := s.do(http.MethodPut, s.groupPath(""), s.ownerToken, map[string]any{"values": values})
	testutil.AssertStatusOK(s.T(), rec)
}

// =============================================================================
// Authentication
// =============================================================================

func (s *HandlerSuite) TestAuthentication() {
	s.Run("missing token", func() {
		rec := s.do(http.MethodGet, "/categories", "", nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("garbage token", func() {
		rec := s.do(http.MethodGet, "/categories", "not-a-jwt", nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("request id is echoed", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/healthz")
		req.Header.Set("X-Request-ID", "req-42")
		rec := testutil.DoRequest(s.router, req)
		s.Equal("req-42", rec.Header().Get("X-Request-ID"))
	})
}

// =============================================================================
// Catalog
// =============================================================================

func (s *HandlerSuite) TestListCategories() {
	rec := s.do(http.MethodGet, "/categories", s.ownerToken, nil)
	testutil.AssertStatusOK(s.T(), rec)

	resp := testutil.UnmarshalResponse[struct {
		Categories []categoryResponse `json:"categories"`
	}](s.T(), rec)
	s.Require().Len(resp.Categories, 1)
	census := resp.Categories[0]
	s.Equal(id.CategoryID("census"), census.ID)
	s.Equal(catalog.ScopeAll, census.Scope)
	s.Require().NotNil(census.Deadline)
	s.Require().Len(census.Fields, 3)

	byID := map[id.FieldID]fieldResponse{}
	for _, f := range census.Fields {
		byID[f.ID] = f
	}
	s.Require().NotNil(byID["students"].Rules.Min)
	s.Equal(10.0, *byID["students"].Rules.Min)
	s.Equal([]string{"yes", "no"}, byID["has_lab"].Rules.Options)
	s.Require().NotNil(byID["lab_seats"].DependsOn)
	s.Equal(id.FieldID("has_lab"), byID["lab_seats"].DependsOn.FieldID)
}

// =============================================================================
// Group lifecycle
// =============================================================================

func (s *HandlerSuite) TestGroupLifecycle() {
	s.Run("untouched group reads as empty draft", func() {
		rec := s.do(http.MethodGet, s.groupPath(""), s.ownerToken, nil)
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusDraft, resp.Status)
		s.Empty(resp.Values)
	})

	s.Run("owner saves a draft", func() {
		rec := s.do(http.MethodPut, s.groupPath(""), s.ownerToken, map[string]any{
			"values": map[string]string{"students": "3200", "has_lab": "no"},
		})
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusDraft, resp.Status)
		s.Equal("3200", resp.Values["students"])
	})

	s.Run("submit returns warnings but succeeds", func() {
		rec := s.do(http.MethodPost, s.groupPath("/submit"), s.ownerToken, nil)
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusPending, resp.Status)
		s.NotNil(resp.SubmittedAt)
		s.Require().Len(resp.Warnings, 1)
		s.Equal(id.FieldID("students"), resp.Warnings[0].FieldID)
	})

	s.Run("pending group refuses edits", func() {
		rec := s.do(http.MethodPut, s.groupPath(""), s.ownerToken, map[string]any{
			"values": map[string]string{"students": "50"},
		})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "illegal_transition")
	})

	s.Run("owner cannot approve", func() {
		rec := s.do(http.MethodPost, s.groupPath("/approve"), s.ownerToken, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, "forbidden")
	})

	s.Run("reviewer approves", func() {
		rec := s.do(http.MethodPost, s.groupPath("/approve"), s.reviewerToken, nil)
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusApproved, resp.Status)
		s.Require().NotNil(resp.ApprovedBy)
		s.Equal(s.reviewer, *resp.ApprovedBy)
	})

	s.Run("approved group is immutable", func() {
		rec := s.do(http.MethodPut, s.groupPath(""), s.ownerToken, map[string]any{
			"values": map[string]string{"students": "50"},
		})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "immutable_record")

		rec = s.do(http.MethodGet, s.groupPath(""), s.ownerToken, nil)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal("3200", resp.Values["students"])
	})
}

func (s *HandlerSuite) TestSubmitBlockedByValidation() {
	s.save(map[string]string{"students": "5"})

	rec := s.do(http.MethodPost, s.groupPath("/submit"), s.ownerToken, nil)
	testutil.AssertStatus(s.T(), rec, http.StatusUnprocessableEntity)
	errResp := testutil.UnmarshalErrorResponse(s.T(), rec)
	s.Equal("validation_failed", errResp.Error)
	s.Require().Len(errResp.Issues, 2)
	s.Equal("students", errResp.Issues[0]["field_id"])
	s.Equal("has_lab", errResp.Issues[1]["field_id"])

	rec = s.do(http.MethodGet, s.groupPath(""), s.ownerToken, nil)
	resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
	s.Equal(models.StatusDraft, resp.Status)
}

func (s *HandlerSuite) TestReject() {
	s.save(map[string]string{"students": "120", "has_lab": "no"})
	testutil.AssertStatusOK(s.T(), s.do(http.MethodPost, s.groupPath("/submit"), s.ownerToken, nil))

	s.Run("reason is required", func() {
		rec := s.do(http.MethodPost, s.groupPath("/reject"), s.reviewerToken, map[string]string{"reason": "  "})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "illegal_transition")
	})

	s.Run("reviewer rejects with a reason", func() {
		rec := s.do(http.MethodPost, s.groupPath("/reject"), s.reviewerToken, map[string]string{"reason": "lab count missing"})
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusRejected, resp.Status)
		s.Equal("lab count missing", resp.RejectionReason)
	})

	s.Run("next edit reopens the group", func() {
		rec := s.do(http.MethodPut, s.groupPath(""), s.ownerToken, map[string]any{
			"values": map[string]string{"students": "130"},
		})
		testutil.AssertStatusOK(s.T(), rec)
		resp := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
		s.Equal(models.StatusDraft, resp.Status)
	})
}

func (s *HandlerSuite) TestValidateDoesNotPersist() {
	rec := s.do(http.MethodPost, s.groupPath("/validate"), s.ownerToken, map[string]any{
		"values": map[string]string{"students": "9000", "has_lab": "yes"},
	})
	testutil.AssertStatusOK(s.T(), rec)
	resp := testutil.UnmarshalResponse[struct {
		Valid  bool             `json:"valid"`
		Errors []map[string]any `json:"errors"`
	}](s.T(), rec)
	s.False(resp.Valid)
	s.Len(resp.Errors, 2)

	rec = s.do(http.MethodGet, s.groupPath(""), s.ownerToken, nil)
	group := testutil.UnmarshalResponse[groupResponse](s.T(), rec)
	s.Empty(group.Values)
}

func (s *HandlerSuite) TestBadInput() {
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed unit id", http.MethodGet, "/units/not-a-uuid/categories/census", nil, http.StatusBadRequest, "bad_request"},
		{"malformed category slug", http.MethodGet, "/units/" + uuid.NewString() + "/categories/Census", nil, http.StatusBadRequest, "bad_request"},
		{"unknown category", http.MethodGet, "/units/" + uuid.NewString() + "/categories/budget", nil, http.StatusNotFound, "not_found"},
		{"unknown field", http.MethodPut, "", map[string]any{"values": map[string]string{"teachers": "3"}}, http.StatusBadRequest, "bad_request"},
		{"unknown body key", http.MethodPut, "", map[string]any{"vals": map[string]string{}}, http.StatusBadRequest, "bad_request"},
		{"stranger may not edit", http.MethodPut, "", map[string]any{"values": map[string]string{"students": "20"}}, http.StatusForbidden, "forbidden"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			path := tt.path
			if path == "" {
				path = s.groupPath("")
			}
			token := s.ownerToken
			if strings.HasPrefix(tt.name, "stranger") {
				token = s.strangerToken
			}
			rec := s.do(tt.method, path, token, tt.body)
			testutil.AssertStatusAndError(s.T(), rec, tt.status, tt.code)
		})
	}

	s.Run("broken json", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPut, s.groupPath(""), `{"values":`)
		testutil.WithBearer(req, s.ownerToken)
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})
}

// =============================================================================
// Operations
// =============================================================================

func (s *HandlerSuite) TestRunSweep() {
	s.Run("requires the admin token", func() {
		rec := s.do(http.MethodPost, "/admin/sweeps", s.reviewerToken, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusForbidden, "forbidden")
		s.Zero(s.sweeper.runs)
	})

	s.Run("reports the pass with joined errors", func() {
		s.sweeper.report = sweeper.Report{Categories: 2, ForceApproved: 3, Failed: 1}
		s.sweeper.err = errors.Join(&sweeper.CategoryError{CategoryID: "census", Err: errors.New("list pending: timeout")})

		req := testutil.NewRequest(s.T(), http.MethodPost, "/admin/sweeps")
		testutil.WithAdminToken(req, adminToken)
		rec := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rec)

		resp := testutil.UnmarshalResponse[sweepResponse](s.T(), rec)
		s.Equal(3, resp.ForceApproved)
		s.Equal(1, resp.Failed)
		s.Equal([]string{"category census: list pending: timeout"}, resp.Errors)
		s.Equal(1, s.sweeper.runs)
	})
}

func (s *HandlerSuite) TestHealthAndMetrics() {
	rec := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertJSONContains(s.T(), rec, "status", "ok")

	s.dbErr = errors.New("connection refused")
	rec = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatus(s.T(), rec, http.StatusServiceUnavailable)

	rec = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rec)
	s.Contains(rec.Body.String(), "collecta_http_requests_total")
}
