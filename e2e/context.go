package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries per-scenario state: who is calling and what the last
// response was. Tokens are minted beforehand with `collectactl token`.
type TestContext struct {
	baseURL    string
	client     *http.Client
	tokens     map[string]string
	unitID     string
	adminToken string

	actor        string
	lastStatus   int
	lastBody     []byte
	lastResponse map[string]any
}

// NewTestContextFromEnv reads the target deployment from COLLECTA_* variables.
func NewTestContextFromEnv() *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(os.Getenv("COLLECTA_BASE_URL"), "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens: map[string]string{
			"owner":    os.Getenv("COLLECTA_OWNER_TOKEN"),
			"reviewer": os.Getenv("COLLECTA_REVIEWER_TOKEN"),
		},
		unitID:     os.Getenv("COLLECTA_UNIT_ID"),
		adminToken: os.Getenv("COLLECTA_ADMIN_TOKEN"),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.actor = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastResponse = nil
}

func (tc *TestContext) UnitID() string { return tc.unitID }

// ActAs selects the bearer token for subsequent requests. An empty role
// sends requests without one.
func (tc *TestContext) ActAs(role string) error {
	if role != "" && tc.tokens[role] == "" {
		return fmt.Errorf("no token configured for role %q", role)
	}
	tc.actor = role
	return nil
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) PUT(path string, body any) error {
	return tc.do(http.MethodPut, path, body, nil)
}

// AdminPOST sends the operator token instead of a bearer token.
func (tc *TestContext) AdminPOST(path string, withToken bool) error {
	headers := map[string]string{}
	if withToken {
		headers["X-Admin-Token"] = tc.adminToken
	}
	return tc.do(http.MethodPost, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.actor != "" {
		req.Header.Set("Authorization", "Bearer "+tc.tokens[tc.actor])
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastResponse = nil
	if len(tc.lastBody) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(tc.lastBody, &decoded); err == nil {
			tc.lastResponse = decoded
		}
	}
	return nil
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }

func (tc *TestContext) LastBody() string { return string(tc.lastBody) }

// ResponseField walks a dotted path through the last JSON response.
func (tc *TestContext) ResponseField(path string) (any, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.lastBody)
	}
	var cur any = tc.lastResponse
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in response: %s", path, tc.lastBody)
		}
	}
	return cur, nil
}
