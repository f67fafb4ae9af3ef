package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const (
	testHost     = "jira.example.com"
	testEmail    = "release-bot@example.com"
	testAPIToken = "secret-token"
	testBaseURL  = "https://" + testHost + "/rest/api/3"
)

var testNow = time.Date(2024, time.January, 5, 10, 30, 0, 0, time.UTC)

type recordLogger struct {
	lines []string
}

func (l *recordLogger) Info(format string, a ...any) {
	l.lines = append(l.lines, "INFO: "+fmt.Sprintf(format, a...))
}

func (l *recordLogger) Error(format string, a ...any) {
	l.lines = append(l.lines, "ERROR: "+fmt.Sprintf(format, a...))
}

func (l *recordLogger) contains(line string) bool {
	for _, logged := range l.lines {
		if logged == line {
			return true
		}
	}
	return false
}

func (l *recordLogger) errors() []string {
	var out []string
	for _, line := range l.lines {
		if strings.HasPrefix(line, "ERROR: ") {
			out = append(out, line)
		}
	}
	return out
}

func testConfig() *Config {
	return &Config{Host: testHost, Email: testEmail, APIToken: testAPIToken}
}

func newTestClient(t *testing.T) (*JiraClient, *httpmock.MockTransport, *recordLogger) {
	t.Helper()

	mock := httpmock.NewMockTransport()
	log := &recordLogger{}

	client, err := NewJiraClient(testConfig(), mock, log)
	require.NoError(t, err)
	client.now = func() time.Time { return testNow }

	return client, mock, log
}

// captureJSON records the decoded request body of every call and answers
// with status and response.
func captureJSON(t *testing.T, bodies *[]map[string]interface{}, status int, response string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		checkHeaders(t, req)

		payload := map[string]interface{}{}
		if req.Body != nil {
			raw, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &payload); err != nil {
					return nil, err
				}
			}
		}
		*bodies = append(*bodies, payload)

		return httpmock.NewStringResponse(status, response), nil
	}
}

func checkHeaders(t *testing.T, req *http.Request) {
	user, pass, ok := req.BasicAuth()
	if !ok || user != testEmail || pass != testAPIToken {
		t.Errorf("Expected basic auth for %s, got %q/%q", testEmail, user, pass)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type: application/json header, got: %s", req.Header.Get("Content-Type"))
	}
}

// checkedResponder answers with status and body after checking the
// authentication and content type of the request.
func checkedResponder(t *testing.T, status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		checkHeaders(t, req)
		return httpmock.NewStringResponse(status, body), nil
	}
}

func projectMock(t *testing.T, mock *httpmock.MockTransport, key string, status int, body string) {
	mock.RegisterResponder("GET", testBaseURL+"/project/"+key+"?properties=id",
		checkedResponder(t, status, body))
}

func versionsMock(t *testing.T, mock *httpmock.MockTransport, projectID int, body string) {
	mock.RegisterResponder("GET", fmt.Sprintf("%s/project/%d/versions", testBaseURL, projectID),
		checkedResponder(t, 200, body))
}

func callCount(mock *httpmock.MockTransport, method, url string) int {
	return mock.GetCallCountInfo()[method+" "+url]
}
