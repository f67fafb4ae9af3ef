package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andygrunwald/go-jira"
	"github.com/pkg/errors"
)

// jira api doc https://developer.atlassian.com/cloud/jira/platform/rest/v3/api-group-project-versions/

const (
	startDateFormat       = "2006-01-02"
	releaseDateFormat     = "2006-01-02"
	userReleaseDateFormat = "02/Jan/2006"

	requestTimeout = 60 * time.Second
)

// Version mirrors the server representation of a project version. Fields the
// tool does not know about are kept so a full update sends them back as is.
type Version map[string]interface{}

func (v Version) ID() string {
	switch id := v["id"].(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

func (v Version) Name() string {
	name, _ := v["name"].(string)
	return name
}

func (v Version) Released() bool {
	released, _ := v["released"].(bool)
	return released
}

// RequestError is returned when Jira answers with a non 2xx status.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// JiraClient performs the version calls against a single Jira site.
type JiraClient struct {
	jira *jira.Client
	http *http.Client
	log  Logger
	now  func() time.Time
}

// NewJiraClient builds a client authenticating every request with the
// e-mail and api token of config. transport may be nil.
func NewJiraClient(config *Config, transport http.RoundTripper, log Logger) (*JiraClient, error) {
	tp := jira.BasicAuthTransport{
		Username:  config.Email,
		Password:  config.APIToken,
		Transport: transport,
	}

	httpClient := &http.Client{
		Transport: &tp,
		Timeout:   requestTimeout,
	}

	client, err := jira.NewClient(httpClient, "https://"+config.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "creating jira client for %s", config.Host)
	}

	if log == nil {
		log = discardLogger{}
	}

	return &JiraClient{jira: client, http: httpClient, log: log, now: time.Now}, nil
}

// GetProjectID returns the numeric id of the project with the given key.
// Jira answers 404 both for unknown keys and for projects the user can't
// browse, so a failure does not prove the project is absent.
func (c *JiraClient) GetProjectID(ctx context.Context, projectKey string) (int, bool, error) {
	project := map[string]interface{}{}
	path := "rest/api/3/project/" + url.PathEscape(projectKey) + "?properties=id"

	if err := c.do(ctx, http.MethodGet, path, nil, &project); err != nil {
		return 0, false, errors.Wrapf(err, "getting project %s", projectKey)
	}

	raw, ok := project["id"]
	if !ok || raw == nil || raw == "" {
		return 0, false, nil
	}

	id, err := parseProjectID(raw)
	if err != nil {
		return 0, false, errors.Wrapf(err, "getting project %s", projectKey)
	}

	return id, true, nil
}

func parseProjectID(raw interface{}) (int, error) {
	switch id := raw.(type) {
	case string:
		n, err := strconv.Atoi(id)
		if err != nil {
			return 0, errors.Errorf("invalid project id %q", id)
		}
		return n, nil
	case json.Number:
		n, err := strconv.Atoi(id.String())
		if err != nil {
			return 0, errors.Errorf("invalid project id %s", id)
		}
		return n, nil
	case float64:
		return int(id), nil
	}
	return 0, errors.Errorf("invalid project id %v", raw)
}

// GetVersion scans the versions of a project for one named exactly name.
// It returns nil when there is none.
func (c *JiraClient) GetVersion(ctx context.Context, projectID int, name string) (Version, error) {
	versions := []Version{}
	path := fmt.Sprintf("rest/api/3/project/%d/versions", projectID)

	if err := c.do(ctx, http.MethodGet, path, nil, &versions); err != nil {
		return nil, errors.Wrapf(err, "getting versions of project %d", projectID)
	}

	for _, version := range versions {
		if version.Name() == name {
			return version, nil
		}
	}

	return nil, nil
}

// AddVersion creates an unreleased version starting today. When Jira reports
// that the name is already taken (someone created it in between) AddVersion
// returns nil without error.
func (c *JiraClient) AddVersion(ctx context.Context, projectID int, name string) (Version, error) {
	params := map[string]interface{}{
		"name":      name,
		"archived":  false,
		"projectId": projectID,
		"startDate": c.now().Format(startDateFormat),
	}
	c.log.Info("%v", params)

	created := Version{}
	err := c.send(ctx, http.MethodPost, "rest/api/3/version", params, &created)

	var reqErr *RequestError
	if errors.As(err, &reqErr) && strings.Contains(reqErr.Body, "already exists") {
		return nil, nil
	}
	if err != nil {
		c.report(err)
		return nil, errors.Wrapf(err, "creating version %s", name)
	}

	return created, nil
}

// DeleteVersion removes the version. Jira refuses when issues still use it.
func (c *JiraClient) DeleteVersion(ctx context.Context, version Version) error {
	id := version.ID()
	if id == "" {
		return errors.Errorf("deleting version %q: missing id", version.Name())
	}

	if err := c.do(ctx, http.MethodDelete, "rest/api/3/version/"+id, nil, nil); err != nil {
		return errors.Wrapf(err, "deleting version %s", id)
	}

	return nil
}

// ReleaseVersion marks the version released today and writes the whole
// object back. version is modified in place.
func (c *JiraClient) ReleaseVersion(ctx context.Context, version Version) (Version, error) {
	id := version.ID()
	if id == "" {
		return nil, errors.Errorf("releasing version %q: missing id", version.Name())
	}

	markReleased(version, c.now())

	updated := Version{}
	if err := c.do(ctx, http.MethodPut, "rest/api/3/version/"+id, version, &updated); err != nil {
		return nil, errors.Wrapf(err, "releasing version %s", id)
	}

	return updated, nil
}

// markReleased applies the release fields. Jira rejects a version carrying
// both startDate and userStartDate, or both releaseDate and userReleaseDate.
func markReleased(version Version, now time.Time) {
	version["released"] = true

	_, hasStart := version["startDate"]
	_, hasUserStart := version["userStartDate"]
	if hasStart && hasUserStart {
		delete(version, "startDate")
	}

	if _, ok := version["userReleaseDate"]; ok {
		version["userReleaseDate"] = now.Format(userReleaseDateFormat)
		delete(version, "releaseDate")
	} else {
		version["releaseDate"] = now.Format(releaseDateFormat)
	}
}

// do is send followed by printing the server answer on failure.
func (c *JiraClient) do(ctx context.Context, method, path string, body, v interface{}) error {
	err := c.send(ctx, method, path, body, v)
	if err != nil {
		c.report(err)
	}
	return err
}

func (c *JiraClient) report(err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		c.log.Error("%s", reqErr.Body)
	}
}

func (c *JiraClient) send(ctx context.Context, method, path string, body, v interface{}) error {
	request, err := c.jira.NewRequestWithContext(ctx, method, path, body)
	if err != nil {
		return errors.Wrapf(err, "building %s %s", method, path)
	}
	request.Header.Set("Content-Type", "application/json")

	var raw json.RawMessage
	var target interface{}
	if v != nil {
		target = &raw
	}

	response, err := c.jira.Do(request, target)
	if response != nil && response.Body != nil {
		defer response.Body.Close()
	}

	if err != nil {
		if response == nil || response.StatusCode < 300 {
			return errors.Wrapf(err, "%s %s", method, path)
		}

		content, _ := io.ReadAll(response.Body)
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: response.StatusCode,
			Body:       string(content),
		}
	}

	if v == nil {
		return nil
	}

	// numbers stay json.Number so large values survive a full update
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}

	return nil
}
