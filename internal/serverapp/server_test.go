package serverapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woodsmokeheart/tracker/internal/config"
	"github.com/woodsmokeheart/tracker/internal/model"
)

// apiClient drives the assembled handler the way the browser client would,
// carrying the session cookie between calls.
type apiClient struct {
	t       *testing.T
	ts      *httptest.Server
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) (*Server, *apiClient) {
	t.Helper()

	cfg := config.Default()
	cfg.Gateway.Driver = "memory"
	cfg.Objects.Dir = t.TempDir()
	cfg.Undo.GraceMS = 60_000 // countdowns never expire mid-test
	cfg.Auth.DevExposeCode = true

	srv, err := New(Options{Config: cfg, Logger: log.New(io.Discard, "", 0)})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return srv, &apiClient{t: t, ts: ts}
}

func (c *apiClient) do(method, path string, contentType string, body io.Reader) (*http.Response, map[string]any) {
	c.t.Helper()

	req, err := http.NewRequest(method, c.ts.URL+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	resp, err := c.ts.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if got := resp.Cookies(); len(got) > 0 {
		c.cookies = got
	}

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func (c *apiClient) doJSON(method, path string, payload any) (*http.Response, map[string]any) {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}
	return c.do(method, path, "application/json", body)
}

func (c *apiClient) signIn(email string) {
	c.t.Helper()

	resp, body := c.doJSON(http.MethodPost, "/api/auth/request-code", map[string]string{"email": email})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	code, _ := body["code"].(string)
	require.NotEmpty(c.t, code, "dev_expose_code should return the sign-in code")

	resp, _ = c.doJSON(http.MethodPost, "/api/auth/verify", map[string]string{"email": email, "code": code})
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(c.t, c.cookies, "verify should set the session cookie")
}

func decodeTasks(t *testing.T, body map[string]any) []model.Task {
	t.Helper()
	raw, err := json.Marshal(body["tasks"])
	require.NoError(t, err)
	var tasks []model.Task
	require.NoError(t, json.Unmarshal(raw, &tasks))
	return tasks
}

func TestHealthEndpoints(t *testing.T) {
	_, c := newTestServer(t)

	resp, body := c.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, _ = c.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_RequiresSession(t *testing.T) {
	_, c := newTestServer(t)

	resp, _ := c.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTaskLifecycle(t *testing.T) {
	_, c := newTestServer(t)
	c.signIn("alice@example.com")

	// create two tasks
	resp, body := c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "buy milk"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	resp, body = c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "walk dog", "description": "around the block"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	tasks := decodeTasks(t, body)
	require.Len(t, tasks, 2)
	assert.Equal(t, "walk dog", tasks[0].Title)
	dogID, milkID := tasks[0].ID, tasks[1].ID

	// empty title is rejected up front
	resp, _ = c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// toggle completion, then check the filtered list and counts
	resp, body = c.doJSON(http.MethodPatch, "/api/tasks/"+string(milkID), map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = c.do(http.MethodGet, "/api/tasks?filter=active", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tasks = decodeTasks(t, body)
	require.Len(t, tasks, 1)
	assert.Equal(t, dogID, tasks[0].ID)
	counts := body["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["all"])
	assert.Equal(t, float64(1), counts["completed"])

	// the toggle drove today's counter, so the day window reports it
	resp, body = c.do(http.MethodGet, "/api/stats?range=day", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, "1.0", body["average"])

	// rename with an edit
	resp, body = c.doJSON(http.MethodPatch, "/api/tasks/"+string(dogID), map[string]any{"title": "walk the dog"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := body["task"].(map[string]any)
	assert.Equal(t, "walk the dog", task["title"])

	// unknown range is a client error
	resp, _ = c.do(http.MethodGet, "/api/stats?range=year", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteUndoOverHTTP(t *testing.T) {
	_, c := newTestServer(t)
	c.signIn("alice@example.com")

	_, body := c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "doomed"})
	tasks := decodeTasks(t, body)
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	resp, body := c.do(http.MethodDelete, "/api/tasks/"+string(id), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["deadline"])
	assert.InDelta(t, 60, body["remaining_seconds"].(float64), 1)
	assert.Empty(t, decodeTasks(t, body))

	resp, body = c.do(http.MethodGet, "/api/tasks/pending", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["pending"])

	// a refresh must not bring the task back mid-countdown
	_, body = c.do(http.MethodGet, "/api/tasks?filter=all", "", nil)
	assert.Empty(t, decodeTasks(t, body))

	resp, body = c.doJSON(http.MethodPost, "/api/tasks/undo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tasks = decodeTasks(t, body)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].ID)

	// nothing pending anymore
	resp, _ = c.doJSON(http.MethodPost, "/api/tasks/undo", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateTaskWithImage(t *testing.T) {
	_, c := newTestServer(t)
	c.signIn("alice@example.com")

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	img.Set(3, 3, color.RGBA{G: 255, A: 255})
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	require.NoError(t, mw.WriteField("title", "with attachment"))
	part, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, body := c.do(http.MethodPost, "/api/tasks", mw.FormDataContentType(), &form)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	task := body["task"].(map[string]any)
	imageURL, _ := task["image_url"].(string)
	require.True(t, strings.HasPrefix(imageURL, "/media/"), imageURL)

	// the attachment is served back at its public URL
	resp, _ = c.do(http.MethodGet, imageURL, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// a broken upload aborts the create
	var badForm bytes.Buffer
	mw = multipart.NewWriter(&badForm)
	require.NoError(t, mw.WriteField("title", "never created"))
	part, err = mw.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	fmt.Fprint(part, "plain text, not an image")
	require.NoError(t, mw.Close())

	resp, _ = c.do(http.MethodPost, "/api/tasks", mw.FormDataContentType(), &badForm)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = c.do(http.MethodGet, "/api/tasks?filter=all", "", nil)
	assert.Len(t, decodeTasks(t, body), 1)
}

func TestClearDataAndNotifications(t *testing.T) {
	_, c := newTestServer(t)
	c.signIn("alice@example.com")

	_, _ = c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "a"})
	_, body := c.doJSON(http.MethodPost, "/api/tasks", map[string]string{"title": "b"})
	require.Len(t, decodeTasks(t, body), 2)

	resp, _ := c.doJSON(http.MethodPost, "/api/data/clear", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = c.do(http.MethodGet, "/api/tasks?filter=all", "", nil)
	assert.Empty(t, decodeTasks(t, body))
	_, body = c.do(http.MethodGet, "/api/counters", "", nil)
	assert.Empty(t, body["counters"])

	// nothing failed out of band, so the feed is empty
	resp, body = c.do(http.MethodGet, "/api/notifications", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["notifications"])
}

func TestLogoutEndsSession(t *testing.T) {
	_, c := newTestServer(t)
	c.signIn("alice@example.com")

	resp, _ := c.do(http.MethodGet, "/api/auth/session", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sessionCookies := c.cookies
	resp, _ = c.doJSON(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the old token is revoked server-side, not just cleared in the browser
	c.cookies = sessionCookies
	resp, _ = c.do(http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
