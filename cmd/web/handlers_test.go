package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/automationpanda/bulldoggy"
	"github.com/automationpanda/bulldoggy/auth"
	"github.com/automationpanda/bulldoggy/db"
)

func TestMain(m *testing.M) {
	// The server resolves ./templates relative to the working directory,
	// which is the repository root when the app runs.
	if err := os.Chdir("../.."); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	rs, err := db.NewReminderStore(filepath.Join(t.TempDir(), "reminders.db"))
	require.NoError(t, err)
	require.NoError(t, rs.Open())
	t.Cleanup(func() { rs.Close() })

	us, err := db.NewUserStoreFile(filepath.Join(t.TempDir(), "users.gob"), "test-pepper")
	require.NoError(t, err)
	require.NoError(t, us.Create(&app.User{Username: "pythonista"}, "I<3testing"))
	require.NoError(t, us.Create(&app.User{Username: "engineer"}, "I<3testing"))

	codec := auth.NewTokenCodec("t0p-secret-signing-key", time.Hour)
	sessions := auth.NewSessionStore(us, codec, time.Hour)

	quiet := log.New(io.Discard, "", 0)
	srv := newServer(quiet, quiet, rs, sessions)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

// newClient returns a cookie-carrying client that does not follow
// redirects, so tests can assert on them.
func newClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postLogin(t *testing.T, client *http.Client, baseURL, username, password string) *http.Response {
	t.Helper()

	form := url.Values{}
	if username != "" {
		form.Set("username", username)
	}
	if password != "" {
		form.Set("password", password)
	}
	resp, err := client.PostForm(baseURL+"/login", form)
	require.NoError(t, err)
	return resp
}

func login(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()

	resp := postLogin(t, client, baseURL, username, "I<3testing")
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/reminders", resp.Header.Get("Location"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func doJSON(t *testing.T, client *http.Client, method, url string, payload, out interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	if out != nil {
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createList(t *testing.T, client *http.Client, baseURL, name string) listJSON {
	t.Helper()

	var list listJSON
	resp := doJSON(t, client, http.MethodPost, baseURL+"/api/lists",
		map[string]string{"name": name}, &list)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return list
}

func createItem(t *testing.T, client *http.Client, baseURL string, listID int64, description string) itemJSON {
	t.Helper()

	var item itemJSON
	resp := doJSON(t, client, http.MethodPost,
		fmt.Sprintf("%s/api/lists/%d/items", baseURL, listID),
		map[string]string{"description": description}, &item)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return item
}

func TestSuccessfulLogin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)

	resp := postLogin(t, client, ts.URL, "pythonista", "I<3testing")
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/reminders", resp.Header.Get("Location"))

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	var sessionValue string
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "reminders_session" {
			sessionValue = c.Value
		}
	}
	assert.NotEmpty(t, sessionValue)
	assert.NotEqual(t, "pythonista", sessionValue)

	resp, err = client.Get(ts.URL + "/reminders")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Reminders | Bulldoggy reminders app")
	assert.Contains(t, body, "Reminders for pythonista")
}

func TestLoginMissingFields(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for _, creds := range [][2]string{
		{"", ""},
		{"pythonista", ""},
		{"", "I<3testing"},
	} {
		client := newClient(t)
		resp := postLogin(t, client, ts.URL, creds[0], creds[1])
		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Login | Bulldoggy reminders app")
		assert.NotContains(t, body, "Invalid login! Please retry.",
			"an incomplete form redisplays without a banner")
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for _, creds := range [][2]string{
		{"invalid-username", "I<3testing"},
		{"pythonista", "invalid-password"},
	} {
		client := newClient(t)
		resp := postLogin(t, client, ts.URL, creds[0], creds[1])
		body := readBody(t, resp)
		assert.Contains(t, body, "Login | Bulldoggy reminders app")
		assert.Contains(t, body, "Invalid login! Please retry.")
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	resp, err := client.Post(ts.URL+"/logout", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?logout=true", resp.Header.Get("Location"))

	resp, err = client.Get(ts.URL + resp.Header.Get("Location"))
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, "Successfully logged out.")

	// The cleared session no longer reaches the reminders view.
	resp, err = client.Get(ts.URL + "/reminders")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestNavigationGuards(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// Unauthenticated: home and reminders both land on login.
	client := newClient(t)
	for _, path := range []string{"/", "/reminders"} {
		resp, err := client.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	}

	// Authenticated: home and login both land on reminders.
	login(t, client, ts.URL, "pythonista")
	for _, path := range []string{"/", "/login"} {
		resp, err := client.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/reminders", resp.Header.Get("Location"))
	}

	// Unknown routes render the not-found view regardless of auth state.
	resp, err := client.Get(ts.URL + "/no-such-page")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found.")
}

func TestAPIRequiresAuthentication(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)

	resp, err := client.Get(ts.URL + "/api/lists")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListCRUD(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	var lists []listJSON
	resp := doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, lists, "a brand-new user has no lists")

	groceries := createList(t, client, ts.URL, "Groceries")
	chores := createList(t, client, ts.URL, "Chores")

	resp = doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lists, 2)
	assert.Equal(t, "Groceries", lists[0].Name)
	assert.Equal(t, "Chores", lists[1].Name)

	var renamed listJSON
	resp = doJSON(t, client, http.MethodPatch,
		fmt.Sprintf("%s/api/lists/%d", ts.URL, groceries.ID),
		map[string]string{"name": "Shopping"}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Shopping", renamed.Name)

	resp = doJSON(t, client, http.MethodDelete,
		fmt.Sprintf("%s/api/lists/%d", ts.URL, chores.ID), nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lists, 1)
	assert.Equal(t, "Shopping", lists[0].Name)
}

func TestItemCRUD(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")
	milk := createItem(t, client, ts.URL, list.ID, "Buy milk")
	eggs := createItem(t, client, ts.URL, list.ID, "Buy eggs")

	var toggled itemJSON
	resp := doJSON(t, client, http.MethodPost,
		fmt.Sprintf("%s/api/items/%d/toggle", ts.URL, milk.ID), nil, &toggled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, toggled.Completed)

	var renamed itemJSON
	resp = doJSON(t, client, http.MethodPatch,
		fmt.Sprintf("%s/api/items/%d", ts.URL, eggs.ID),
		map[string]string{"description": "Buy brown eggs"}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Buy brown eggs", renamed.Description)
	assert.False(t, renamed.Completed)

	resp = doJSON(t, client, http.MethodDelete,
		fmt.Sprintf("%s/api/items/%d", ts.URL, milk.ID), nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var items []itemJSON
	resp = doJSON(t, client, http.MethodGet,
		fmt.Sprintf("%s/api/lists/%d/items", ts.URL, list.ID), nil, &items)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, items, 1)
	assert.Equal(t, "Buy brown eggs", items[0].Description)
}

func TestUserIsolation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	alice := newClient(t)
	login(t, alice, ts.URL, "pythonista")
	list := createList(t, alice, ts.URL, "Groceries")
	item := createItem(t, alice, ts.URL, list.ID, "Buy milk")

	bob := newClient(t)
	login(t, bob, ts.URL, "engineer")

	var lists []listJSON
	resp := doJSON(t, bob, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, lists)

	// Guessing ids does not help; every operation is a plain 404.
	for _, req := range []struct {
		method string
		url    string
	}{
		{http.MethodGet, fmt.Sprintf("%s/api/lists/%d/items", ts.URL, list.ID)},
		{http.MethodDelete, fmt.Sprintf("%s/api/lists/%d", ts.URL, list.ID)},
		{http.MethodPost, fmt.Sprintf("%s/api/items/%d/toggle", ts.URL, item.ID)},
		{http.MethodDelete, fmt.Sprintf("%s/api/items/%d", ts.URL, item.ID)},
	} {
		resp := doJSON(t, bob, req.method, req.url, nil, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", req.method, req.url)
	}

	// Alice's data is untouched.
	var items []itemJSON
	resp = doJSON(t, alice, http.MethodGet,
		fmt.Sprintf("%s/api/lists/%d/items", ts.URL, list.ID), nil, &items)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, items, 1)
	assert.False(t, items[0].Completed)
}

func TestEditLockFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")

	// Start editing the new-list field.
	var begin struct {
		Cancelled bool `json:"cancelled"`
	}
	resp := doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "new_list_name"}, &begin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, begin.Cancelled)

	// Starting a second edit cancels the first without persisting it.
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "list_name", "id": list.ID}, &begin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, begin.Cancelled)

	// Committing persists the pending value for the active target only.
	var renamed listJSON
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/commit",
		map[string]string{"value": "Shopping"}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Shopping", renamed.Name)

	var lists []listJSON
	resp = doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lists, 1, "the abandoned new-list edit created nothing")
	assert.Equal(t, "Shopping", lists[0].Name)

	// Committing again with no edit in progress fails.
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/commit",
		map[string]string{"value": "whatever"}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Cancel discards without persisting.
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "list_name", "id": list.ID}, &begin)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/cancel", nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Shopping", lists[0].Name, "cancel never reaches the store")
}

func TestRefreshDiscardsEdit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")

	resp := doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "list_name", "id": list.ID}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reloading the reminders view is a navigation: the in-flight edit is
	// gone, so a stale commit can no longer persist anything.
	r, err := client.Get(ts.URL + "/reminders")
	require.NoError(t, err)
	r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)

	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/commit",
		map[string]string{"value": "Stale"}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var lists []listJSON
	resp = doJSON(t, client, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, lists, 1)
	assert.Equal(t, "Groceries", lists[0].Name)
}

func TestRejectedCommitKeepsEditActive(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")

	resp := doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "list_name", "id": list.ID}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// An empty value never reaches the store, and the row stays in edit
	// mode so the user can retry.
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/commit",
		map[string]string{"value": "   "}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var renamed listJSON
	resp = doJSON(t, client, http.MethodPost, ts.URL+"/api/edit/commit",
		map[string]string{"value": "Shopping"}, &renamed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Shopping", renamed.Name)
}

func TestEditLockForeignRow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	alice := newClient(t)
	login(t, alice, ts.URL, "pythonista")
	list := createList(t, alice, ts.URL, "Groceries")

	bob := newClient(t)
	login(t, bob, ts.URL, "engineer")

	resp := doJSON(t, bob, http.MethodPost, ts.URL+"/api/edit/begin",
		map[string]interface{}{"kind": "list_name", "id": list.ID}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSelectList(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")
	createItem(t, client, ts.URL, list.ID, "Buy milk")

	resp := doJSON(t, client, http.MethodPost,
		fmt.Sprintf("%s/api/lists/%d/select", ts.URL, list.ID), nil, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	r, err := client.Get(ts.URL + "/reminders")
	require.NoError(t, err)
	body := readBody(t, r)
	assert.Contains(t, body, "Buy milk", "the selected list's items are displayed")
}

func TestDataSurvivesRelogin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	client := newClient(t)
	login(t, client, ts.URL, "pythonista")

	list := createList(t, client, ts.URL, "Groceries")
	createItem(t, client, ts.URL, list.ID, "Buy milk")

	resp, err := client.Post(ts.URL+"/logout", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	// A fresh browser context, same user.
	fresh := newClient(t)
	login(t, fresh, ts.URL, "pythonista")

	var lists []listJSON
	r := doJSON(t, fresh, http.MethodGet, ts.URL+"/api/lists", nil, &lists)
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.Len(t, lists, 1)
	assert.Equal(t, "Groceries", lists[0].Name)

	var items []itemJSON
	r = doJSON(t, fresh, http.MethodGet,
		fmt.Sprintf("%s/api/lists/%d/items", ts.URL, list.ID), nil, &items)
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.Len(t, items, 1)
	assert.Equal(t, "Buy milk", items[0].Description)
}
