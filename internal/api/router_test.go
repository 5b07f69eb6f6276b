package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/oleg-messenger/oleg/internal/api/middleware"
	"github.com/oleg-messenger/oleg/internal/auth"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/handlers"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/ws"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestServer(t *testing.T, admins ...string) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	hub := ws.NewHub(logger)
	eng := engine.New(engine.Options{
		Broadcaster: hub,
		Auth:        auth.New(cache.Local(cache.NewMemory[string]()), time.Hour),
		Blobs:       blobs,
		Pages:       cache.Local(cache.NewMemory[*models.Page]()),
		Admins:      admins,
		Logger:      logger,
	})
	h := handlers.NewHandler(handlers.Deps{
		Engine: eng,
		Blobs:  blobs,
		Hub:    hub,
		Logger: logger,
	})
	router := NewRouter(Options{
		Handler: h,
		Auth:    eng,
		Limiter: middleware.NewRateLimiter(ratelimit.NewMemory(), cache.Local(cache.NewMemory[string]()), logger, middleware.RateLimiterConfig{}),
		Logger:  logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, token, out)
}

func (s *testServer) send(req *http.Request, token string, out any) int {
	s.t.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("decode %s: %v", req.URL.Path, err)
		}
	}
	return resp.StatusCode
}

// login registers username and returns a session token.
func (s *testServer) login(username string) string {
	s.t.Helper()

	creds := handlers.CredentialsRequest{Username: username, Password: "hunter22"}
	if code := s.do("POST", "/api/register", "", creds, nil); code != http.StatusCreated {
		s.t.Fatalf("register %s: status %d", username, code)
	}
	var resp handlers.LoginResponse
	if code := s.do("POST", "/api/login", "", creds, &resp); code != http.StatusOK {
		s.t.Fatalf("login %s: status %d", username, code)
	}
	if resp.Token == "" {
		s.t.Fatalf("login %s: empty token", username)
	}
	return resp.Token
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	if code := s.do("GET", "/api/guilds", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", code)
	}
	if code := s.do("GET", "/api/guilds", "bogus", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", code)
	}

	creds := handlers.CredentialsRequest{Username: "alice", Password: "hunter22"}
	s.do("POST", "/api/register", "", creds, nil)
	creds.Password = "wrong-password"
	if code := s.do("POST", "/api/login", "", creds, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d, want 401", code)
	}
}

func TestRegisterConflict(t *testing.T) {
	s := newTestServer(t)
	s.login("alice")

	var body map[string]string
	creds := handlers.CredentialsRequest{Username: "alice", Password: "hunter22"}
	if code := s.do("POST", "/api/register", "", creds, &body); code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", code)
	}
	if body["reason"] != "user_exists" {
		t.Fatalf("reason = %q", body["reason"])
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t)
	token := s.login("alice")

	if code := s.do("POST", "/api/logout", token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout: status %d", code)
	}
	if code := s.do("GET", "/api/profile", token, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("revoked token: status %d, want 401", code)
	}
}

func TestGuildFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.login("alice")
	bob := s.login("bob")

	var g models.Guild
	if code := s.do("POST", "/api/guilds", alice, handlers.NameRequest{Name: "Gophers"}, &g); code != http.StatusCreated {
		t.Fatalf("create guild: status %d", code)
	}

	var ch models.Channel
	path := "/api/guilds/" + g.ID + "/channels"
	if code := s.do("POST", path, alice, handlers.NameRequest{Name: "news"}, &ch); code != http.StatusCreated {
		t.Fatalf("create channel: status %d", code)
	}

	// Bob is not a member yet
	if code := s.do("GET", path, bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-member channels: status %d, want 403", code)
	}
	if code := s.do("POST", path, bob, handlers.NameRequest{Name: "spam"}, nil); code != http.StatusForbidden {
		t.Fatalf("non-owner create channel: status %d, want 403", code)
	}

	var inv handlers.InviteResponse
	if code := s.do("POST", "/api/guilds/"+g.ID+"/invites", alice, nil, &inv); code != http.StatusCreated {
		t.Fatalf("create invite: status %d", code)
	}
	if code := s.do("POST", "/api/invites/join", bob, handlers.JoinRequest{Code: inv.Code}, nil); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}

	var chans []models.Channel
	if code := s.do("GET", path, bob, nil, &chans); code != http.StatusOK {
		t.Fatalf("member channels: status %d", code)
	}
	if len(chans) < 2 {
		t.Fatalf("channels = %d, want default plus news", len(chans))
	}

	ro := "/api/guilds/" + g.ID + "/channels/" + ch.ID + "/read_only"
	if code := s.do("POST", ro, bob, handlers.ReadOnlyRequest{ReadOnly: true}, nil); code != http.StatusForbidden {
		t.Fatalf("member read_only: status %d, want 403", code)
	}
	var updated models.Channel
	if code := s.do("POST", ro, alice, handlers.ReadOnlyRequest{ReadOnly: true}, &updated); code != http.StatusOK {
		t.Fatalf("owner read_only: status %d", code)
	}
	if !updated.ReadOnly {
		t.Fatalf("channel not read-only")
	}

	room := roomkey.Channel(g.ID, ch.ID).String()
	var page models.Page
	if code := s.do("GET", "/api/rooms/"+room+"/messages?page=1&limit=10", bob, nil, &page); code != http.StatusOK {
		t.Fatalf("messages: status %d", code)
	}
	if page.Total != 0 || page.Room != room {
		t.Fatalf("unexpected page: %+v", page)
	}

	if code := s.do("DELETE", "/api/guilds/"+g.ID, bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("member delete guild: status %d, want 403", code)
	}
	if code := s.do("DELETE", "/api/guilds/"+g.ID, alice, nil, nil); code != http.StatusNoContent {
		t.Fatalf("owner delete guild: status %d", code)
	}
	if code := s.do("GET", "/api/guilds/"+g.ID, alice, nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted guild: status %d, want 404", code)
	}
}

func TestFriendActions(t *testing.T) {
	s := newTestServer(t)
	alice := s.login("alice")
	bob := s.login("bob")
	carol := s.login("carol")

	if code := s.do("POST", "/api/friends/request", alice, handlers.FriendRequest{Username: "carol"}, nil); code != http.StatusOK {
		t.Fatalf("request: status %d", code)
	}
	if code := s.do("POST", "/api/friends/request", alice, handlers.FriendRequest{Username: "carol"}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate request: status %d, want 409", code)
	}

	var st models.FriendStatus
	if code := s.do("POST", "/api/friends/accept", carol, handlers.FriendRequest{Username: "alice"}, &st); code != http.StatusOK {
		t.Fatalf("accept: status %d", code)
	}
	found := false
	for _, f := range st.Friends {
		found = found || f == "alice"
	}
	if !found {
		t.Fatalf("carol friends = %v", st.Friends)
	}

	if code := s.do("POST", "/api/friends/bogus", bob, handlers.FriendRequest{Username: "alice"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown action: status %d, want 404", code)
	}
	if code := s.do("POST", "/api/friends/request", bob, handlers.FriendRequest{Username: "nobody"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown user: status %d, want 400", code)
	}

	var users []models.PublicUser
	if code := s.do("GET", "/api/user_search?q=car", bob, nil, &users); code != http.StatusOK {
		t.Fatalf("search: status %d", code)
	}
	if len(users) != 1 || users[0].Username != "carol" {
		t.Fatalf("search = %+v", users)
	}
}

func TestNotes(t *testing.T) {
	s := newTestServer(t)
	alice := s.login("alice")
	bob := s.login("bob")

	var notes map[string]string
	if code := s.do("POST", "/api/notes", alice, handlers.NoteRequest{Target: "bob", Note: "plays bass"}, &notes); code != http.StatusOK {
		t.Fatalf("set note: status %d", code)
	}
	if notes["bob"] != "plays bass" {
		t.Fatalf("notes = %v", notes)
	}
	if code := s.do("POST", "/api/notes", alice, handlers.NoteRequest{Target: "nobody", Note: "x"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown target: status %d, want 400", code)
	}

	notes = nil
	if code := s.do("GET", "/api/notes", bob, nil, &notes); code != http.StatusOK {
		t.Fatalf("bob notes: status %d", code)
	}
	if len(notes) != 0 {
		t.Fatalf("notes visible to another user: %v", notes)
	}

	if code := s.do("POST", "/api/notes", alice, handlers.NoteRequest{Target: "bob"}, &notes); code != http.StatusOK {
		t.Fatalf("clear note: status %d", code)
	}
	if len(notes) != 0 {
		t.Fatalf("cleared notes = %v", notes)
	}
}

func TestUploadAndServeFile(t *testing.T) {
	s := newTestServer(t)
	token := s.login("alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write([]byte("hello oleg"))
	mw.Close()

	req, _ := http.NewRequest("POST", s.srv.URL+"/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var a models.Attachment
	if code := s.send(req, token, &a); code != http.StatusCreated {
		t.Fatalf("upload: status %d", code)
	}
	if !strings.HasPrefix(a.URL, blob.URLPrefix) {
		t.Fatalf("attachment url = %q", a.URL)
	}

	resp, err := http.Get(s.srv.URL + a.URL)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "hello oleg" {
		t.Fatalf("file: status %d body %q", resp.StatusCode, body)
	}

	if code := s.do("GET", "/files/.hidden", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("hidden file: status %d, want 404", code)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, "root")
	root := s.login("root")
	alice := s.login("alice")

	if code := s.do("GET", "/api/admin/export", alice, nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-admin export: status %d, want 403", code)
	}

	var doc map[string]json.RawMessage
	if code := s.do("GET", "/api/admin/export", root, nil, &doc); code != http.StatusOK {
		t.Fatalf("export: status %d", code)
	}
	if _, ok := doc["users"]; !ok {
		t.Fatalf("export missing users: %v", doc)
	}

	var stats engine.Stats
	if code := s.do("POST", "/api/admin/import", root, doc, &stats); code != http.StatusOK {
		t.Fatalf("import: status %d", code)
	}
	if stats.Users != 2 {
		t.Fatalf("users after import = %d, want 2", stats.Users)
	}

	if code := s.do("POST", "/api/admin/import", root, "not a snapshot", nil); code != http.StatusBadRequest {
		t.Fatalf("bad import: status %d, want 400", code)
	}
}

func TestHealthAndRoot(t *testing.T) {
	s := newTestServer(t)

	var health handlers.HealthResponse
	if code := s.do("GET", "/health", "", nil, &health); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if health.Status != "healthy" || health.Checks["redis"].Status != "skip" {
		t.Fatalf("unexpected health: %+v", health)
	}

	var root handlers.RootResponse
	if code := s.do("GET", "/", "", nil, &root); code != http.StatusOK || root.Name != "Oleg" {
		t.Fatalf("root: status %d %+v", code, root)
	}
	if code := s.do("GET", "/nope", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown route: status %d", code)
	}
}
