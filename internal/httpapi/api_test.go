package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"BookSnippetCollector/internal/auth"
	"BookSnippetCollector/internal/domain"
	"BookSnippetCollector/internal/media"
	"BookSnippetCollector/internal/service"
	"BookSnippetCollector/internal/store/memory"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (s *memoryStorage) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return "https://img.example.com/" + key, nil
}

func (s *memoryStorage) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
		s.deleted = append(s.deleted, k)
	}
	return nil
}

type recordingResetMailer struct {
	mu   sync.Mutex
	urls []string
}

func (m *recordingResetMailer) SendPasswordReset(_ context.Context, _, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, resetURL)
	return nil
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
	storage *memoryStorage
	mailer  *recordingResetMailer
	now     time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:   memory.New(),
		storage: &memoryStorage{},
		mailer:  &recordingResetMailer{},
		now:     time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return ts.now }
	ts.store.SetClock(clock)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash := func(p string) (string, error) {
		b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
		return string(b), err
	}
	mediaSvc := media.NewService(ts.storage, logger)
	authSvc := &service.AuthService{Users: ts.store, Sessions: ts.store, SessionTTL: time.Hour, Now: clock, HashPassword: hash}

	ts.handler = NewRouter(RouterOpts{
		Logger: logger,
		Auth:   authSvc,
		Reset: &service.PasswordResetService{
			Users:        ts.store,
			Sessions:     authSvc,
			Mailer:       ts.mailer,
			FrontendURL:  "http://app.test",
			Now:          clock,
			Logger:       logger,
			HashPassword: hash,
			Dispatch:     func(fn func()) { fn() },
		},
		Snippets:    &service.SnippetService{Store: ts.store, Media: mediaSvc, Logger: logger},
		Profile:     &service.ProfileService{Store: ts.store, Media: mediaSvc},
		Account:     &service.AccountService{Users: ts.store, Snippets: ts.store, Sessions: ts.store, Media: mediaSvc, Now: clock, Logger: logger},
		Cookies:     auth.NewSessionCookies([]byte("0123456789abcdef0123456789abcdef"), time.Hour, false),
		FrontendURL: "http://app.test",
		CORSOrigins: []string{"http://app.test"},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session != nil {
		req.AddCookie(session)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) doJSON(t *testing.T, method, path string, v any, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return ts.do(t, method, path, body, "application/json", session)
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func (ts *testServer) signup(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rr := ts.doJSON(t, http.MethodPost, "/api/auth/register", credentialsRequest{Email: email, Password: password}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	rr = ts.doJSON(t, http.MethodPost, "/api/auth/login", credentialsRequest{Email: email, Password: password}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	return sessionCookie(t, rr)
}

type snippetForm struct {
	fields map[string]string
	image  []byte
}

func (f snippetForm) encode(t *testing.T, fileField string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range f.fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if f.image != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="cover.png"`, fileField))
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if _, err := part.Write(f.image); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) createSnippet(t *testing.T, session *http.Cookie, f snippetForm) snippetView {
	t.Helper()
	body, ct := f.encode(t, snippetImageField)
	rr := ts.do(t, http.MethodPost, "/api/snippets", body, ct, session)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create snippet: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var out snippetView
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode snippet: %v", err)
	}
	return out
}

func (ts *testServer) listSnippets(t *testing.T, session *http.Cookie, query string) []snippetView {
	t.Helper()
	rr := ts.do(t, http.MethodGet, "/api/snippets"+query, nil, "", session)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var out []snippetView
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, rr.Body.String())
	}
	return env.Error.Code
}

func TestRegisterDuplicateEmailAnyCase(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "reader@example.com", "secret123")

	rr := ts.doJSON(t, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "READER@Example.com", Password: "other123"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "email_taken" {
		t.Fatalf("unexpected code: %s", code)
	}
}

func TestRegisterValidatesBeforeStoring(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.doJSON(t, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "reader@example.com", Password: "123"}, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "validation_error" {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
	if _, err := ts.store.GetUserByEmail(context.Background(), "reader@example.com"); err == nil {
		t.Fatalf("user stored despite validation failure")
	}
}

func TestCredentialsReportOnlyMissingFields(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		path string
		req  credentialsRequest
		want string
	}{
		{"/api/auth/register", credentialsRequest{Email: "reader@example.com"}, "password"},
		{"/api/auth/register", credentialsRequest{Password: "secret123"}, "email"},
		{"/api/auth/login", credentialsRequest{Email: "reader@example.com"}, "password"},
		{"/api/auth/login", credentialsRequest{Password: "secret123"}, "email"},
	}
	for _, tc := range cases {
		rr := ts.doJSON(t, http.MethodPost, tc.path, tc.req, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s %+v: unexpected status %d", tc.path, tc.req, rr.Code)
		}
		var env errorEnvelope
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(env.Error.Fields) != 1 || env.Error.Fields[tc.want] == "" {
			t.Fatalf("%s %+v: unexpected fields %v", tc.path, tc.req, env.Error.Fields)
		}
	}
}

func TestLoginFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "reader@example.com", "secret123")
	if _, err := ts.store.CreateUser(context.Background(), domain.User{Email: "g@example.com", Credentials: domain.OAuthCredentials("sub-1")}); err != nil {
		t.Fatalf("create oauth user: %v", err)
	}

	cases := []credentialsRequest{
		{Email: "reader@example.com", Password: "wrong-password"},
		{Email: "ghost@example.com", Password: "secret123"},
		{Email: "g@example.com", Password: "secret123"},
	}
	for _, c := range cases {
		rr := ts.doJSON(t, http.MethodPost, "/api/auth/login", c, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: unexpected status %d", c.Email, rr.Code)
		}
		for _, ck := range rr.Result().Cookies() {
			if ck.Name == auth.SessionCookieName && ck.Value != "" {
				t.Fatalf("%s: session issued on failed login", c.Email)
			}
		}
	}

	rr := ts.doJSON(t, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "g@example.com", Password: ""}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty password: unexpected status %d", rr.Code)
	}
}

func TestLoginResponseShape(t *testing.T) {
	ts := newTestServer(t)
	ts.doJSON(t, http.MethodPost, "/api/auth/register", credentialsRequest{Email: "reader@example.com", Password: "secret123"}, nil)

	rr := ts.doJSON(t, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "Reader@example.com", Password: "secret123"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Login successful" || resp.User.Email != "reader@example.com" || !resp.User.HasPassword {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/snippets"},
		{http.MethodGet, "/api/snippets/random"},
		{http.MethodPost, "/api/snippets"},
		{http.MethodGet, "/api/user/me"},
		{http.MethodPatch, "/api/user/update-details"},
		{http.MethodDelete, "/api/user/delete-account"},
		{http.MethodGet, "/api/auth/logout"},
	} {
		rr := ts.do(t, tc.method, tc.path, nil, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: unexpected status %d", tc.method, tc.path, rr.Code)
		}
	}

	forged := &http.Cookie{Name: auth.SessionCookieName, Value: "made-up.c2ln"}
	if rr := ts.do(t, http.MethodGet, "/api/user/me", nil, "", forged); rr.Code != http.StatusUnauthorized {
		t.Fatalf("forged cookie: unexpected status %d", rr.Code)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	rr := ts.do(t, http.MethodGet, "/api/auth/logout", nil, "", session)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: unexpected status %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/user/me", nil, "", session); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected stale session rejected, got %d", rr.Code)
	}
}

func TestSnippetListingIsScopedToOwner(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice@example.com", "secret123")
	bob := ts.signup(t, "bob@example.com", "secret123")

	ts.createSnippet(t, alice, snippetForm{fields: map[string]string{"text": "mine", "emotion": "Hope"}})
	for range 3 {
		ts.createSnippet(t, bob, snippetForm{fields: map[string]string{"text": "bob's", "emotion": "Wisdom"}})
	}

	got := ts.listSnippets(t, alice, "")
	if len(got) != 1 || got[0].Text != "mine" {
		t.Fatalf("unexpected snippets for alice: %+v", got)
	}
}

func TestSnippetFilterComposition(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	hope := ts.createSnippet(t, session, snippetForm{fields: map[string]string{"text": "hope", "emotion": "Hope"}})
	ts.now = ts.now.Add(time.Minute)
	dark := ts.createSnippet(t, session, snippetForm{fields: map[string]string{"text": "dark", "emotion": "Sadness"}, image: pngHeader})
	if dark.ImageURL == nil || !strings.HasPrefix(*dark.ImageURL, "https://img.example.com/snippets/") {
		t.Fatalf("expected stored image url, got %v", dark.ImageURL)
	}

	cases := []struct {
		query string
		want  []string
	}{
		{query: "?emotion=Hope", want: []string{hope.ID}},
		{query: "?hasImage=true", want: []string{dark.ID}},
		{query: "?hasImage=false", want: []string{hope.ID}},
		{query: "?search=DAR", want: []string{dark.ID}},
		{query: "?emotion=Hope&hasImage=true", want: nil},
		{query: "?emotion=Rage", want: nil},
		{query: "", want: []string{dark.ID, hope.ID}},
		{query: "?sort=desc", want: []string{dark.ID, hope.ID}},
		{query: "?sort=asc", want: []string{hope.ID, dark.ID}},
	}
	for _, tc := range cases {
		got := ts.listSnippets(t, session, tc.query)
		if len(got) != len(tc.want) {
			t.Fatalf("%q: expected %d snippets, got %+v", tc.query, len(tc.want), got)
		}
		for i := range got {
			if got[i].ID != tc.want[i] {
				t.Fatalf("%q: position %d: expected %s, got %s", tc.query, i, tc.want[i], got[i].ID)
			}
		}
	}
}

func TestSnippetListRejectsBadParams(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	for _, q := range []string{"?hasImage=maybe", "?sort=sideways"} {
		rr := ts.do(t, http.MethodGet, "/api/snippets"+q, nil, "", session)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", q, rr.Code)
		}
	}
}

func TestSnippetCreateRequiresTextAndEmotion(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	body, ct := snippetForm{fields: map[string]string{"author": "Nobody"}, image: pngHeader}.encode(t, snippetImageField)
	rr := ts.do(t, http.MethodPost, "/api/snippets", body, ct, session)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if len(ts.storage.objects) != 0 {
		t.Fatalf("image uploaded despite validation failure")
	}
}

func TestSnippetCreateRejectsNonImage(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	body, ct := snippetForm{fields: map[string]string{"text": "x", "emotion": "Hope"}, image: []byte("plain text, not an image")}.encode(t, snippetImageField)
	rr := ts.do(t, http.MethodPost, "/api/snippets", body, ct, session)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d %s", rr.Code, rr.Body.String())
	}
	if got := ts.listSnippets(t, session, ""); len(got) != 0 {
		t.Fatalf("snippet stored despite bad image")
	}
}

func TestSnippetCreateRejectsOversizedImage(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, media.MaxImageSize+1)...)
	body, ct := snippetForm{fields: map[string]string{"text": "x", "emotion": "Hope"}, image: big}.encode(t, snippetImageField)
	rr := ts.do(t, http.MethodPost, "/api/snippets", body, ct, session)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestRandomSnippet(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	rr := ts.do(t, http.MethodGet, "/api/snippets/random", nil, "", session)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no snippets, got %d", rr.Code)
	}

	only := ts.createSnippet(t, session, snippetForm{fields: map[string]string{"text": "only", "emotion": "Peace"}})
	for range 5 {
		rr := ts.do(t, http.MethodGet, "/api/snippets/random", nil, "", session)
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status: %d", rr.Code)
		}
		var got snippetView
		if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != only.ID {
			t.Fatalf("expected %s, got %s", only.ID, got.ID)
		}
	}
}

func TestUpdateDetails(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")

	rr := ts.doJSON(t, http.MethodPatch, "/api/user/update-details", map[string]string{"name": "Reader", "bio": "likes books"}, session)
	if rr.Code != http.StatusOK {
		t.Fatalf("json update: unexpected status %d: %s", rr.Code, rr.Body.String())
	}

	body, ct := snippetForm{fields: map[string]string{"bio": "new bio"}, image: pngHeader}.encode(t, profilePictureField)
	rr = ts.do(t, http.MethodPatch, "/api/user/update-details", body, ct, session)
	if rr.Code != http.StatusOK {
		t.Fatalf("multipart update: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	var resp userEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Name != "Reader" || resp.User.Bio != "new bio" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
	if !strings.HasPrefix(resp.User.ProfilePictureURL, "https://img.example.com/profiles/") {
		t.Fatalf("unexpected picture url: %s", resp.User.ProfilePictureURL)
	}

	rr = ts.doJSON(t, http.MethodPatch, "/api/user/update-details", map[string]string{"bio": strings.Repeat("x", 251)}, session)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("long bio: unexpected status %d", rr.Code)
	}
}

func TestForgotPasswordSameResponse(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "reader@example.com", "secret123")

	known := ts.doJSON(t, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: "reader@example.com"}, nil)
	unknown := ts.doJSON(t, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: "ghost@example.com"}, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("unexpected statuses: %d %d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if len(ts.mailer.urls) != 1 {
		t.Fatalf("expected one reset mail, got %d", len(ts.mailer.urls))
	}
}

func TestResetPasswordFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "reader@example.com", "secret123")
	ts.doJSON(t, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: "reader@example.com"}, nil)
	if len(ts.mailer.urls) != 1 {
		t.Fatalf("expected reset mail")
	}
	token := strings.TrimPrefix(ts.mailer.urls[0], "http://app.test/reset-password/")

	rr := ts.doJSON(t, http.MethodPatch, "/api/user/reset-password/"+token, resetPasswordRequest{Password: "brandnew1"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: unexpected status %d: %s", rr.Code, rr.Body.String())
	}
	session := sessionCookie(t, rr)
	if rr := ts.do(t, http.MethodGet, "/api/user/me", nil, "", session); rr.Code != http.StatusOK {
		t.Fatalf("session after reset: unexpected status %d", rr.Code)
	}

	rr = ts.doJSON(t, http.MethodPatch, "/api/user/reset-password/"+token, resetPasswordRequest{Password: "another1"}, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_token" {
		t.Fatalf("reused token: unexpected response %d %s", rr.Code, rr.Body.String())
	}

	rr = ts.doJSON(t, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "reader@example.com", Password: "brandnew1"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login with new password: unexpected status %d", rr.Code)
	}
}

func TestResetPasswordExpired(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "reader@example.com", "secret123")
	ts.doJSON(t, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: "reader@example.com"}, nil)
	token := strings.TrimPrefix(ts.mailer.urls[0], "http://app.test/reset-password/")

	ts.now = ts.now.Add(10*time.Minute + time.Second)
	rr := ts.doJSON(t, http.MethodPatch, "/api/user/reset-password/"+token, resetPasswordRequest{Password: "brandnew1"}, nil)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != "invalid_token" {
		t.Fatalf("expired token: unexpected response %d %s", rr.Code, rr.Body.String())
	}

	// A fresh link issued after expiry still works.
	ts.doJSON(t, http.MethodPost, "/api/user/forgot-password", forgotPasswordRequest{Email: "reader@example.com"}, nil)
	if len(ts.mailer.urls) != 2 {
		t.Fatalf("expected a second reset mail, got %d", len(ts.mailer.urls))
	}
	fresh := strings.TrimPrefix(ts.mailer.urls[1], "http://app.test/reset-password/")
	rr = ts.doJSON(t, http.MethodPatch, "/api/user/reset-password/"+fresh, resetPasswordRequest{Password: "brandnew1"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fresh token: unexpected status %d %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteAccountRemovesEverything(t *testing.T) {
	ts := newTestServer(t)
	session := ts.signup(t, "reader@example.com", "secret123")
	ts.createSnippet(t, session, snippetForm{fields: map[string]string{"text": "a", "emotion": "Hope"}, image: pngHeader})
	ts.createSnippet(t, session, snippetForm{fields: map[string]string{"text": "b", "emotion": "Love"}})

	u, err := ts.store.GetUserByEmail(context.Background(), "reader@example.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}

	rr := ts.do(t, http.MethodDelete, "/api/user/delete-account", nil, "", session)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: unexpected status %d", rr.Code)
	}
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie cleared")
	}

	if rr := ts.do(t, http.MethodGet, "/api/snippets", nil, "", session); rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale session: unexpected status %d", rr.Code)
	}
	if got, _ := ts.store.ListSnippets(context.Background(), u.ID, domain.SnippetFilter{}); len(got) != 0 {
		t.Fatalf("expected no snippets left, got %d", len(got))
	}
	if len(ts.storage.objects) != 0 || len(ts.storage.deleted) != 1 {
		t.Fatalf("expected remote image deleted, objects=%d deleted=%v", len(ts.storage.objects), ts.storage.deleted)
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t)

	var last int
	for range 12 {
		rr := ts.doJSON(t, http.MethodPost, "/api/auth/login", credentialsRequest{Email: "ghost@example.com", Password: "whatever"}, nil)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", last)
	}
}

func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	ts := newTestServer(t)

	var last int
	for i := range 12 {
		body, err := json.Marshal(credentialsRequest{Email: fmt.Sprintf("ghost%d@example.com", i), Password: "whatever"})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		ts.handler.ServeHTTP(rr, req)
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit despite rotating X-Forwarded-For, got %d", last)
	}
}

func TestGoogleRoutesWithoutConfig(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/auth/google/login", nil, "", nil)
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestUnknownAPIRouteIsJSON404(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/nope", nil, "", nil)
	if rr.Code != http.StatusNotFound || errorCode(t, rr) != "not_found" {
		t.Fatalf("unexpected response: %d %s", rr.Code, rr.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/snippets", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://app.test" || rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("missing cors headers: %v", rr.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected cors header for foreign origin")
	}
}
