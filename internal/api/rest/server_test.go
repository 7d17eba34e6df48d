package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/yedhukrishnan/performance-backend/internal/api/websocket"
	"github.com/yedhukrishnan/performance-backend/internal/auth"
	"github.com/yedhukrishnan/performance-backend/internal/config"
	"github.com/yedhukrishnan/performance-backend/internal/counter"
	"github.com/yedhukrishnan/performance-backend/internal/fanout"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/live"
	"github.com/yedhukrishnan/performance-backend/internal/registry"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"github.com/yedhukrishnan/performance-backend/internal/stream"
	"github.com/yedhukrishnan/performance-backend/internal/types"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
	"go.uber.org/zap"
)

const cookieName = "client_id"

// memoryBackend stands in for Postgres: articles, users and counter rows.
type memoryBackend struct {
	mu       sync.Mutex
	articles []storage.Article
	likes    map[uuid.UUID]map[identity.Identity]bool
	views    map[uuid.UUID]map[identity.Identity]bool
	users    map[uuid.UUID]*storage.User
	refresh  map[string]uuid.UUID
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		likes:   make(map[uuid.UUID]map[identity.Identity]bool),
		views:   make(map[uuid.UUID]map[identity.Identity]bool),
		users:   make(map[uuid.UUID]*storage.User),
		refresh: make(map[string]uuid.UUID),
	}
}

func (m *memoryBackend) addArticle(title string, at time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := storage.Article{ID: uuid.New(), Title: title, Timestamp: at, Categories: []storage.Category{}}
	m.articles = append(m.articles, a)
	return a.ID
}

func (m *memoryBackend) find(id uuid.UUID) (storage.Article, bool) {
	for _, a := range m.articles {
		if a.ID == id {
			return a, true
		}
	}
	return storage.Article{}, false
}

func (m *memoryBackend) GetArticle(_ context.Context, id uuid.UUID) (*storage.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.find(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	a.Likes = int64(len(m.likes[id]))
	a.Views = int64(len(m.views[id]))
	return &a, nil
}

func (m *memoryBackend) ListArticles(_ context.Context, q storage.ListQuery) ([]storage.ArticleSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ArticleSummary
	// articles are added newest first
	for _, a := range m.articles {
		if q.Cursor != nil && !a.Timestamp.Before(*q.Cursor) {
			continue
		}
		out = append(out, storage.ArticleSummary{ID: a.ID, Title: a.Title, Timestamp: a.Timestamp})
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *memoryBackend) SearchArticles(_ context.Context, term string, _ *uuid.UUID, limit int) ([]storage.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.SearchHit
	for _, a := range m.articles {
		if strings.Contains(strings.ToLower(a.Title), strings.ToLower(term)) && len(out) < limit {
			out = append(out, storage.SearchHit{ID: a.ID, Title: a.Title})
		}
	}
	return out, nil
}

func (m *memoryBackend) ListCategories(context.Context) ([]storage.Category, error) {
	return []storage.Category{{ID: uuid.New(), Name: "Science"}}, nil
}

func (m *memoryBackend) record(set map[uuid.UUID]map[identity.Identity]bool, articleID uuid.UUID, id identity.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(articleID); !ok {
		return storage.ErrNotFound
	}
	if set[articleID] == nil {
		set[articleID] = make(map[identity.Identity]bool)
	}
	if set[articleID][id] {
		return storage.ErrDuplicateAction
	}
	set[articleID][id] = true
	return nil
}

func (m *memoryBackend) RecordLike(_ context.Context, articleID uuid.UUID, id identity.Identity) error {
	return m.record(m.likes, articleID, id)
}

func (m *memoryBackend) RecordView(_ context.Context, articleID uuid.UUID, id identity.Identity) error {
	return m.record(m.views, articleID, id)
}

func (m *memoryBackend) CountLikes(_ context.Context, articleID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.likes[articleID])), nil
}

func (m *memoryBackend) CountViews(_ context.Context, articleID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.views[articleID])), nil
}

func (m *memoryBackend) HasLiked(_ context.Context, articleID uuid.UUID, id identity.Identity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.likes[articleID][id], nil
}

func (m *memoryBackend) HasViewed(_ context.Context, articleID uuid.UUID, id identity.Identity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views[articleID][id], nil
}

func (m *memoryBackend) CreateUser(_ context.Context, username, email, hash string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return nil, storage.ErrAlreadyExists
		}
	}
	u := &storage.User{ID: uuid.New(), Username: username, Email: email, PasswordHash: hash}
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryBackend) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memoryBackend) GetUserByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memoryBackend) UpdateLastLogin(context.Context, uuid.UUID) error { return nil }

func (m *memoryBackend) UpdatePasswordHash(context.Context, uuid.UUID, string) error { return nil }

func (m *memoryBackend) StoreRefreshToken(_ context.Context, id uuid.UUID, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[hash] = id
	return nil
}

func (m *memoryBackend) GetRefreshToken(_ context.Context, hash string) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.refresh[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &id, nil
}

func (m *memoryBackend) RevokeRefreshToken(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, hash)
	return nil
}

type ServerSuite struct {
	suite.Suite
	backend  *memoryBackend
	mr       *miniredis.Miniredis
	redis    *redis.Client
	registry *registry.Registry
	server   *Server
	http     *httptest.Server
	cancel   context.CancelFunc
	article  uuid.UUID
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.T().Setenv("PB_TEST_JWT_SECRET", strings.Repeat("x", 40))

	s.backend = newMemoryBackend()
	s.article = s.backend.addArticle("Streaming counters", time.Now().Add(-time.Hour))

	s.mr = miniredis.RunT(s.T())
	s.redis = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.registry = registry.New(s.redis, time.Minute, zap.NewNop())
	table := live.NewTable()
	streams := stream.NewManager(s.registry, table, 8, 50*time.Millisecond, zap.NewNop())

	authService := auth.NewAuthService(s.backend, config.AuthConfig{
		JWTSecretEnv:    "PB_TEST_JWT_SECRET",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
		Password:        config.PasswordConfig{MemoryKiB: 1024, Iterations: 1, Parallelism: 1},
	}, zap.NewNop())

	validator, err := validation.New()
	s.Require().NoError(err)

	hub := websocket.NewHub(streams, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go hub.Run(ctx)

	s.server = NewServer(&config.Config{}, Dependencies{
		Articles:  s.backend,
		Counters:  counter.NewService(s.backend, fanout.NewPublisher(s.registry, table, zap.NewNop()), zap.NewNop()),
		Auth:      authService,
		Resolver:  identity.NewResolver(authService.JWT(), cookieName, time.Hour),
		Streams:   streams,
		Validator: validator,
		WSHub:     hub,
		Health:    map[string]Pinger{"redis": s.registry},
	}, zap.NewNop())
	s.http = httptest.NewServer(s.server.Handler())
}

func (s *ServerSuite) TearDownTest() {
	s.http.Close()
	s.cancel()
	_ = s.redis.Close()
}

type request struct {
	method   string
	path     string
	body     string
	clientID string
	token    string
}

func (s *ServerSuite) do(r request) *httptest.ResponseRecorder {
	var req *http.Request
	if r.body != "" {
		req = httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(r.method, r.path, nil)
	}
	if r.clientID != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: r.clientID})
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	w := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(w, req)
	return w
}

func (s *ServerSuite) signup(username string) string {
	w := s.do(request{method: http.MethodPost, path: "/api/signup",
		body: `{"username":"` + username + `","email":"` + username + `@example.com","password":"longenough"}`})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp LoginResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(username, resp.Username)
	s.Equal("Bearer", resp.TokenType)
	return resp.AccessToken
}

func (s *ServerSuite) errorCode(w *httptest.ResponseRecorder) string {
	var resp types.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error.Code
}

func (s *ServerSuite) likeBody() string {
	return `{"artId":"` + s.article.String() + `"}`
}

// openSSE connects to the stream endpoint and returns a line reader.
func (s *ServerSuite) openSSE(clientID string) (*bufio.Reader, func()) {
	req, err := http.NewRequest(http.MethodGet, s.http.URL+"/api/sse/like-count/"+s.article.String(), nil)
	s.Require().NoError(err)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: clientID})

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))
	s.Equal("no-cache", resp.Header.Get("Cache-Control"))

	return bufio.NewReader(resp.Body), func() { _ = resp.Body.Close() }
}

// nextData returns the next "data:" payload, skipping heartbeats.
func (s *ServerSuite) nextData(r *bufio.Reader) string {
	lines := make(chan string, 1)
	go func() {
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			if strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				return
			}
		}
	}()

	select {
	case line, ok := <-lines:
		s.Require().True(ok, "stream ended")
		return line
	case <-time.After(2 * time.Second):
		s.FailNow("no event received")
		return ""
	}
}

func (s *ServerSuite) waitForSubscribers(n int) {
	s.Require().Eventually(func() bool {
		ids, err := s.registry.SubscribersOf(context.Background(), s.article)
		return err == nil && len(ids) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServerSuite) TestSSE_LikeReachesSubscriber() {
	reader, closeStream := s.openSSE(uuid.NewString())
	defer closeStream()
	s.waitForSubscribers(1)

	token := s.signup("liker")
	w := s.do(request{method: http.MethodPost, path: "/api/article/like", body: s.likeBody(), token: token})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.JSONEq(`{"likeCount":1}`, w.Body.String())

	s.JSONEq(`{"likeCount":1}`, s.nextData(reader))
}

func (s *ServerSuite) TestSSE_ViewReachesSubscriber() {
	reader, closeStream := s.openSSE(uuid.NewString())
	defer closeStream()
	s.waitForSubscribers(1)

	w := s.do(request{method: http.MethodPost, path: "/api/article/view", body: s.likeBody(), clientID: uuid.NewString()})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	s.JSONEq(`{"viewCount":1}`, s.nextData(reader))
}

func (s *ServerSuite) TestSSE_DisconnectUnsubscribes() {
	_, closeStream := s.openSSE(uuid.NewString())
	s.waitForSubscribers(1)

	closeStream()
	s.waitForSubscribers(0)
}

func (s *ServerSuite) TestSSE_MissingClientID() {
	w := s.do(request{method: http.MethodGet, path: "/api/sse/like-count/" + s.article.String()})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(types.CodeMissingClientID, s.errorCode(w))
	s.Empty(w.Result().Cookies())
}

func (s *ServerSuite) TestSSE_InvalidArticleID() {
	w := s.do(request{method: http.MethodGet, path: "/api/sse/like-count/not-a-uuid", clientID: uuid.NewString()})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(types.CodeBadRequest, s.errorCode(w))
}

func (s *ServerSuite) TestSSE_RegistryDown() {
	s.mr.SetError("ERR backend down")
	w := s.do(request{method: http.MethodGet, path: "/api/sse/like-count/" + s.article.String(), clientID: uuid.NewString()})
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal(types.CodeUnavailable, s.errorCode(w))
}

func (s *ServerSuite) TestLike_RequiresUser() {
	w := s.do(request{method: http.MethodPost, path: "/api/article/like", body: s.likeBody(), clientID: uuid.NewString()})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(types.CodeUnauthenticated, s.errorCode(w))
}

func (s *ServerSuite) TestLike_Duplicate() {
	token := s.signup("twice")
	first := s.do(request{method: http.MethodPost, path: "/api/article/like", body: s.likeBody(), token: token})
	s.Require().Equal(http.StatusCreated, first.Code)

	second := s.do(request{method: http.MethodPost, path: "/api/article/like", body: s.likeBody(), token: token})
	s.Equal(http.StatusConflict, second.Code)
	s.Equal(types.CodeDuplicateAction, s.errorCode(second))
}

func (s *ServerSuite) TestLike_RegistryDownStillSucceeds() {
	token := s.signup("offline")
	s.mr.SetError("ERR backend down")

	w := s.do(request{method: http.MethodPost, path: "/api/article/like", body: s.likeBody(), token: token})
	s.Equal(http.StatusCreated, w.Code)
	s.JSONEq(`{"likeCount":1}`, w.Body.String())
}

func (s *ServerSuite) TestLike_InvalidBody() {
	token := s.signup("sloppy")
	w := s.do(request{method: http.MethodPost, path: "/api/article/like", body: `{"artId":"nope"}`, token: token})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(types.CodeBadRequest, s.errorCode(w))
}

func (s *ServerSuite) TestLike_UnknownArticle() {
	token := s.signup("lost")
	w := s.do(request{method: http.MethodPost, path: "/api/article/like",
		body: `{"artId":"` + uuid.NewString() + `"}`, token: token})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *ServerSuite) TestView_AnonymousTwice() {
	client := uuid.NewString()
	first := s.do(request{method: http.MethodPost, path: "/api/article/view", body: s.likeBody(), clientID: client})
	s.Require().Equal(http.StatusCreated, first.Code)
	s.JSONEq(`{"viewCount":1}`, first.Body.String())

	second := s.do(request{method: http.MethodPost, path: "/api/article/view", body: s.likeBody(), clientID: client})
	s.Equal(http.StatusConflict, second.Code)

	w := s.do(request{method: http.MethodGet, path: "/api/article/" + s.article.String(), clientID: client})
	s.Require().Equal(http.StatusOK, w.Code)
	var resp ArticleResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(int64(1), resp.Article.Views)
	s.True(resp.IsViewed)
	s.False(resp.IsLiked)
}

func (s *ServerSuite) TestView_MintsClientCookie() {
	w := s.do(request{method: http.MethodPost, path: "/api/article/view", body: s.likeBody()})
	s.Equal(http.StatusCreated, w.Code)

	var minted *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			minted = c
		}
	}
	s.Require().NotNil(minted)
	_, err := uuid.Parse(minted.Value)
	s.NoError(err)
	s.True(minted.HttpOnly)
}

func (s *ServerSuite) TestGetArticle() {
	w := s.do(request{method: http.MethodGet, path: "/api/article/" + uuid.NewString(), clientID: uuid.NewString()})
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/article/bad", clientID: uuid.NewString()})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerSuite) TestListArticles_Pagination() {
	now := time.Now()
	for i := 0; i < 3; i++ {
		s.backend.addArticle("older", now.Add(-time.Duration(i+2)*time.Hour))
	}

	w := s.do(request{method: http.MethodGet, path: "/api/articles/" + uuid.Nil.String() + "?limit=2"})
	s.Require().Equal(http.StatusOK, w.Code)
	var page ArticleListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &page))
	s.Len(page.Articles, 2)
	s.Require().NotNil(page.NextCursor)

	w = s.do(request{method: http.MethodGet,
		path: "/api/articles/" + uuid.Nil.String() + "?limit=2&cursor=" + url.QueryEscape(page.NextCursor.Format(time.RFC3339Nano))})
	s.Require().Equal(http.StatusOK, w.Code)
	var rest ArticleListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &rest))
	s.Len(rest.Articles, 2)

	// A short page still points past its last row; only an empty page ends the scroll.
	w = s.do(request{method: http.MethodGet, path: "/api/articles/" + uuid.Nil.String() + "?limit=50"})
	s.Require().Equal(http.StatusOK, w.Code)
	var all ArticleListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &all))
	s.Require().NotEmpty(all.Articles)
	s.Less(len(all.Articles), 50)
	s.Require().NotNil(all.NextCursor)
	s.True(all.NextCursor.Equal(all.Articles[len(all.Articles)-1].Timestamp))

	w = s.do(request{method: http.MethodGet,
		path: "/api/articles/" + uuid.Nil.String() + "?cursor=" + url.QueryEscape(all.NextCursor.Format(time.RFC3339Nano))})
	s.Require().Equal(http.StatusOK, w.Code)
	var end ArticleListResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &end))
	s.Empty(end.Articles)
	s.Nil(end.NextCursor)

	w = s.do(request{method: http.MethodGet, path: "/api/articles/" + uuid.Nil.String() + "?cursor=yesterday"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *ServerSuite) TestSearchArticles() {
	w := s.do(request{method: http.MethodGet, path: "/api/articles/s/" + uuid.Nil.String() + "?term=stream"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Streaming counters")

	w = s.do(request{method: http.MethodGet, path: "/api/articles/s/" + uuid.Nil.String()})
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"articles":[]}`, w.Body.String())
}

func (s *ServerSuite) TestCategories() {
	w := s.do(request{method: http.MethodGet, path: "/api/categories"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Science")
}

func (s *ServerSuite) TestAuthFlow() {
	token := s.signup("reader")

	w := s.do(request{method: http.MethodGet, path: "/api/me", token: token})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"username":"reader"`)
	s.NotContains(w.Body.String(), "password")

	w = s.do(request{method: http.MethodPost, path: "/api/login", body: `{"username":"reader","password":"wrong"}`})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(request{method: http.MethodPost, path: "/api/signup",
		body: `{"username":"reader","email":"again@example.com","password":"longenough"}`})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/me"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ServerSuite) TestHealth() {
	w := s.do(request{method: http.MethodGet, path: "/health"})
	s.Equal(http.StatusOK, w.Code)

	s.mr.SetError("ERR backend down")
	w = s.do(request{method: http.MethodGet, path: "/health"})
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(w.Body.String(), `"redis":"down"`)
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"http://localhost:3000"})

	w := httptest.NewRecorder()
	c, _ := ginContext(w, http.MethodOptions, "http://localhost:3000")
	handler(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	c, _ = ginContext(w, http.MethodGet, "http://evil.example")
	handler(c)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestImmutableCacheMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := ginContext(w, http.MethodGet, "")
	c.Request.URL.Path = "/images/hero.jpg"
	ImmutableCacheMiddleware()(c)
	require.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
}

func ginContext(w *httptest.ResponseRecorder, method, origin string) (*gin.Context, *gin.Engine) {
	gin.SetMode(gin.TestMode)
	c, engine := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", nil)
	if origin != "" {
		c.Request.Header.Set("Origin", origin)
	}
	return c, engine
}
