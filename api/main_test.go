package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgconn"
	db "github.com/katatrina/schoolhub-BE/internal/db/sqlc"
	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/tokenstore"
	"github.com/katatrina/schoolhub-BE/internal/util"
	"github.com/katatrina/schoolhub-BE/internal/worker"
	"github.com/stretchr/testify/require"
)

const testPassword = "Sch00l!pass"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]db.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]db.User)}
}

func (s *fakeUserStore) CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == arg.Email {
			return db.User{}, &pgconn.PgError{Code: db.UniqueViolationCode, ConstraintName: db.UniqueEmailConstraint}
		}
	}
	user := db.User{
		ID:             arg.ID,
		FullName:       arg.FullName,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		Role:           arg.Role,
		CreatedAt:      time.Now().UTC(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return db.User{}, db.ErrRecordNotFound
}

func (s *fakeUserStore) GetUserByID(ctx context.Context, id string) (db.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return db.User{}, db.ErrRecordNotFound
	}
	return u, nil
}

type fakeDistributor struct {
	mu       sync.Mutex
	payloads []worker.PayloadPublishNotification
}

func (d *fakeDistributor) DistributeTaskPublishNotification(ctx context.Context, payload *worker.PayloadPublishNotification, opts ...asynq.Option) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, *payload)
	return nil
}

func (d *fakeDistributor) Close() error { return nil }

type fakeInspector struct {
	tasks map[string]bool
}

func (i *fakeInspector) DeleteTask(ctx context.Context, queue, taskID string) error {
	if !i.tasks[taskID] {
		return worker.ErrTaskNotFound
	}
	delete(i.tasks, taskID)
	return nil
}

func (i *fakeInspector) GetTaskInfo(ctx context.Context, queue, taskID string) (*asynq.TaskInfo, error) {
	return nil, worker.ErrTaskNotFound
}

func (i *fakeInspector) Close() error { return nil }

type testEnv struct {
	server       *Server
	users        *fakeUserStore
	refreshStore *tokenstore.MemoryStore
	router       *notification.Router
	hub          *event.Hub
	distributor  *fakeDistributor
	inspector    *fakeInspector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	config := &util.Config{
		AllowedOrigins:       []string{"*"},
		TokenSecretKey:       "0123456789abcdef0123456789abcdef",
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
		StreamPingInterval:   time.Second,
	}

	hub := event.NewHub(event.WithFilter(notification.SubscriberCanView))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	env := &testEnv{
		users:        newFakeUserStore(),
		refreshStore: tokenstore.NewMemoryStore(),
		hub:          hub,
		distributor:  &fakeDistributor{},
		inspector:    &fakeInspector{tasks: make(map[string]bool)},
	}
	env.router = notification.NewRouter(notification.NewMemoryRepository(), hub)

	server, err := NewServer(config, env.users, env.router, env.refreshStore, hub, env.distributor, env.inspector)
	require.NoError(t, err)
	env.server = server
	return env
}

func (env *testEnv) createUser(t *testing.T, id string, role notification.Role) db.User {
	t.Helper()

	hashed, err := util.HashPassword(testPassword)
	require.NoError(t, err)

	user, err := env.users.CreateUser(context.Background(), db.CreateUserParams{
		ID:             id,
		FullName:       "Test User",
		Email:          id + "@school.edu",
		HashedPassword: hashed,
		Role:           role,
	})
	require.NoError(t, err)
	return user
}

func (env *testEnv) login(t *testing.T, user db.User) authResponse {
	t.Helper()

	recorder := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    user.Email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func (env *testEnv) do(t *testing.T, method, path, accessToken string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		request.Header.Set(authorizationHeaderKey, strings.Join([]string{authorizationTypeBearer, accessToken}, " "))
	}

	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, request)
	return recorder
}
