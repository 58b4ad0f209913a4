package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"golang.org/x/crypto/bcrypt"
)

type MockUserReader struct {
	mock.Mock
}

func (m *MockUserReader) GetUser(ctx context.Context, id uuid.UUID) (*catalog.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.User), args.Error(1)
}

func (m *MockUserReader) GetUserByEmail(ctx context.Context, email string) (*catalog.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.User), args.Error(1)
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	subject := uuid.Must(uuid.NewV4())

	raw, expiresAt, err := tokens.Issue(subject, "Ana")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, subject, got)
}

func TestTokens_Rejections(t *testing.T) {
	subject := uuid.Must(uuid.NewV4())
	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }

	expired, _, err := auth.NewTokens("secret", time.Hour).WithClock(past).Issue(subject, "Ana")
	require.NoError(t, err)
	foreign, _, err := auth.NewTokens("other-secret", time.Hour).Issue(subject, "Ana")
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		wantReason string
	}{
		{name: "missing", token: "", wantReason: "missing access token"},
		{name: "expired", token: expired, wantReason: "access token expired"},
		{name: "wrong_signature", token: foreign, wantReason: "invalid access token"},
		{name: "garbage", token: "not.a.jwt", wantReason: "invalid access token"},
	}

	tokens := auth.NewTokens("secret", time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			require.ErrorIs(t, err, apperr.ErrUnauthorized)
			assert.Equal(t, tt.wantReason, auth.Reason(err))
		})
	}
}

func TestService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &catalog.User{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         "Ana",
		Email:        "ana@example.com",
		PasswordHash: string(hash),
		Roles:        []string{"staff", "manager"},
	}

	users := new(MockUserReader)
	users.On("GetUserByEmail", mock.Anything, "ana@example.com").Return(user, nil)
	users.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, apperr.NotFound("user", "ghost@example.com"))

	svc := auth.NewService(users, auth.NewTokens("secret", time.Hour))

	session, err := svc.Login(context.Background(), "ana@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.Principal.IsManager())

	_, err = svc.Login(context.Background(), "ana@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	users.AssertExpectations(t)
}

func TestService_Authenticate_DeletedUser(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	subject := uuid.Must(uuid.NewV4())
	raw, _, err := tokens.Issue(subject, "Rui")
	require.NoError(t, err)

	users := new(MockUserReader)
	users.On("GetUser", mock.Anything, subject).Return(nil, apperr.NotFound("user", subject)).Once()

	_, err = auth.NewService(users, tokens).Authenticate(context.Background(), raw)
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Equal(t, "user no longer exists", auth.Reason(err))
}

func TestPrincipal_Capabilities(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	staff := auth.NewPrincipal(id, "s", []string{"staff", "staff"})
	manager := auth.NewPrincipal(id, "m", []string{"staff", "manager"})
	svc := auth.NewPrincipal(id, "menu-service", []string{"service"})

	assert.Len(t, staff.Roles, 1, "duplicate labels collapse")
	assert.False(t, staff.IsManager())
	assert.False(t, staff.Can(auth.CapPublishEvents))
	assert.True(t, manager.IsManager())
	assert.True(t, manager.Can(auth.CapPublishEvents))
	assert.False(t, svc.IsManager())
	assert.True(t, svc.Can(auth.CapPublishEvents))
}

func TestMiddleware(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Hour)
	user := &catalog.User{ID: uuid.Must(uuid.NewV4()), Name: "Ana", Roles: []string{"staff"}}
	raw, _, err := tokens.Issue(user.ID, user.Name)
	require.NoError(t, err)

	users := new(MockUserReader)
	users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
	svc := auth.NewService(users, tokens)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, found := auth.PrincipalFrom(r.Context())
		require.True(t, found)
		assert.Equal(t, user.ID, p.Subject)
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name    string
		header  string
		handler http.Handler
		want    int
	}{
		{name: "no_token", handler: auth.Middleware(svc)(ok), want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + raw, handler: auth.Middleware(svc)(ok), want: http.StatusNoContent},
		{name: "not_manager", header: "Bearer " + raw, handler: auth.Middleware(svc)(auth.Require(auth.CapManage)(ok)), want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			tt.handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", auth.TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Sec-WebSocket-Protocol", "access_token, from-protocol")
	assert.Equal(t, "from-protocol", auth.TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", auth.TokenFromRequest(req))
}
