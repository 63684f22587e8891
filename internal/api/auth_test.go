package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func authRouter(users *fakeUsers, tenants *fakeTenants) http.Handler {
	return newRouter(Handlers{
		Auth:  NewAuthHandler(users, tenants, testSecret, zap.NewNop()),
		Users: NewUserHandler(users, zap.NewNop()),
	})
}

func TestSignup_CreatesTenantAndUser(t *testing.T) {
	tenantID := uuid.New()
	var storedHash string

	users := &fakeUsers{
		create: func(_ context.Context, tid uuid.UUID, email, name, hash string) (*models.User, error) {
			storedHash = hash
			return &models.User{ID: uuid.New(), TenantID: tid, Email: email, DisplayName: name, CreatedAt: time.Now()}, nil
		},
	}
	tenants := &fakeTenants{create: func(_ context.Context, name string) (*models.Tenant, error) {
		return &models.Tenant{ID: tenantID, Name: name}, nil
	}}

	w := do(t, authRouter(users, tenants), request{
		method: http.MethodPost,
		path:   "/v1/auth/signup",
		body: jsonBody(t, map[string]string{
			"email":        "alice@example.com",
			"password":     "correct-horse",
			"display_name": "Alice",
			"tenant_name":  "Acme",
		}),
		contentType: "application/json",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp authResponse
	decode(t, w, &resp)
	claims, err := auth.ParseToken(resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.NotContains(t, w.Body.String(), storedHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHash), []byte("correct-horse")))
}

func TestSignup_EmailTaken(t *testing.T) {
	users := &fakeUsers{getByEmail: func(context.Context, string) (*models.User, error) {
		return &models.User{ID: uuid.New()}, nil
	}}

	w := do(t, authRouter(users, &fakeTenants{}), request{
		method: http.MethodPost,
		path:   "/v1/auth/signup",
		body: jsonBody(t, map[string]string{
			"email": "alice@example.com", "password": "correct-horse",
			"display_name": "Alice", "tenant_name": "Acme",
		}),
		contentType: "application/json",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSignup_InvalidBody(t *testing.T) {
	w := do(t, authRouter(&fakeUsers{}, &fakeTenants{}), request{
		method:      http.MethodPost,
		path:        "/v1/auth/signup",
		body:        jsonBody(t, map[string]string{"email": "nope", "password": "short"}),
		contentType: "application/json",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), TenantID: uuid.New(), Email: "alice@example.com", DisplayName: "Alice", PasswordHash: string(hash)}

	users := &fakeUsers{getByEmail: func(_ context.Context, email string) (*models.User, error) {
		if email == user.Email {
			return user, nil
		}
		return nil, nil
	}}
	r := authRouter(users, &fakeTenants{})

	tests := []struct {
		name     string
		email    string
		password string
		status   int
	}{
		{"valid", "alice@example.com", "correct-horse", http.StatusOK},
		{"wrong password", "alice@example.com", "battery-staple", http.StatusUnauthorized},
		{"unknown email", "bob@example.com", "correct-horse", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, request{
				method:      http.MethodPost,
				path:        "/v1/auth/login",
				body:        jsonBody(t, map[string]string{"email": tt.email, "password": tt.password}),
				contentType: "application/json",
			})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestLogin_StoreError(t *testing.T) {
	users := &fakeUsers{getByEmail: func(context.Context, string) (*models.User, error) {
		return nil, errors.New("db down")
	}}

	w := do(t, authRouter(users, &fakeTenants{}), request{
		method:      http.MethodPost,
		path:        "/v1/auth/login",
		body:        jsonBody(t, map[string]string{"email": "alice@example.com", "password": "x"}),
		contentType: "application/json",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestGetMe(t *testing.T) {
	alice := newIdentity("alice")
	users := &fakeUsers{getByID: func(_ context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
		if tenantID == alice.TenantID && userID == alice.UserID {
			return &models.User{ID: userID, TenantID: tenantID, DisplayName: "Alice"}, nil
		}
		return nil, nil
	}}
	r := authRouter(users, &fakeTenants{})

	w := do(t, r, request{method: http.MethodGet, path: "/v1/users/me", as: &alice})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), alice.UserID.String())

	ghost := newIdentity("ghost")
	w = do(t, r, request{method: http.MethodGet, path: "/v1/users/me", as: &ghost})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, request{method: http.MethodGet, path: "/v1/users/me"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfile_HidesPrivateFields(t *testing.T) {
	alice := newIdentity("alice")
	bob := &models.User{ID: uuid.New(), TenantID: alice.TenantID, Email: "bob@example.com", DisplayName: "Bob", PasswordHash: "secret-hash"}
	users := &fakeUsers{getByID: func(_ context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
		if tenantID == bob.TenantID && userID == bob.ID {
			return bob, nil
		}
		return nil, nil
	}}
	r := authRouter(users, &fakeTenants{})

	w := do(t, r, request{method: http.MethodGet, path: "/v1/users/" + bob.ID.String(), as: &alice})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"display_name":"Bob"`)
	assert.NotContains(t, w.Body.String(), "bob@example.com")

	stranger := newIdentity("mallory")
	w = do(t, r, request{method: http.MethodGet, path: "/v1/users/" + bob.ID.String(), as: &stranger})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, request{method: http.MethodGet, path: "/v1/users/not-a-uuid", as: &alice})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
