package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/riftvanta/tms062025/internal/auth"
	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/model"
)

type stubStorage struct {
	users map[int]model.User
}

func (s *stubStorage) GetUserByID(_ context.Context, id int) (model.User, error) {
	user, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrUserNotFound
	}
	return user, nil
}

func okHandler(got *model.User) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := r.Context().Value(UserContextKey).(model.User); ok {
			*got = user
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewarePutsUserIntoContext(t *testing.T) {
	tm := auth.NewTokenManager("testsecret")
	store := &stubStorage{users: map[int]model.User{
		7: {ID: 7, Username: "exchange1", Role: model.RoleExchange},
	}}

	token, err := tm.GenerateToken(7)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var got model.User
	handler := AuthMiddleware(store, tm)(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.ID != 7 || got.Role != model.RoleExchange {
		t.Errorf("unexpected user in context: %+v", got)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	tm := auth.NewTokenManager("testsecret")
	store := &stubStorage{users: map[int]model.User{}}

	var got model.User
	handler := AuthMiddleware(store, tm)(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddlewareRejectsUnknownUser(t *testing.T) {
	tm := auth.NewTokenManager("testsecret")
	store := &stubStorage{users: map[int]model.User{}}

	token, _ := tm.GenerateToken(99)

	var got model.User
	handler := AuthMiddleware(store, tm)(okHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		user *model.User
		want int
	}{
		{"admin allowed", &model.User{ID: 1, Role: model.RoleAdmin}, http.StatusOK},
		{"exchange forbidden", &model.User{ID: 2, Role: model.RoleExchange}, http.StatusForbidden},
		{"no user", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			if tt.user != nil {
				ctx := context.WithValue(req.Context(), UserContextKey, *tt.user)
				req = req.WithContext(ctx)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}
