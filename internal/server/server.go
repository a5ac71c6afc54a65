package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/riftvanta/tms062025/internal/config"
	"github.com/riftvanta/tms062025/internal/deps"
	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/middleware"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/riftvanta/tms062025/internal/storage"
	"github.com/riftvanta/tms062025/internal/workflow"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type UserStorage interface {
	CreateUser(ctx context.Context, user model.User, passwordHash string, openingBalance decimal.Decimal) (int, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, string, error)
	GetUserByID(ctx context.Context, id int) (model.User, error)
	GetBalance(ctx context.Context, userID int) (model.Balance, error)
}

type OrderStorage interface {
	CreateOrder(ctx context.Context, order model.Order) (model.Order, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (model.Order, error)
	ListOrders(ctx context.Context, filter storage.OrderFilter) ([]model.Order, error)
	ApplyTransition(ctx context.Context, orderID string, u workflow.Update, settle *storage.Settlement) error
	SetFinalAmount(ctx context.Context, orderID string, amount decimal.Decimal, now time.Time) error
	GetOrdersSubmittedSince(ctx context.Context, since time.Time) ([]model.Order, error)
}

type ChatStorage interface {
	AddMessage(ctx context.Context, msg model.Message) (model.Message, error)
	GetMessages(ctx context.Context, orderID int) ([]model.Message, error)
	AddAttachment(ctx context.Context, att model.Attachment) error
	GetAttachment(ctx context.Context, id string) (model.Attachment, error)
	ListAttachments(ctx context.Context, orderID int) ([]model.Attachment, error)
}

type Allocator interface {
	Allocate(ctx context.Context, now time.Time) (string, error)
}

type Server struct {
	users     UserStorage
	orders    OrderStorage
	chats     ChatStorage
	allocator Allocator
	config    *config.Config
	deps      *deps.Deps
}

func NewServer(users UserStorage, orders OrderStorage, chats ChatStorage, allocator Allocator, cfg *config.Config, deps *deps.Deps) *Server {
	return &Server{
		users:     users,
		orders:    orders,
		chats:     chats,
		allocator: allocator,
		config:    cfg,
		deps:      deps,
	}
}

func (srv *Server) buildRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(chiMiddleware.StripSlashes)
	router.Use(middleware.LogMiddleware(srv.deps.Logger))
	router.Use(middleware.DecompressMiddleware)
	router.Use(middleware.CompressMiddleware(srv.deps.Logger))

	router.Post("/api/login", srv.LoginHandler)

	router.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(srv.users, srv.deps.TokenManager))

		r.Get("/api/balance", srv.GetBalanceHandler)

		r.Post("/api/orders", srv.CreateOrderHandler)
		r.Get("/api/orders", srv.GetOrdersHandler)
		r.Get("/api/orders/{orderID}", srv.GetOrderHandler)
		r.Post("/api/orders/{orderID}/cancel", srv.CancelOrderHandler)

		r.Get("/api/orders/{orderID}/messages", srv.GetMessagesHandler)
		r.Post("/api/orders/{orderID}/messages", srv.PostMessageHandler)
		r.Get("/ws/orders/{orderID}", srv.OrderSocketHandler)

		r.Post("/api/orders/{orderID}/screenshot", srv.UploadScreenshotHandler)
		r.Get("/api/orders/{orderID}/attachments", srv.ListAttachmentsHandler)
		r.Get("/api/orders/{orderID}/attachments/{attachmentID}", srv.DownloadAttachmentHandler)

		r.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireRole(model.RoleAdmin))

			admin.Post("/api/admin/exchanges", srv.CreateExchangeHandler)
			admin.Post("/api/admin/orders/{orderID}/status", srv.TransitionHandler)
			admin.Post("/api/admin/orders/{orderID}/final-amount", srv.SetFinalAmountHandler)
			admin.Get("/ws/admin/notifications", srv.AdminSocketHandler)
		})
	})

	return router
}

func (srv *Server) Run(ctx context.Context) error {
	router := srv.buildRouter()

	server := &http.Server{
		Addr:    srv.config.RunAddress,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.deps.Logger.Fatalf("server error: %v", err)
		}
	}()

	go srv.NotifyControl(ctx)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if creds.Username == "" || creds.Password == "" {
		http.Error(w, "username and password required", http.StatusBadRequest)
		return
	}

	user, hash, err := s.users.GetUserByUsername(r.Context(), creds.Username)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.deps.TokenManager.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "token error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	s.writeJSON(w, http.StatusOK, user)
}

// CreateExchangeHandler registers an exchange partner account. There is
// no public self-registration; accounts are opened by the admin.
func (s *Server) CreateExchangeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CreateExchangeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" || req.ExchangeName == "" {
		http.Error(w, "username, password and exchange name required", http.StatusBadRequest)
		return
	}
	if req.CommissionIncoming.IsNegative() || req.CommissionOutgoing.IsNegative() || req.OpeningBalance.IsNegative() {
		http.Error(w, "negative figures not allowed", http.StatusUnprocessableEntity)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hash error", http.StatusInternalServerError)
		return
	}

	user := model.User{
		Username:           req.Username,
		Role:               model.RoleExchange,
		ExchangeName:       req.ExchangeName,
		Contact:            req.Contact,
		CommissionIncoming: req.CommissionIncoming,
		CommissionOutgoing: req.CommissionOutgoing,
	}

	id, err := s.users.CreateUser(r.Context(), user, string(hash), req.OpeningBalance)
	if err != nil {
		if errors.Is(err, errs.ErrUsernameAlreadyExists) {
			http.Error(w, "username taken", http.StatusConflict)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	user.ID = id
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != model.RoleExchange {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	balance, err := s.users.GetBalance(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to get balance", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, balance)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Errorf("encode response: %v", err)
	}
}
