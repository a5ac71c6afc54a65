package server

import (
	"context"
	"time"

	"github.com/riftvanta/tms062025/internal/chat"
	"github.com/riftvanta/tms062025/internal/model"
)

// NotifyControl watches for freshly submitted orders and pushes them to
// administrators subscribed to the notification socket.
func (srv *Server) NotifyControl(ctx context.Context) {
	workerCount := 2

	ch := make(chan model.Order, 10*workerCount)
	go srv.scanSubmitted(ctx, ch)

	for i := 0; i < workerCount; i++ {
		go srv.notifyAdmins(ctx, ch)
	}
}

func (srv *Server) scanSubmitted(ctx context.Context, ch chan model.Order) {
	since := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			orders, err := srv.orders.GetOrdersSubmittedSince(ctx, since)
			if err != nil {
				srv.deps.Logger.Errorf("scan submitted orders: %v", err)
				time.Sleep(1 * time.Second)
				continue
			}

		enqueue:
			for _, order := range orders {
				select {
				case ch <- order:
					// The cursor only advances past orders that were
					// handed off, so a full channel retries next tick.
					since = order.CreatedAt
				default:
					srv.deps.Logger.Warnf("notification channel full, retrying from %s", since)
					break enqueue
				}
			}
			time.Sleep(1 * time.Second)
		}
	}
}

func (srv *Server) notifyAdmins(ctx context.Context, ch chan model.Order) {
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-ch:
			srv.deps.Hub.Broadcast(chat.AdminRoom, orderEvent{Event: "order_submitted", Order: order})
		}
	}
}
