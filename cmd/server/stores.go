package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/ticketing-core/internal/config"
	"github.com/iliyamo/ticketing-core/internal/database"
	"github.com/iliyamo/ticketing-core/internal/database/migrations"
	"github.com/iliyamo/ticketing-core/internal/handler"
	"github.com/iliyamo/ticketing-core/internal/model"
	"github.com/iliyamo/ticketing-core/internal/repository"
	"github.com/iliyamo/ticketing-core/internal/repository/memstore"
	"github.com/iliyamo/ticketing-core/internal/service"
)

// stores bundles the storage ports for one driver.
type stores struct {
	tx       service.Transactor
	ledger   service.Ledger
	sessions service.SessionReader
	seats    service.SeatReader
	holds    service.HoldRepository
	orders   service.OrderRepository
	payments service.PaymentRepository
	refunds  service.RefundRepository
	ping     handler.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		m := memstore.New()
		if cfg.DemoSeed {
			seedDemo(m, time.Now().UTC())
		}
		return stores{
			tx: m, ledger: m, sessions: m, seats: m,
			holds: m, orders: m, payments: m, refunds: m,
			close: func() {},
		}, nil
	case "mysql":
		db, err := database.Open(database.Options{
			User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		})
		if err != nil {
			return stores{}, err
		}
		if cfg.DBMigrate {
			if err := migrations.Apply(ctx, db); err != nil {
				_ = db.Close()
				return stores{}, fmt.Errorf("migrate: %w", err)
			}
		}
		seats := repository.NewSeatRepo(db)
		return stores{
			tx:       repository.NewTxManager(db),
			ledger:   seats,
			sessions: repository.NewSessionRepo(db),
			seats:    seats,
			holds:    repository.NewHoldRepo(db),
			orders:   repository.NewOrderRepo(db),
			payments: repository.NewPaymentRepo(db),
			refunds:  repository.NewRefundRepo(db),
			ping:     db,
			close:    func() { _ = db.Close() },
		}, nil
	}
	return stores{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// seedDemo adds one published session of tenant "demo" with two rows of
// ten seats. Row A is priced above the session default.
func seedDemo(m *memstore.Store, now time.Time) {
	sess := model.Session{
		ID:                "demo-session",
		TenantID:          "demo",
		Name:              "Demo Night",
		SalesStartsAt:     now.Add(-time.Hour),
		SalesEndsAt:       now.Add(30 * 24 * time.Hour),
		Capacity:          20,
		Status:            model.SessionPublished,
		DefaultPriceCents: 5000,
		CurrencyCode:      "BRL",
		CreatedAt:         now,
	}
	premium := int64(7500)
	seats := make([]model.Seat, 0, sess.Capacity)
	for _, row := range []string{"A", "B"} {
		for n := 1; n <= 10; n++ {
			seat := model.Seat{
				ID:         fmt.Sprintf("%s%d", row, n),
				SessionID:  sess.ID,
				SectorCode: "MAIN",
				RowLabel:   row,
				SeatNumber: fmt.Sprint(n),
				Status:     model.SeatAvailable,
				UpdatedAt:  now,
			}
			if row == "A" {
				seat.PriceCents = &premium
			}
			seats = append(seats, seat)
		}
	}
	m.AddSession(sess, seats)
	log.Printf("[seed] demo session_id=%s tenant_id=%s seats=%d", sess.ID, sess.TenantID, len(seats))
}
