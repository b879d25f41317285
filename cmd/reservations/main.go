// cmd/reservations/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/bus"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/choreography"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/config"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/projection"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/transport"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

func main() {
	cfg := config.Load("8082")
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(eventstore.Schema); err != nil {
		log.Fatalf("failed to apply event store schema: %v", err)
	}

	sdb := sqlx.NewDb(db, "postgres")
	if _, err := sdb.Exec(projection.ReservationReadSchema); err != nil {
		log.Fatalf("failed to apply reservation read-model schema: %v", err)
	}

	cache, err := projection.NewCache(cfg.RedisURL, cfg.CacheDefaultTTL)
	if err != nil {
		log.Fatalf("failed to connect to cache: %v", err)
	}
	store := &projection.Store{DB: sdb, Cache: cache}

	b, err := bus.New(ctx, bus.Config{URL: cfg.RabbitMQURL, ServiceName: "reservations", RedeliveryRatePerSecond: 10})
	if err != nil {
		log.Fatalf("failed to connect to message bus: %v", err)
	}
	defer b.Close()

	es := eventstore.NewEventStore(db)
	reservationHandler := command.NewReservationHandler(es, b, cfg.ReservationDueDays, cfg.ReservationFee)
	walletHandler := command.NewWalletHandler(es, b, cfg.LateFeePerDay)

	engine := projection.NewEngine(sdb)
	projection.RegisterReservationHandlers(engine)
	for _, eventType := range []string{
		reservation.EventCreated, reservation.EventBookValidated, reservation.EventPaymentSuccess,
		reservation.EventPaymentDeclined, reservation.EventReturned, reservation.EventCancelled,
		reservation.EventOverdue, reservation.EventBookBrought, reservation.EventDeleted,
	} {
		if err := b.Subscribe(ctx, eventType, 5, engineHandler(engine)); err != nil {
			log.Fatalf("failed to subscribe to %s: %v", eventType, err)
		}
	}

	choreography.WireReservationPaymentOutcome(ctx, b, reservationHandler)

	router := transport.NewReservationsRouter(reservationHandler, walletHandler, es, store, cfg)

	fmt.Printf("reservations service listening on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, router))
}

func engineHandler(e *projection.Engine) bus.Handler {
	return func(ctx context.Context, ev event.Envelope) error {
		return e.Handle(ctx, ev)
	}
}
