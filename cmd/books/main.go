// cmd/books/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/book"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/bus"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/choreography"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/config"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/projection"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/transport"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

func main() {
	cfg := config.Load("8081")
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
	if _, err := sdb.Exec(projection.BookReadSchema); err != nil {
		log.Fatalf("failed to apply book read-model schema: %v", err)
	}

	cache, err := projection.NewCache(cfg.RedisURL, cfg.CacheDefaultTTL)
	if err != nil {
		log.Fatalf("failed to connect to cache: %v", err)
	}
	store := &projection.Store{DB: sdb, Cache: cache}

	b, err := bus.New(ctx, bus.Config{URL: cfg.RabbitMQURL, ServiceName: "books", RedeliveryRatePerSecond: 10})
	if err != nil {
		log.Fatalf("failed to connect to message bus: %v", err)
	}
	defer b.Close()

	es := eventstore.NewEventStore(db)
	bookHandler := command.NewBookHandler(es, b)
	reservationHandler := command.NewReservationHandler(es, b, cfg.ReservationDueDays, cfg.ReservationFee)

	engine := projection.NewEngine(sdb)
	projection.RegisterBookHandlers(engine)
	for _, eventType := range []string{book.EventCreated, book.EventUpdated, book.EventDeleted} {
		if err := b.Subscribe(ctx, eventType, 5, engineHandler(engine)); err != nil {
			log.Fatalf("failed to subscribe to %s: %v", eventType, err)
		}
	}

	choreography.WireBookValidation(ctx, b, es, reservationHandler)

	router := transport.NewBooksRouter(bookHandler, store, cfg)

	fmt.Printf("books service listening on port %s\n", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, router))
}

func engineHandler(e *projection.Engine) bus.Handler {
	return func(ctx context.Context, ev event.Envelope) error {
		return e.Handle(ctx, ev)
	}
}
