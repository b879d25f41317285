// cmd/gateway/main.go
package main

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
)

func main() {
	booksServiceURL, _ := url.Parse(getEnv("BOOKS_SERVICE_URL", "http://localhost:8081"))
	reservationsServiceURL, _ := url.Parse(getEnv("RESERVATIONS_SERVICE_URL", "http://localhost:8082"))
	walletsServiceURL, _ := url.Parse(getEnv("WALLETS_SERVICE_URL", "http://localhost:8083"))

	booksProxy := httputil.NewSingleHostReverseProxy(booksServiceURL)
	reservationsProxy := httputil.NewSingleHostReverseProxy(reservationsServiceURL)
	walletsProxy := httputil.NewSingleHostReverseProxy(walletsServiceURL)

	http.Handle("/api/v1/books/", http.StripPrefix("/api/v1", booksProxy))
	http.Handle("/api/v1/reservations/", http.StripPrefix("/api/v1", reservationsProxy))
	http.Handle("/api/v1/wallets/", http.StripPrefix("/api/v1", walletsProxy))

	port := getEnv("PORT", "8080")
	log.Printf("API gateway listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
