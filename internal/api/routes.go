package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Command routes
	api.HandleFunc("/portfolios/{portfolioId}/transactions", handler.RecordTransaction).Methods("POST")
	api.HandleFunc("/transactions/{transactionId}", handler.UpdateTransaction).Methods("PATCH")
	api.HandleFunc("/transactions/{transactionId}/cancel", handler.CancelTransaction).Methods("POST")

	// Query routes
	api.HandleFunc("/portfolios/{portfolioId}/transactions", handler.ListTransactions).Methods("GET")
	api.HandleFunc("/portfolios/{portfolioId}/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/portfolios/{portfolioId}/summary", handler.GetPortfolioSummary).Methods("GET")
	api.HandleFunc("/portfolios/{portfolioId}/projections/rebuild", handler.RebuildProjections).Methods("POST")

	return r
}
