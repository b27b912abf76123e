package routes

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/zjoart/paystack-settlements/internal/fee"
	"github.com/zjoart/paystack-settlements/internal/middleware"
	"github.com/zjoart/paystack-settlements/internal/settlement"
	"github.com/zjoart/paystack-settlements/internal/wallet"
	"github.com/zjoart/paystack-settlements/pkg/config"
	"github.com/zjoart/paystack-settlements/pkg/logger"
)

type Handlers struct {
	Wallet     *wallet.Handler
	Settlement *settlement.Handler
	Fee        *fee.Handler
	Limiter    *middleware.RateLimiter
}

func RegisterRoutes(r *mux.Router, cfg config.Config, h Handlers) http.Handler {
	r.Use(middleware.LoggingMiddleware)
	if h.Limiter != nil {
		r.Use(h.Limiter.Limit)
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/paystack/webhook", h.Settlement.PaystackWebhook).Methods("POST")

	walletR := api.PathPrefix("/wallets").Subrouter()
	walletR.HandleFunc("/{userID}", h.Wallet.GetWallet).Methods("GET")
	walletR.HandleFunc("/{walletID}/transactions", h.Wallet.GetTransactions).Methods("GET")
	walletR.HandleFunc("/{walletID}/bank-accounts", h.Wallet.AddBankAccount).Methods("POST")
	walletR.HandleFunc("/{walletID}/transfer", h.Wallet.Transfer).Methods("POST")
	walletR.HandleFunc("/{walletID}/deposit", h.Wallet.Deposit).Methods("POST")
	walletR.HandleFunc("/{walletID}/schedules", h.Settlement.ListSchedules).Methods("GET")

	// static segments go before {reference}
	settleR := api.PathPrefix("/settlements").Subrouter()
	settleR.HandleFunc("/schedules", h.Settlement.CreateSchedule).Methods("POST")
	settleR.HandleFunc("/schedules/{id}/deactivate", h.Settlement.DeactivateSchedule).Methods("POST")
	settleR.HandleFunc("/run-due", h.Settlement.RunDue).Methods("POST")
	settleR.HandleFunc("", h.Settlement.CreateSettlement).Methods("POST")
	settleR.HandleFunc("", h.Settlement.ListSettlements).Methods("GET")
	settleR.HandleFunc("/{reference}", h.Settlement.GetSettlement).Methods("GET")
	settleR.HandleFunc("/{reference}/verify", h.Settlement.VerifySettlement).Methods("POST")
	settleR.HandleFunc("/{reference}/retry", h.Settlement.RetrySettlement).Methods("POST")

	feeR := api.PathPrefix("/fees").Subrouter()
	feeR.HandleFunc("/quote", h.Fee.Quote).Methods("POST")
	feeR.HandleFunc("/configurations", h.Fee.CreateConfiguration).Methods("POST")

	if cfg.Env != "production" {
		r.HandleFunc("/swagger.yaml", func(w http.ResponseWriter, r *http.Request) {
			content, err := os.ReadFile("docs/swagger.yaml")
			if err != nil {
				logger.Error("Failed to read swagger.yaml", logger.WithError(err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			modified := strings.ReplaceAll(string(content), "{{BASE_URL}}", "/")
			modified = strings.ReplaceAll(modified, "{{CURRENCY}}", cfg.Currency)

			w.Header().Set("Content-Type", "application/yaml")
			w.Write([]byte(modified))
		})

		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/swagger.yaml"),
		))
		logger.Info("Swagger documentation enabled at /swagger/index.html")
	}

	corsObj := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)

	return corsObj(r)
}
