package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/payprompt/payprompt-backend/internal/api/handlers"
	"github.com/payprompt/payprompt-backend/internal/api/httpx"
	"github.com/payprompt/payprompt-backend/internal/api/validate"
	"github.com/payprompt/payprompt-backend/internal/auth"
	"github.com/payprompt/payprompt-backend/internal/config"
	"github.com/payprompt/payprompt-backend/internal/metrics"
	"github.com/payprompt/payprompt-backend/internal/middleware"
	"github.com/payprompt/payprompt-backend/internal/models"
	repo "github.com/payprompt/payprompt-backend/internal/repository"
	"github.com/payprompt/payprompt-backend/internal/services"
)

func NewRouter(cfg config.Config, ts *services.TransactionService, set repo.Settings, tm *auth.TokenManager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	authHandler := handlers.NewAuthHandler(tm, cfg)
	authMW := middleware.NewAuthMiddleware(tm)

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		// ---------- bank-side transaction routes ----------
		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			r.Post("/transactions/initiate", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					ChequeNumber  string `json:"cheque_number"`
					AccountNumber string `json:"account_number"`
					PayeeName     string `json:"payee_name"`
					Currency      string `json:"currency"`
					Amount        string `json:"amount"`
					Reference     string `json:"reference"`
					Institution   string `json:"institution"`
					Branch        string `json:"processed_branch"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				if !checkFields(w,
					validate.Required("payee_name", req.PayeeName),
					validate.Required("currency", req.Currency),
					validate.Required("amount", req.Amount),
				) {
					return
				}
				actor, _ := middleware.Username(r.Context())
				tx, err := ts.Initiate(r.Context(), services.InitiateInput{
					ChequeNumber:  req.ChequeNumber,
					AccountNumber: req.AccountNumber,
					PayeeName:     req.PayeeName,
					Currency:      req.Currency,
					Amount:        req.Amount,
					Reference:     req.Reference,
					InitiatedBy:   actor,
					Institution:   req.Institution,
					Branch:        req.Branch,
				})
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Transaction initiated", map[string]any{
					"id":             tx.ID,
					"account_number": tx.AccountNumber,
					"pre_approved":   tx.PreApproved,
				})
			})

			r.Post("/transactions/{id}/initiate/complete", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Name               string `json:"name"`
					Msisdn             string `json:"msisdn"`
					Balance            string `json:"balance"`
					Mandate            string `json:"mandate"`
					ChequeInstructions string `json:"cheque_instructions"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				tx, err := ts.CompleteInitiation(r.Context(), chi.URLParam(r, "id"), services.CompleteInitiationInput{
					CustomerName:       req.Name,
					Msisdn:             req.Msisdn,
					Balance:            req.Balance,
					Mandate:            req.Mandate,
					ChequeInstructions: req.ChequeInstructions,
				})
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Initiation completed and approval request sent", map[string]any{
					"id":                tx.ID,
					"customer_status":   tx.CustomerStatus,
					"bank_status":       tx.BankStatus,
					"approval_sms_sent": tx.ApprovalSMSSent,
				})
			})

			r.Post("/transactions/{id}/request-approval", func(w http.ResponseWriter, r *http.Request) {
				tx, err := ts.RequestApproval(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Request to approve cheque sent", map[string]any{
					"id":                tx.ID,
					"customer_status":   tx.CustomerStatus,
					"bank_status":       tx.BankStatus,
					"approval_sms_sent": tx.ApprovalSMSSent,
				})
			})

			r.Post("/transactions/{id}/bank/update", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Status  string `json:"status"`
					Comment string `json:"comment"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				actor, _ := middleware.Username(r.Context())
				tx, err := ts.BankUpdate(r.Context(), chi.URLParam(r, "id"), models.BankStatus(req.Status), req.Comment, actor)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Transaction updated", map[string]any{
					"id":              tx.ID,
					"customer_status": tx.CustomerStatus,
					"bank_status":     tx.BankStatus,
				})
			})

			r.Post("/transactions/{id}/confirm-payout", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					PayoutType string `json:"payout_type"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PayoutType == "" {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				actor, _ := middleware.Username(r.Context())
				tx, err := ts.ConfirmPayout(r.Context(), chi.URLParam(r, "id"), models.PayoutType(req.PayoutType), actor)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Payout completed!", map[string]any{
					"id":             tx.ID,
					"bank_status":    tx.BankStatus,
					"payout_type":    tx.PayoutType,
					"payment_status": tx.PaymentStatus,
				})
			})

			r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
				tx, err := ts.GetByID(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "", tx)
			})

			r.Get("/transactions/accounts/{account}/cheques/{cheque}", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				list, nav, err := ts.ChequeHistory(r.Context(), chi.URLParam(r, "account"), chi.URLParam(r, "cheque"), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})

			r.Get("/transactions/pre-approved", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				list, nav, err := ts.PreApprovedPending(r.Context(), listFilter(r), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})

			// approval-window policy consumed by the scheduler
			r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
				s, err := set.Get(r.Context())
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "", s)
			})

			r.Put("/settings", func(w http.ResponseWriter, r *http.Request) {
				var s models.Settings
				if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				if s.PreApprovalExpiryHours <= 0 || s.ApprovalExpiryHours <= 0 ||
					s.ApprovalReminderInterval <= 0 || s.ApprovalReminderFrequency < 0 {
					httpx.Failed(w, http.StatusBadRequest, "settings values must be positive")
					return
				}
				updated, err := set.Update(r.Context(), s)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Settings updated", updated)
			})

			r.Get("/transactions/customer-approved", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				q := r.URL.Query()
				list, nav, err := ts.CustomerApproved(r.Context(), q.Get("institution"), q.Get("processed_branch"), listFilter(r), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})
		})

		// ---------- customer-facing routes (USSD gateway) ----------
		r.Group(func(r chi.Router) {
			r.Use(middleware.GatewayAuth(cfg.GatewayAPIKey))

			r.Post("/transactions/pre-approval", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					ChequeNumber  string `json:"cheque_number"`
					AccountNumber string `json:"account_number"`
					Currency      string `json:"currency"`
					Amount        string `json:"amount"`
					Msisdn        string `json:"msisdn"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				if !checkFields(w,
					validate.Required("currency", req.Currency),
					validate.Required("amount", req.Amount),
					validate.Required("msisdn", req.Msisdn),
				) {
					return
				}
				tx, err := ts.PreApprove(r.Context(), services.PreApproveInput{
					ChequeNumber:  req.ChequeNumber,
					AccountNumber: req.AccountNumber,
					Currency:      req.Currency,
					Amount:        req.Amount,
					Msisdn:        req.Msisdn,
				})
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Transaction initiated", map[string]any{
					"id":             tx.ID,
					"account_number": tx.AccountNumber,
				})
			})

			r.Post("/transactions/{id}/customer-approval", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Status  string `json:"status"`
					Comment string `json:"comment"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
					httpx.Failed(w, http.StatusBadRequest, "bad request")
					return
				}
				tx, err := ts.CustomerDecide(r.Context(), chi.URLParam(r, "id"), models.CustomerStatus(req.Status), req.Comment)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.Success(w, "Transaction "+string(models.CustomerStatus(req.Status))+" successfully!", map[string]any{
					"id":              tx.ID,
					"customer_status": tx.CustomerStatus,
					"bank_status":     tx.BankStatus,
				})
			})

			r.Get("/transactions/accounts/{account}/pending", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				list, nav, err := ts.PendingForAccount(r.Context(), chi.URLParam(r, "account"), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})

			r.Get("/transactions/msisdn/{msisdn}/pending", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				list, nav, err := ts.PendingForMsisdn(r.Context(), chi.URLParam(r, "msisdn"), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})

			r.Get("/transactions/msisdn/{msisdn}/cheques", func(w http.ResponseWriter, r *http.Request) {
				page, size := pageParams(r)
				list, nav, err := ts.HistoryForMsisdn(r.Context(), chi.URLParam(r, "msisdn"), page, size)
				if err != nil {
					httpx.Error(w, err)
					return
				}
				httpx.SuccessNav(w, list, nav)
			})
		})
	})

	return r
}

func checkFields(w http.ResponseWriter, fields ...*validate.ErrField) bool {
	var ve validate.Errs
	for _, f := range fields {
		if f != nil {
			ve = append(ve, *f)
		}
	}
	if len(ve) > 0 {
		httpx.Failed(w, http.StatusBadRequest, ve.Error())
		return false
	}
	return true
}

func pageParams(r *http.Request) (page, size int) {
	page, size = 1, 10
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	return page, size
}

func listFilter(r *http.Request) repo.Filter {
	q := r.URL.Query()
	f := repo.Filter{
		ChequeNumber:  q.Get("cheque_number"),
		AccountNumber: q.Get("account_number"),
		Msisdn:        q.Get("msisdn"),
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.EndDate = &t
		}
	}
	return f
}
