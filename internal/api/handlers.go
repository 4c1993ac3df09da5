package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service *ledger.Service
}

// NewHandler creates a new Handler
func NewHandler(service *ledger.Service) *Handler {
	return &Handler{service: service}
}

type recordTransactionRequest struct {
	Kind         string           `json:"kind"`
	Ticker       string           `json:"ticker"`
	Exchange     string           `json:"exchange"`
	AssetType    string           `json:"asset_type"`
	Quantity     *decimal.Decimal `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
	Fee          *decimal.Decimal `json:"fee"`
	GrossAmount  *decimal.Decimal `json:"gross_amount"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Currency     string           `json:"currency"`
	Date         string           `json:"date"`
	MaturityDate *string          `json:"maturity_date"`
	Notes        string           `json:"notes"`
}

// RecordTransaction handles POST /portfolios/{portfolioId}/transactions. The
// request body is discriminated by kind.
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(mux.Vars(r)["portfolioId"])
	if err != nil {
		respondBadRequest(w, "invalid portfolio id")
		return
	}

	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		respondBadRequest(w, "invalid date: use YYYY-MM-DD or RFC 3339")
		return
	}
	var maturity *time.Time
	if req.MaturityDate != nil {
		m, err := parseDate(*req.MaturityDate)
		if err != nil {
			respondBadRequest(w, "invalid maturity date: use YYYY-MM-DD or RFC 3339")
			return
		}
		maturity = &m
	}

	symbol := models.Symbol{Ticker: req.Ticker, Exchange: req.Exchange, AssetType: req.AssetType}

	switch strings.ToUpper(req.Kind) {
	case models.KindBuy:
		txID, err := h.service.RecordBuy(r.Context(), portfolioID, ledger.BuyCommand{
			Symbol:       symbol,
			Quantity:     orZero(req.Quantity),
			PricePerUnit: orZero(req.PricePerUnit),
			Fee:          orZero(req.Fee),
			Currency:     req.Currency,
			Date:         date,
			MaturityDate: maturity,
			Notes:        req.Notes,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": txID.String()})

	case models.KindSell:
		outcome, err := h.service.RecordSell(r.Context(), portfolioID, ledger.SellCommand{
			Symbol:       symbol,
			Quantity:     orZero(req.Quantity),
			PricePerUnit: orZero(req.PricePerUnit),
			Fee:          orZero(req.Fee),
			Currency:     req.Currency,
			Date:         date,
			Notes:        req.Notes,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, outcome)

	case models.KindDividend, models.KindInterest:
		outcome, err := h.service.RecordIncome(r.Context(), portfolioID, ledger.IncomeCommand{
			Kind:        strings.ToUpper(req.Kind),
			Symbol:      symbol,
			GrossAmount: orZero(req.GrossAmount),
			TaxRate:     orZero(req.TaxRate),
			Currency:    req.Currency,
			Date:        date,
			Notes:       req.Notes,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, outcome)

	default:
		respondBadRequest(w, "kind must be one of BUY, SELL, DIVIDEND, INTEREST")
	}
}

type updateTransactionRequest struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit"`
	Fee          *decimal.Decimal `json:"fee"`
	GrossAmount  *decimal.Decimal `json:"gross_amount"`
	TaxRate      *decimal.Decimal `json:"tax_rate"`
	Date         *string          `json:"date"`
	MaturityDate *string          `json:"maturity_date"`
	Notes        *string          `json:"notes"`
}

// UpdateTransaction handles PATCH /transactions/{transactionId}
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := uuid.Parse(mux.Vars(r)["transactionId"])
	if err != nil {
		respondBadRequest(w, "invalid transaction id")
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	cmd := ledger.UpdateCommand{
		TransactionID: txID,
		Quantity:      req.Quantity,
		PricePerUnit:  req.PricePerUnit,
		Fee:           req.Fee,
		GrossAmount:   req.GrossAmount,
		TaxRate:       req.TaxRate,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			respondBadRequest(w, "invalid date: use YYYY-MM-DD or RFC 3339")
			return
		}
		cmd.Date = &date
	}
	if req.MaturityDate != nil {
		m, err := parseDate(*req.MaturityDate)
		if err != nil {
			respondBadRequest(w, "invalid maturity date: use YYYY-MM-DD or RFC 3339")
			return
		}
		cmd.MaturityDate = &m
	}
	cmd.Notes = req.Notes

	updated, err := h.service.UpdateTransaction(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// CancelTransaction handles POST /transactions/{transactionId}/cancel
func (h *Handler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := uuid.Parse(mux.Vars(r)["transactionId"])
	if err != nil {
		respondBadRequest(w, "invalid transaction id")
		return
	}
	if err := h.service.CancelTransaction(r.Context(), txID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.StatusCancelled})
}

// GetPositions handles GET /portfolios/{portfolioId}/positions. The optional
// symbol/exchange/asset_type query parameters narrow the result; symbol alone
// matches that ticker on every exchange.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(mux.Vars(r)["portfolioId"])
	if err != nil {
		respondBadRequest(w, "invalid portfolio id")
		return
	}
	query := r.URL.Query()
	filter := ledger.PositionFilter{
		Ticker:    query.Get("symbol"),
		Exchange:  query.Get("exchange"),
		AssetType: strings.ToUpper(query.Get("asset_type")),
	}
	positions, err := h.service.GetPositions(r.Context(), portfolioID, filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

// ListTransactions handles GET /portfolios/{portfolioId}/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(mux.Vars(r)["portfolioId"])
	if err != nil {
		respondBadRequest(w, "invalid portfolio id")
		return
	}

	query := r.URL.Query()
	filter := models.TransactionFilter{
		Ticker: query.Get("symbol"),
		Kind:   strings.ToUpper(query.Get("kind")),
		Status: strings.ToUpper(query.Get("status")),
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			respondBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}
	if v := query.Get("from"); v != "" {
		from, err := parseDate(v)
		if err != nil {
			respondBadRequest(w, "invalid from date")
			return
		}
		filter.From = &from
	}
	if v := query.Get("to"); v != "" {
		to, err := parseDate(v)
		if err != nil {
			respondBadRequest(w, "invalid to date")
			return
		}
		filter.To = &to
	}

	page, err := h.service.GetTransactions(r.Context(), portfolioID, filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GetPortfolioSummary handles GET /portfolios/{portfolioId}/summary
func (h *Handler) GetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(mux.Vars(r)["portfolioId"])
	if err != nil {
		respondBadRequest(w, "invalid portfolio id")
		return
	}
	summary, err := h.service.GetPortfolioSummary(r.Context(), portfolioID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RebuildProjections handles POST /portfolios/{portfolioId}/projections/rebuild
func (h *Handler) RebuildProjections(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := uuid.Parse(mux.Vars(r)["portfolioId"])
	if err != nil {
		respondBadRequest(w, "invalid portfolio id")
		return
	}
	if err := h.service.RebuildProjections(r.Context(), portfolioID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
