package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lncr/reports-helpbot1/internal/logging"
	"github.com/lncr/reports-helpbot1/internal/service"
	"github.com/lncr/reports-helpbot1/internal/types"
)

type handlers struct {
	reports *service.ReportService
	prices  *service.PriceService
	staking *service.StakingService
}

// reportRequest is the shared body of the report-building endpoints: the
// wallets to cover and the jetton masters to track for TON wallets.
type reportRequest struct {
	Wallets []types.Wallet    `json:"wallets"`
	Jettons types.AddressBook `json:"jettons"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L().WithError(err).Error("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// monthYear reads the month/year query parameters, defaulting to the current
// month.
func monthYear(r *http.Request) (time.Month, int, error) {
	now := time.Now().UTC()
	month, year := now.Month(), now.Year()

	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, errBadMonth
		}
		month = time.Month(parsed)
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > now.Year() {
			return 0, 0, errBadYear
		}
		year = parsed
	}
	return month, year, nil
}

func decodeReportRequest(r *http.Request) (reportRequest, error) {
	var request reportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return reportRequest{}, err
	}
	if len(request.Wallets) == 0 {
		return reportRequest{}, errNoWallets
	}
	return request, nil
}

func (h *handlers) buildReport(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	request, err := decodeReportRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.BuildReport(r.Context(), request.Wallets, request.Jettons, month, year)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("report build failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) listTransfers(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	request, err := decodeReportRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transfers, skipped, err := h.reports.LedgerForMonth(r.Context(), request.Wallets, request.Jettons, month, year)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("transfer listing failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"errors":    skipped,
	})
}

func (h *handlers) listBalances(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	request, err := decodeReportRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balances, skipped, err := h.reports.BalancesForMonth(r.Context(), request.Wallets, request.Jettons, month, year)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("balance listing failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balances": balances,
		"errors":   skipped,
	})
}

func (h *handlers) getPrices(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter is required")
		return
	}

	target := service.TargetDate(month, year, time.Now().UTC())
	price, err := h.prices.MonthlyPrice(r.Context(), symbol, target)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("price lookup failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	daily, err := h.prices.DailyPrices(r.Context(), symbol, target)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("daily price lookup failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	fiat, err := h.prices.FiatPrices(r.Context(), target)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("fiat rate lookup failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"price":        price,
		"daily_prices": daily,
		"fiat_prices":  fiat,
	})
}

func (h *handlers) getTVLAPY(w http.ResponseWriter, r *http.Request) {
	month, year, err := monthYear(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target := service.TargetDate(month, year, time.Now().UTC())
	rows, err := h.staking.TVLAPY(r.Context(), target)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("yield report failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tvl_apy": rows})
}

// getTVLForecast renders the latest forecast row as plaintext key-value
// lines, the form capacity-planning scrapers consume.
func (h *handlers) getTVLForecast(w http.ResponseWriter, r *http.Request) {
	rows, err := h.staking.TVLForecast(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("tvl forecast failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no tvl history available")
		return
	}

	last := rows[len(rows)-1]
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "date %s\n", last.Date.Format("2006-01-02"))
	fmt.Fprintf(w, "tvl %s\n", last.TVLTON)
	fmt.Fprintf(w, "delta %s\n", last.Delta)
	fmt.Fprintf(w, "sma_w %s\n", last.SMAWeekly)
	fmt.Fprintf(w, "growth_rate_expected_2w %s\n", last.ExpectedGrowth2W)
	fmt.Fprintf(w, "n_req_validators %d\n", last.RequiredValidators)
	fmt.Fprintf(w, "exp_new_val %s\n", last.ExpectedNewVal)
	fmt.Fprintf(w, "exp_new_val_adj %s\n", last.ExpectedNewValAdj)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
