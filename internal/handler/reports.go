package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type dailyStatResponse struct {
	Date             string  `json:"date"`
	TotalRevenue     float64 `json:"total_revenue"`
	TransactionCount int64   `json:"transaction_count"`
	SuccessfulCount  int64   `json:"successful_count"`
	FailedCount      int64   `json:"failed_count"`
	RefundedCount    int64   `json:"refunded_count"`
	RefundedAmount   float64 `json:"refunded_amount"`
}

type reportResponse struct {
	Days   []dailyStatResponse `json:"days"`
	Totals reportTotals        `json:"totals"`
}

type reportTotals struct {
	TotalRevenue     float64 `json:"total_revenue"`
	TransactionCount int64   `json:"transaction_count"`
	SuccessfulCount  int64   `json:"successful_count"`
	FailedCount      int64   `json:"failed_count"`
	RefundedCount    int64   `json:"refunded_count"`
	RefundedAmount   float64 `json:"refunded_amount"`
	SuccessRate      float64 `json:"success_rate"`
	AvgOrder         float64 `json:"avg_order"`
}

// GetReport возвращает дневную статистику за период. По умолчанию
// берутся последние 30 дней.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		to = parsed
	}

	stats, totals, err := h.service.GetReport(r.Context(), from, to)
	if err != nil {
		h.logger.Error("get report", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := reportResponse{
		Days: make([]dailyStatResponse, 0, len(stats)),
		Totals: reportTotals{
			TotalRevenue:     float64(totals.TotalRevenueCents) / 100,
			TransactionCount: totals.TransactionCount,
			SuccessfulCount:  totals.SuccessfulCount,
			FailedCount:      totals.FailedCount,
			RefundedCount:    totals.RefundedCount,
			RefundedAmount:   float64(totals.RefundedAmountCents) / 100,
			SuccessRate:      totals.SuccessRate,
			AvgOrder:         float64(totals.AvgOrderCents) / 100,
		},
	}

	for _, st := range stats {
		resp.Days = append(resp.Days, dailyStatResponse{
			Date:             st.Date.Format("2006-01-02"),
			TotalRevenue:     float64(st.TotalRevenueCents) / 100,
			TransactionCount: st.TransactionCount,
			SuccessfulCount:  st.SuccessfulCount,
			FailedCount:      st.FailedCount,
			RefundedCount:    st.RefundedCount,
			RefundedAmount:   float64(st.RefundedAmountCents) / 100,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
