package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	slotQueriesTotal *prometheus.CounterVec
	slotsReturned    prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boekmij",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		slotQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boekmij",
			Subsystem: "booking",
			Name:      "slot_queries_total",
			Help:      "Slot queries by outcome",
		}, []string{"result"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boekmij",
			Subsystem: "booking",
			Name:      "slots_returned",
			Help:      "Number of slots returned per query",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotQueriesTotal, m.slotsReturned)
	return m
}

func (m *BookingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveSlotQuery(result string, count int) {
	if m == nil {
		return
	}
	m.slotQueriesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.slotsReturned.Observe(float64(count))
	}
}
