package main

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"winbridge/internal/metrics"
	"winbridge/internal/tracing"
)

// handleMetrics serves the in-process registry as JSON
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		log := s.logger.WithFields(logrus.Fields{
			"request_id": info.RequestID,
			"trace_id":   info.TraceID,
		})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(metrics.GetSnapshot()); err != nil {
			log.WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		log.Debug("Metrics endpoint served")
	}
}
