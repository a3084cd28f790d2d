package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ndthang/smart-router/config"
)

// HealthDetail reports the live tier-to-model bindings.
func HealthDetail(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := make(map[string]string, len(config.Tiers))
		for _, tier := range config.Tiers {
			models[string(tier)] = cfg.Backends[tier].Model
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"models":    models,
		})
	}
}
