package handler

import (
	"context"
	"net/http"
)

// Pinger reports the health of a backing service.
type Pinger interface {
	Health(ctx context.Context) error
}

// Health returns a liveness handler that checks the primary store. Matches
// the operational contract the frontend probes: 200 when the store answers,
// 503 otherwise.
func Health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Health(r.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
