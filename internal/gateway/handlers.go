package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the hub's HTTP routes on mux:
//
//	GET /ws                                   WebSocket stream (?channels=trade,lifecycle)
//	GET /api/events/latest                    latest payload per channel
//	GET /api/events/missed?channel=&from=&to= buffered envelopes for gap backfill
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws", hub.HandleWS)

	mux.HandleFunc("/api/events/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	mux.HandleFunc("/api/events/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			http.Error(w, `{"error":"channel, from and to are required"}`, http.StatusBadRequest)
			return
		}

		envs := hub.GetReplayRange(channel, from, to)
		raw := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			raw[i] = e
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"channel":     channel,
			"current_seq": hub.GetChannelSeq(channel),
			"envelopes":   raw,
		})
	})
}
