package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/adyngom/nano-agent/internal/log"
	"github.com/adyngom/nano-agent/pkg/storage"
)

// StartServer exposes a read-only view of the checkpoint store. The engine
// itself stays in-process; this surface only serves durable state.
func StartServer(port string, store storage.Store) error {
	http.HandleFunc("/health", HealthHandler)
	http.HandleFunc("/checkpoints", CheckpointsHandler(store))

	log.GetLogger().Infof("Starting checkpoint server on :%s", port)
	return http.ListenAndServe(":"+port, nil)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Checkpoint server is running")
}

// CheckpointsHandler lists a workflow's checkpoint indices, or returns one
// checkpoint as JSON when 'step' is given.
func CheckpointsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		workflowID := r.URL.Query().Get("workflow")
		if workflowID == "" {
			http.Error(w, "Missing 'workflow' parameter", http.StatusBadRequest)
			return
		}

		indices, err := store.List(workflowID)
		if err != nil {
			log.GetLogger().Errorf("Failed to list checkpoints: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list checkpoints: %v", err), http.StatusInternalServerError)
			return
		}

		if stepParam := r.URL.Query().Get("step"); stepParam != "" {
			var step int
			if _, err := fmt.Sscanf(stepParam, "%d", &step); err != nil {
				http.Error(w, "Invalid 'step' parameter", http.StatusBadRequest)
				return
			}
			cp, err := store.Load(workflowID, step)
			if err == storage.ErrNotFound {
				http.Error(w, "Checkpoint not found", http.StatusNotFound)
				return
			}
			if err != nil {
				log.GetLogger().Errorf("Failed to load checkpoint: %v", err)
				http.Error(w, fmt.Sprintf("Failed to load checkpoint: %v", err), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(cp); err != nil {
				log.GetLogger().Errorf("Failed to encode checkpoint: %v", err)
			}
			return
		}

		if len(indices) == 0 {
			fmt.Fprintf(w, "No checkpoints found for workflow '%s'.\n", workflowID)
			return
		}
		for _, idx := range indices {
			fmt.Fprintf(w, "- workflow %s step %d\n", workflowID, idx)
		}
	}
}
