package api

import "net/http"

// Handlers groups the handler sets mounted by Register. Nil members are
// skipped.
type Handlers struct {
	Health   *HealthHandlers
	Rank     *RankHandlers
	Graph    *GraphHandlers
	Datasets *DatasetHandlers
	Stream   *StreamHandlers
}

// Register mounts the API routes on mux.
func (h Handlers) Register(mux *http.ServeMux) {
	if h.Health != nil {
		mux.HandleFunc("/health", h.Health.Health)
		mux.HandleFunc("/ready", h.Health.Ready)
	}
	if h.Rank != nil {
		mux.HandleFunc("/v1/rank", h.Rank.Rank)
	}
	if h.Stream != nil {
		mux.HandleFunc("/v1/rank/stream", h.Stream.Stream)
	}
	if h.Graph != nil {
		mux.HandleFunc("/v1/graph", h.Graph.Build)
	}
	if h.Datasets != nil {
		mux.HandleFunc("/v1/datasets", h.Datasets.List)
		mux.Handle("/v1/datasets/", h.Datasets)
	}
}
