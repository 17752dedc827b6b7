package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
)

// StatsRouter serves aggregate statistics.
type StatsRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewStatsRouter creates a new StatsRouter.
func NewStatsRouter(client *filegraph.Client) *StatsRouter {
	return &StatsRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for stats endpoints.
func (r *StatsRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", r.Get)
	return router
}

// Get handles GET /api/v1/stats.
//
//	@Summary		Get statistics
//	@Description	Get graph and KV store statistics
//	@Tags			stats
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Failure		500	{object}	map[string]string
//	@Router			/stats [get]
func (r *StatsRouter) Get(w http.ResponseWriter, req *http.Request) {
	agg, err := r.client.Stats.Aggregate(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.StatsResource(agg)))
}
