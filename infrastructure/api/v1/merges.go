package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
	"github.com/helixml/filegraph/infrastructure/api/v1/dto"
)

// MergesRouter handles merge API endpoints.
type MergesRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewMergesRouter creates a new MergesRouter.
func NewMergesRouter(client *filegraph.Client) *MergesRouter {
	return &MergesRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for merge endpoints.
func (r *MergesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Post("/", r.Create)

	return router
}

// List handles GET /api/v1/merges, newest first.
//
//	@Summary		List merge events
//	@Description	List merge events, newest first
//	@Tags			merges
//	@Accept			json
//	@Produce		json
//	@Param			page		query	int	false	"Page number (default: 1)"
//	@Param			page_size	query	int	false	"Results per page (default: 20, max: 100)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/merges [get]
func (r *MergesRouter) List(w http.ResponseWriter, req *http.Request) {
	pg, err := parsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	events, err := r.client.Merges.Events(req.Context(), pg.limit(), pg.offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.MergeEventResources(events))
	doc.Meta = pg.meta()
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Create handles POST /api/v1/merges.
// Responds 201 with the merge event, 200 with the prior event when the
// merge had already been applied, or 202 with the review item when the
// merge was queued.
//
//	@Summary		Merge entities
//	@Description	Merge two entities of the same type, or queue the merge for review
//	@Tags			merges
//	@Accept			json
//	@Produce		json
//	@Param			body	body	jsonapi.Request[dto.MergeRequestAttributes]	true	"Merge request"
//	@Success		201	{object}	jsonapi.Document
//	@Success		200	{object}	jsonapi.Document
//	@Success		202	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/merges [post]
func (r *MergesRouter) Create(w http.ResponseWriter, req *http.Request) {
	attrs, err := decode[dto.MergeRequestAttributes](req, jsonapi.TypeMergeEvent)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	t, err := graph.ParseEntityType(attrs.EntityType)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	for _, id := range []string{attrs.A, attrs.B} {
		if err := identity.ValidateEntityID(id); err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
	}

	res, err := r.client.Merges.Submit(req.Context(), merge.Request{
		EntityType:  t,
		A:           attrs.A,
		B:           attrs.B,
		Survivor:    attrs.Survivor,
		Reason:      attrs.Reason,
		Confidence:  confidenceOr(attrs.Confidence, 1.0),
		PerformedBy: performer(attrs.PerformedBy),
	})
	if errors.Is(err, filegraph.ErrQueuedForReview) {
		middleware.WriteJSONAPI(w, http.StatusAccepted, jsonapi.NewSingleResponse(r.serializer.ReviewResource(res.Item)))
		return
	}
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	middleware.WriteJSONAPI(w, status, jsonapi.NewSingleResponse(r.serializer.MergeEventResource(res.Event)))
}
