package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/domain/review"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
	"github.com/helixml/filegraph/infrastructure/api/v1/dto"
)

// ReviewsRouter handles the review queue endpoints.
type ReviewsRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewReviewsRouter creates a new ReviewsRouter.
func NewReviewsRouter(client *filegraph.Client) *ReviewsRouter {
	return &ReviewsRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for review endpoints.
func (r *ReviewsRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Get("/{id}", r.Get)
	router.Post("/{id}/approve", r.Approve)
	router.Post("/{id}/reject", r.Reject)

	return router
}

// List handles GET /api/v1/reviews.
// Supports query parameters: state, page, page_size
//
//	@Summary		List review items
//	@Description	List queued merge reviews
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			state	query	string	false	"Review state filter (pending, approved, rejected)"
//	@Param			page		query	int	false	"Page number (default: 1)"
//	@Param			page_size	query	int	false	"Results per page (default: 20, max: 100)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/reviews [get]
func (r *ReviewsRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var state review.State
	if raw := req.URL.Query().Get("state"); raw != "" {
		s, err := review.ParseState(raw)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		state = s
	}

	pg, err := parsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	items, err := r.client.Reviews.List(ctx, state, pg.limit(), pg.offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	total, err := r.client.Reviews.Count(ctx, state)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.ReviewResources(items))
	doc.Meta = pg.countedMeta(total)
	doc.Links = pg.links(req, total)
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Get handles GET /api/v1/reviews/{id}.
//
//	@Summary		Get review item
//	@Description	Get a review item by ID
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Review item ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/reviews/{id} [get]
func (r *ReviewsRouter) Get(w http.ResponseWriter, req *http.Request) {
	item, err := r.client.Reviews.Get(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.ReviewResource(item)))
}

// Approve handles POST /api/v1/reviews/{id}/approve.
// The response carries the approved item with the merge event in meta.
//
//	@Summary		Approve review
//	@Description	Approve a queued merge and apply it
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string									true	"Review item ID"
//	@Param			body	body	jsonapi.Request[dto.ReviewDecisionAttributes]	false	"Decision"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/reviews/{id}/approve [post]
func (r *ReviewsRouter) Approve(w http.ResponseWriter, req *http.Request) {
	attrs, err := decodeOptional[dto.ReviewDecisionAttributes](req, jsonapi.TypeReview)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	item, event, err := r.client.Reviews.Approve(req.Context(), chi.URLParam(req, "id"), performer(attrs.By))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewSingleResponse(r.serializer.ReviewResource(item))
	doc.Meta = &jsonapi.Meta{"merge_event": r.serializer.MergeEventResource(event)}
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Reject handles POST /api/v1/reviews/{id}/reject.
//
//	@Summary		Reject review
//	@Description	Reject a queued merge
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string									true	"Review item ID"
//	@Param			body	body	jsonapi.Request[dto.ReviewDecisionAttributes]	false	"Decision"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/reviews/{id}/reject [post]
func (r *ReviewsRouter) Reject(w http.ResponseWriter, req *http.Request) {
	attrs, err := decodeOptional[dto.ReviewDecisionAttributes](req, jsonapi.TypeReview)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	item, err := r.client.Reviews.Reject(req.Context(), chi.URLParam(req, "id"), performer(attrs.By), attrs.Note)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.ReviewResource(item)))
}
