package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
)

// CategoriesRouter serves the category hierarchy.
type CategoriesRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewCategoriesRouter creates a new CategoriesRouter.
func NewCategoriesRouter(client *filegraph.Client) *CategoriesRouter {
	return &CategoriesRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for category endpoints.
func (r *CategoriesRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/tree", r.Tree)
	return router
}

// Tree handles GET /api/v1/categories/tree.
//
//	@Summary		Get category tree
//	@Description	Get live categories as a forest of roots
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	jsonapi.Document
//	@Failure		500	{object}	map[string]string
//	@Router			/categories/tree [get]
func (r *CategoriesRouter) Tree(w http.ResponseWriter, req *http.Request) {
	roots, err := r.client.Entities.CategoryTree(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.CategoryResources(roots)))
}
