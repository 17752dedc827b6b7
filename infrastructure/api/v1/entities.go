package v1

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
)

// EntitiesRouter handles entity API endpoints.
type EntitiesRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewEntitiesRouter creates a new EntitiesRouter.
func NewEntitiesRouter(client *filegraph.Client) *EntitiesRouter {
	return &EntitiesRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for entity endpoints.
func (r *EntitiesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Get("/{id}", r.Get)
	router.Get("/{id}/live", r.Resolve)
	router.Get("/{id}/files", r.Files)
	router.Get("/{id}/merges", r.Merges)

	return router
}

// List handles GET /api/v1/entities.
// Supports query parameters: type (required), include_absorbed, page, page_size
//
//	@Summary		List entities
//	@Description	List entities of one type
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			type				query	string	true	"Entity type (category, company, person, location)"
//	@Param			include_absorbed	query	bool	false	"Include absorbed entities"
//	@Param			page		query	int	false	"Page number (default: 1)"
//	@Param			page_size	query	int	false	"Results per page (default: 20, max: 100)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/entities [get]
func (r *EntitiesRouter) List(w http.ResponseWriter, req *http.Request) {
	t, err := graph.ParseEntityType(req.URL.Query().Get("type"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	includeAbsorbed := false
	if raw := req.URL.Query().Get("include_absorbed"); raw != "" {
		includeAbsorbed, err = strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteError(w, req, middleware.NewAPIError(http.StatusBadRequest, "invalid include_absorbed parameter", err), r.logger)
			return
		}
	}

	pg, err := parsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	entities, err := r.client.Entities.List(req.Context(), t, includeAbsorbed, pg.limit(), pg.offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.EntityResources(entities))
	doc.Meta = pg.meta()
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Get handles GET /api/v1/entities/{id}.
// The entity is returned as stored, absorbed or not.
//
//	@Summary		Get entity
//	@Description	Get an entity by canonical ID
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical entity ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/entities/{id} [get]
func (r *EntitiesRouter) Get(w http.ResponseWriter, req *http.Request) {
	id, ok := r.entityID(w, req)
	if !ok {
		return
	}

	entity, err := r.client.Entities.Get(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.EntityResource(entity)))
}

// Resolve handles GET /api/v1/entities/{id}/live.
// Follows the merge chain to the live entity.
//
//	@Summary		Resolve live entity
//	@Description	Follow the merge chain of an entity to its live form
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical entity ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/entities/{id}/live [get]
func (r *EntitiesRouter) Resolve(w http.ResponseWriter, req *http.Request) {
	id, ok := r.entityID(w, req)
	if !ok {
		return
	}

	entity, err := r.client.Entities.Resolve(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.EntityResource(entity)))
}

// Files handles GET /api/v1/entities/{id}/files.
//
//	@Summary		List entity files
//	@Description	List files linked to the live form of an entity
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical entity ID"
//	@Param			page		query	int	false	"Page number (default: 1)"
//	@Param			page_size	query	int	false	"Results per page (default: 20, max: 100)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/entities/{id}/files [get]
func (r *EntitiesRouter) Files(w http.ResponseWriter, req *http.Request) {
	id, ok := r.entityID(w, req)
	if !ok {
		return
	}

	pg, err := parsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	files, err := r.client.Entities.ListFiles(req.Context(), id, pg.limit(), pg.offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.FileResources(files))
	doc.Meta = pg.meta()
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Merges handles GET /api/v1/entities/{id}/merges.
//
//	@Summary		Get merge history
//	@Description	Get every merge that fed into the live form of an entity
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical entity ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/entities/{id}/merges [get]
func (r *EntitiesRouter) Merges(w http.ResponseWriter, req *http.Request) {
	id, ok := r.entityID(w, req)
	if !ok {
		return
	}

	events, err := r.client.Merges.History(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.MergeEventResources(events)))
}

func (r *EntitiesRouter) entityID(w http.ResponseWriter, req *http.Request) (string, bool) {
	id := chi.URLParam(req, "id")
	if err := identity.ValidateEntityID(id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return "", false
	}
	return id, true
}
