package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/identity"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
	"github.com/helixml/filegraph/infrastructure/api/v1/dto"
)

// DefaultRelatedDepth is how far GET /files/{id}/related walks by default.
const DefaultRelatedDepth = 1

// FilesRouter handles file API endpoints.
type FilesRouter struct {
	client     *filegraph.Client
	serializer *jsonapi.Serializer
	logger     *slog.Logger
}

// NewFilesRouter creates a new FilesRouter.
func NewFilesRouter(client *filegraph.Client) *FilesRouter {
	return &FilesRouter{
		client:     client,
		serializer: jsonapi.NewSerializer(),
		logger:     client.Logger(),
	}
}

// Routes returns the chi router for file endpoints.
func (r *FilesRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", r.List)
	router.Get("/duplicates", r.Duplicates)
	router.Get("/{id}", r.Get)
	router.Get("/{id}/related", r.Related)
	router.Get("/{id}/memberships", r.Memberships)
	router.Patch("/{id}/status", r.UpdateStatus)
	router.Post("/{id}/relationships", r.AddRelationship)

	return router
}

// List handles GET /api/v1/files.
// Supports query parameters: status, page, page_size
//
//	@Summary		List files
//	@Description	List observed files
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			status	query	string	false	"File status filter"
//	@Param			page		query	int	false	"Page number (default: 1)"
//	@Param			page_size	query	int	false	"Results per page (default: 20, max: 100)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/files [get]
func (r *FilesRouter) List(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	pg, err := parsePage(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	params := service.FileListParams{
		Limit:  pg.limit(),
		Offset: pg.offset(),
	}
	if raw := req.URL.Query().Get("status"); raw != "" {
		status, err := graph.ParseFileStatus(raw)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		params.Status = status
	}

	files, err := r.client.Files.List(ctx, params)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	total, err := r.client.Files.Count(ctx, params)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	doc := jsonapi.NewListResponse(r.serializer.FileResources(files))
	doc.Meta = pg.countedMeta(total)
	doc.Links = pg.links(req, total)
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// Get handles GET /api/v1/files/{id}.
//
//	@Summary		Get file
//	@Description	Get a file by canonical ID
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical file ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/files/{id} [get]
func (r *FilesRouter) Get(w http.ResponseWriter, req *http.Request) {
	id, ok := r.fileID(w, req)
	if !ok {
		return
	}

	file, err := r.client.Files.Get(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.FileResource(file)))
}

// Related handles GET /api/v1/files/{id}/related.
// Supports query parameters: type, depth (1 to 3)
//
//	@Summary		Get related files
//	@Description	Traverse relationships from a file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string	true	"Canonical file ID"
//	@Param			type	query	string	false	"Relationship type filter"
//	@Param			depth	query	int		false	"Traversal depth (1 to 3, default: 1)"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/files/{id}/related [get]
func (r *FilesRouter) Related(w http.ResponseWriter, req *http.Request) {
	id, ok := r.fileID(w, req)
	if !ok {
		return
	}

	var relType graph.RelationshipType
	if raw := req.URL.Query().Get("type"); raw != "" {
		t, err := graph.ParseRelationshipType(raw)
		if err != nil {
			middleware.WriteError(w, req, err, r.logger)
			return
		}
		relType = t
	}
	depth, err := queryInt(req, "depth", DefaultRelatedDepth)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	related, err := r.client.Files.Related(req.Context(), id, relType, depth)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.RelatedFileResources(related)))
}

// Memberships handles GET /api/v1/files/{id}/memberships.
//
//	@Summary		List file memberships
//	@Description	List the entities a file belongs to
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id	path	string	true	"Canonical file ID"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Router			/files/{id}/memberships [get]
func (r *FilesRouter) Memberships(w http.ResponseWriter, req *http.Request) {
	id, ok := r.fileID(w, req)
	if !ok {
		return
	}

	memberships, err := r.client.Files.Memberships(req.Context(), id)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewListResponse(r.serializer.MembershipResources(memberships)))
}

// Duplicates handles GET /api/v1/files/duplicates.
// Supports query parameters: content_hash (optional)
//
//	@Summary		List duplicate files
//	@Description	List groups of files sharing a content hash
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			content_hash	query	string	false	"Restrict to one content hash"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		500	{object}	map[string]string
//	@Router			/files/duplicates [get]
func (r *FilesRouter) Duplicates(w http.ResponseWriter, req *http.Request) {
	groups, err := r.client.Files.Duplicates(req.Context(), req.URL.Query().Get("content_hash"))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	resources := make([]*jsonapi.Resource, 0, len(groups))
	for _, group := range groups {
		resources = append(resources, r.serializer.FileResources(group)...)
	}
	doc := jsonapi.NewListResponse(resources)
	doc.Meta = &jsonapi.Meta{"groups": len(groups)}
	middleware.WriteJSONAPI(w, http.StatusOK, doc)
}

// UpdateStatus handles PATCH /api/v1/files/{id}/status.
//
//	@Summary		Update file status
//	@Description	Set the lifecycle status of a file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string								true	"Canonical file ID"
//	@Param			body	body	jsonapi.Request[dto.FileStatusAttributes]	true	"Status request"
//	@Success		200	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/files/{id}/status [patch]
func (r *FilesRouter) UpdateStatus(w http.ResponseWriter, req *http.Request) {
	id, ok := r.fileID(w, req)
	if !ok {
		return
	}

	attrs, err := decode[dto.FileStatusAttributes](req, jsonapi.TypeFile)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	status, err := graph.ParseFileStatus(attrs.Status)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	file, err := r.client.Files.UpdateStatus(req.Context(), id, status, attrs.Reason)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusOK, jsonapi.NewSingleResponse(r.serializer.FileResource(file)))
}

// AddRelationship handles POST /api/v1/files/{id}/relationships.
//
//	@Summary		Add relationship
//	@Description	Link a file to another file
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path	string									true	"Canonical file ID"
//	@Param			body	body	jsonapi.Request[dto.RelationshipAttributes]	true	"Relationship request"
//	@Success		201	{object}	jsonapi.Document
//	@Failure		400	{object}	map[string]string
//	@Failure		401	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		APIKeyAuth
//	@Router			/files/{id}/relationships [post]
func (r *FilesRouter) AddRelationship(w http.ResponseWriter, req *http.Request) {
	id, ok := r.fileID(w, req)
	if !ok {
		return
	}

	attrs, err := decode[dto.RelationshipAttributes](req, jsonapi.TypeRelationship)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	relType, err := graph.ParseRelationshipType(attrs.Type)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	rel, err := r.client.Files.FlagRelationship(req.Context(), merge.RelationshipRequest{
		Source:     id,
		Target:     attrs.Target,
		Type:       relType,
		Confidence: confidenceOr(attrs.Confidence, 1.0),
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSONAPI(w, http.StatusCreated, jsonapi.NewSingleResponse(r.serializer.RelationshipResource(rel)))
}

func (r *FilesRouter) fileID(w http.ResponseWriter, req *http.Request) (string, bool) {
	id := chi.URLParam(req, "id")
	if err := identity.ValidateFileID(id); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return "", false
	}
	return id, true
}
