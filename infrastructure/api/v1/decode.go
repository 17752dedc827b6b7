package v1

import (
	"net/http"
	"strconv"

	"github.com/helixml/filegraph/infrastructure/api/jsonapi"
	"github.com/helixml/filegraph/infrastructure/api/middleware"
)

// DefaultPerformer is recorded on writes whose request names no actor.
const DefaultPerformer = "api"

// decode reads a JSON:API request document. Malformed bodies are 400s.
func decode[A any](req *http.Request, resourceType string) (A, error) {
	attrs, err := jsonapi.DecodeRequest[A](req.Body, resourceType)
	if err != nil {
		return attrs, middleware.NewAPIError(http.StatusBadRequest, err.Error(), err)
	}
	return attrs, nil
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional[A any](req *http.Request, resourceType string) (A, error) {
	if req.Body == nil || req.ContentLength == 0 {
		var zero A
		return zero, nil
	}
	return decode[A](req, resourceType)
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(req *http.Request, name string, def int) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, middleware.NewAPIError(http.StatusBadRequest, "invalid "+name+" parameter", err)
	}
	return n, nil
}

func performer(name string) string {
	if name == "" {
		return DefaultPerformer
	}
	return name
}

func confidenceOr(c *float64, def float64) float64 {
	if c == nil {
		return def
	}
	return *c
}
