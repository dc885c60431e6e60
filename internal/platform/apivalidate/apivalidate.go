// Package apivalidate checks JSON API requests against the embedded OpenAPI
// document before they reach the handlers.
package apivalidate

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/taskboard-labs/taskboard/internal/platform/httpserver"
)

//go:embed openapi.yaml
var document []byte

type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// Document returns the embedded OpenAPI document.
func Document() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}

func New() (*Validator, error) {
	return NewFromData(document)
}

func NewFromData(data []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &Validator{doc: doc, router: router}, nil
}

// Middleware rejects documented requests that do not match their schema with
// a 422 envelope. Undocumented routes pass through untouched. The request is
// forwarded as the same value so the mux pattern stays visible to outer
// middleware.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v == nil || v.router == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := v.Check(r); err != nil {
			httpserver.WriteFailure(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check validates r in place. The request body is restored after reading.
func (v *Validator) Check(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		// path or method not described
		return nil
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return fmt.Errorf("invalid request: %s", summarize(err))
	}
	return nil
}

func summarize(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		var schemaErr *openapi3.SchemaError
		if errors.As(reqErr.Err, &schemaErr) {
			field := strings.Join(schemaErr.JSONPointer(), ".")
			if field != "" {
				return field + ": " + schemaErr.Reason
			}
			return schemaErr.Reason
		}
		if reqErr.Parameter != nil {
			return reqErr.Parameter.Name + ": " + firstLine(reqErr.Error())
		}
		if reqErr.Reason != "" {
			return reqErr.Reason
		}
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
