// Package server exposes the workspace over HTTP for automation
// clients.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"worktrack/internal/event"
	"worktrack/internal/patch"
	"worktrack/internal/workspace"
)

// Config for the HTTP API handler.
type Config struct {
	Workspace *workspace.Workspace
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"item not found: fs:fix-login"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the worktrack API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("server: workspace is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("worktrack API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerSearch(group, cfg.Workspace)
	registerItems(group, cfg.Workspace)
	registerEvents(group, cfg.Workspace)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workspace.ErrItemNotFound), errors.Is(err, workspace.ErrWorkspaceNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, workspace.ErrItemExists):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, workspace.ErrInvalidUID),
		errors.Is(err, workspace.ErrInvalidSlug),
		errors.Is(err, patch.ErrInvalidPath):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, workspace.ErrSerialization):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSearch(api huma.API, ws *workspace.Workspace) {
	huma.Register(api, huma.Operation{
		OperationID: "search-items",
		Method:      http.MethodPost,
		Path:        "/search",
		Summary:     "Search items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SearchRequest `json:"body"`
	}) (*struct {
		Body []ItemResponse `json:"body"`
	}, error) {
		items, err := ws.ListItems(workspace.Filter{
			State:    input.Body.State,
			Assignee: input.Body.Assignee,
			Label:    input.Body.Label,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ItemResponse `json:"body"`
		}{Body: mapItems(items)}, nil
	})
}

func registerItems(api huma.API, ws *workspace.Workspace) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		it, err := ws.CreateItem(input.Body.Title, workspace.CreateOptions{
			Description: input.Body.Description,
			State:       input.Body.State,
			Assignee:    input.Body.Assignee,
			Labels:      input.Body.Labels,
			Fields:      input.Body.Fields,
			Actor:       actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{uid}",
		Summary:     "Get item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UID string `path:"uid"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		it, err := ws.GetItem(input.UID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-fields",
		Method:      http.MethodPost,
		Path:        "/items/{uid}/set",
		Summary:     "Set item fields by path",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		UID  string           `path:"uid"`
		Body SetFieldsRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		if len(input.Body.Operations) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "operations is required", nil)
		}
		ops := make([]patch.SetOperation, 0, len(input.Body.Operations))
		for _, op := range input.Body.Operations {
			if op.Path == "" {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "operation path is required", nil)
			}
			ops = append(ops, patch.SetOperation{Path: op.Path, Value: op.Value})
		}
		it, err := ws.SetFields(input.UID, ops, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-item",
		Method:      http.MethodPatch,
		Path:        "/items/{uid}",
		Summary:     "Merge-patch item",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		UID  string         `path:"uid"`
		Body map[string]any `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		it, err := ws.PatchItem(input.UID, anyMap(input.Body), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(it)}, nil
	})
}

func registerEvents(api huma.API, ws *workspace.Workspace) {
	huma.Register(api, huma.Operation{
		OperationID: "list-item-events",
		Method:      http.MethodGet,
		Path:        "/items/{uid}/events",
		Summary:     "List item events",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UID       string `path:"uid"`
		SinceDays int    `query:"since_days" minimum:"0"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		var since *time.Time
		if input.SinceDays > 0 {
			cutoff := time.Now().UTC().AddDate(0, 0, -input.SinceDays)
			since = &cutoff
		}
		events, err := ws.ReadEvents(input.UID, since)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(events)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-item-event",
		Method:        http.MethodPost,
		Path:          "/items/{uid}/events",
		Summary:       "Append item event",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		UID  string             `path:"uid"`
		Body AppendEventRequest `json:"body"`
	}) (*struct {
		Body EventResponse `json:"body"`
	}, error) {
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "type is required", nil)
		}
		ev := event.New(event.Type(input.Body.Type), input.Body.Payload)
		if actor := actorFromContext(ctx); actor != "" {
			ev = ev.WithActor(actor)
		}
		if err := ws.AppendEvent(input.UID, ev); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventResponse `json:"body"`
		}{Body: eventResponse(ev)}, nil
	})
}

// anyMap keeps explicit nulls distinguishable from absent keys for
// merge-patch semantics.
func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
