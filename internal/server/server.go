package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sellconfig/internal/apperr"
	"sellconfig/internal/engine"
	"sellconfig/internal/logging"
	"sellconfig/internal/repo"
)

const (
	DefaultBasePath = "/api/admin"
	maxBodyBytes    = 1 << 20
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

// apiError is the failure form of the {success, data, message} envelope.
type apiError struct {
	status  int
	Success bool           `json:"success"`
	Code    string         `json:"code" example:"invalid_rule_set"`
	Message string         `json:"message" example:"floorPrice 200 exceeds capPrice 100"`
	Details map[string]any `json:"details,omitempty"`
}

type requestKey struct{}
type bodyBytesKey struct{}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the admin sell-config API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	log := logging.OrNop(cfg.Logger)
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request schema failures are client input errors.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
			msg = msg + ": " + strings.Join(msgs, "; ")
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", nil))
				return
			}
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Sell Config Admin API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerSellConfig(group, cfg.Engine)
	registerTestPricing(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Success: false,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// handleError maps engine errors onto statuses. Every validation kind is a
// 400 carrying the kind as its code.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	kind := apperr.KindOf(err)
	switch {
	case kind.Validation():
		return newAPIError(http.StatusBadRequest, string(kind), err.Error(), nil)
	case kind == apperr.KindMissingRuleSet:
		return newAPIError(http.StatusUnprocessableEntity, string(kind), err.Error(), nil)
	case kind == apperr.KindVersionConflict:
		return newAPIError(http.StatusConflict, string(kind), err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", "request cancelled", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				log.Error("request failed", fields...)
				return
			}
			log.Info("request", fields...)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error envelope with success=false",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{
							Type: huma.TypeObject,
							Properties: map[string]*huma.Schema{
								"success": {Type: huma.TypeBoolean},
								"code":    {Type: huma.TypeString},
								"message": {Type: huma.TypeString},
							},
						},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := publicPaths(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if _, ok := open[route]; ok {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Sell Config API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;admin token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthEnvelope `json:"body"`
	}, error) {
		return &struct {
			Body HealthEnvelope `json:"body"`
		}{Body: HealthEnvelope{Success: true, Data: map[string]string{"status": "ok"}}}, nil
	})
}

type productPath struct {
	ProductID string `path:"productId" maxLength:"128"`
}

type sellConfigOutput struct {
	Body SellConfigEnvelope `json:"body"`
}

func registerSellConfig(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sell-configs",
		Method:      http.MethodGet,
		Path:        "/sell-config",
		Summary:     "List configured products",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SellConfigListEnvelope `json:"body"`
	}, error) {
		items, err := e.ListSellConfigs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SellConfigListEnvelope `json:"body"`
		}{Body: SellConfigListEnvelope{Success: true, Data: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sell-config",
		Method:      http.MethodGet,
		Path:        "/sell-config/{productId}",
		Summary:     "Get a product's workflow steps, rules and options",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *productPath) (*sellConfigOutput, error) {
		c, err := e.GetSellConfig(ctx, input.ProductID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sellConfigOutput{Body: SellConfigEnvelope{Success: true, Data: normalizeConfig(c)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-sell-config",
		Method:      http.MethodPost,
		Path:        "/sell-config",
		Summary:     "Create or replace a product's sell configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SaveSellConfigRequest `json:"body"`
	}) (*sellConfigOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		c, err := e.SaveSellConfig(ctx, engine.SaveOptions{
			ProductID:       input.Body.ProductID,
			Steps:           input.Body.Steps,
			Rules:           input.Body.Rules,
			Options:         input.Body.Options,
			ExpectedVersion: input.Body.Version,
			ActorID:         actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sellConfigOutput{Body: SellConfigEnvelope{Success: true, Data: normalizeConfig(c), Message: "Sell configuration saved"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sell-config-rules",
		Method:      http.MethodPut,
		Path:        "/sell-config/{productId}/rules",
		Summary:     "Replace only the pricing rules",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		productPath
		Body UpdateRulesRequest `json:"body"`
	}) (*sellConfigOutput, error) {
		c, err := e.UpdateRules(ctx, input.ProductID, actorID(ctx), input.Body.Rules)
		if err != nil {
			return nil, handleError(err)
		}
		return &sellConfigOutput{Body: SellConfigEnvelope{Success: true, Data: normalizeConfig(c), Message: "Pricing rules updated"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-sell-config",
		Method:      http.MethodPost,
		Path:        "/sell-config/{productId}/reset",
		Summary:     "Restore default rules and steps",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *productPath) (*sellConfigOutput, error) {
		c, err := e.ResetSellConfig(ctx, input.ProductID, actorID(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &sellConfigOutput{Body: SellConfigEnvelope{Success: true, Data: normalizeConfig(c), Message: "Sell configuration reset to defaults"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-sell-config",
		Method:      http.MethodDelete,
		Path:        "/sell-config/{productId}",
		Summary:     "Delete a product's sell configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *productPath) (*struct {
		Body MessageEnvelope `json:"body"`
	}, error) {
		if err := e.DeleteSellConfig(ctx, input.ProductID, actorID(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageEnvelope `json:"body"`
		}{Body: MessageEnvelope{Success: true, Message: "Sell configuration deleted"}}, nil
	})
}

func registerTestPricing(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "test-pricing",
		Method:      http.MethodPost,
		Path:        "/sell-config/{productId}/test-pricing",
		Summary:     "Preview a price against the stored rules",
		Description: "Evaluates basePrice through the explicit adjustments and then the selected options. Nothing is persisted.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		productPath
		Body TestPricingRequest `json:"body"`
	}) (*struct {
		Body PricingEnvelope `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		res, err := e.TestPricing(ctx, input.ProductID, engine.PricingRequest{
			BasePrice:   input.Body.BasePrice,
			Adjustments: input.Body.Adjustments,
			Selected:    input.Body.Selected,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res.Breakdown = nonNilSlice(res.Breakdown)
		return &struct {
			Body PricingEnvelope `json:"body"`
		}{Body: PricingEnvelope{Success: true, Data: res}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sell-config-events",
		Method:      http.MethodGet,
		Path:        "/sell-config/{productId}/events",
		Summary:     "Audit history of a product's configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		productPath
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body EventsEnvelope `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, input.ProductID, limit+1, cursorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body EventsEnvelope `json:"body"`
		}{Body: EventsEnvelope{Success: true, Data: resp}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint an admin JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginEnvelope `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actorId is required", nil)
		}
		roles := input.Body.Roles
		if len(roles) == 0 {
			roles = []string{authCfg.adminRole()}
		}
		token, err := SignToken(authCfg.JWTSecret, actor, roles, time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginEnvelope `json:"body"`
		}{Body: DevLoginEnvelope{Success: true, Data: DevLoginResponse{Token: token}}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
