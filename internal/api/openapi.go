package api

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaspardpetit/chatfront/internal/logx"
)

func jsonResponse(desc string, schema *openapi3.Schema) *openapi3.ResponseRef {
	resp := openapi3.NewResponse().WithDescription(desc)
	if schema != nil {
		resp = resp.WithJSONSchema(schema)
	}
	return &openapi3.ResponseRef{Value: resp}
}

func responses(codes map[int]*openapi3.ResponseRef) *openapi3.Responses {
	opts := make([]openapi3.NewResponsesOption, 0, len(codes))
	for code, ref := range codes {
		opts = append(opts, openapi3.WithStatus(code, ref))
	}
	return openapi3.NewResponses(opts...)
}

func jsonBody(schema *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(schema)}
}

// Document builds the OpenAPI description of the JSON API.
func Document() *openapi3.T {
	detail := openapi3.NewObjectSchema().WithProperty("detail", openapi3.NewStringSchema())
	status := openapi3.NewObjectSchema().WithProperty("status", openapi3.NewStringSchema())
	email := openapi3.NewObjectSchema().WithProperty("email", openapi3.NewStringSchema())
	creds := openapi3.NewObjectSchema().
		WithProperty("email", openapi3.NewStringSchema()).
		WithProperty("password", openapi3.NewStringSchema()).
		WithRequired([]string{"email", "password"})
	generate := openapi3.NewObjectSchema().
		WithProperty("model", openapi3.NewStringSchema()).
		WithProperty("prompt", openapi3.NewStringSchema()).
		WithProperty("chat_id", openapi3.NewIntegerSchema()).
		WithProperty("options", openapi3.NewObjectSchema()).
		WithRequired([]string{"model", "prompt", "chat_id"})
	title := openapi3.NewObjectSchema().WithProperty("title", openapi3.NewStringSchema())
	models := openapi3.NewObjectSchema().WithProperty("models", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))

	unauthorized := jsonResponse("No session", detail)
	unavailable := jsonResponse("Backend unreachable", detail)
	passthrough := jsonResponse("Backend answer, forwarded as is", nil)

	sse := openapi3.NewResponse().
		WithDescription("Server-sent events relayed from the backend; failures arrive as a single error event").
		WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/event-stream"}))

	idParam := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewIntegerSchema())}

	paths := openapi3.NewPaths(
		openapi3.WithPath("/health", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "health",
			Summary:     "Backend health",
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Backend healthy", status),
				503: jsonResponse("Backend unhealthy", status),
			}),
		}}),
		openapi3.WithPath("/healthz", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "healthz",
			Summary:     "Process liveness",
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Serving", status),
				503: jsonResponse("Draining", status),
			}),
		}}),
		openapi3.WithPath("/api/auth/register", &openapi3.PathItem{Post: &openapi3.Operation{
			OperationID: "register",
			Summary:     "Create an account",
			RequestBody: jsonBody(creds),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: passthrough,
				502: unavailable,
			}),
		}}),
		openapi3.WithPath("/api/auth/login", &openapi3.PathItem{Post: &openapi3.Operation{
			OperationID: "login",
			Summary:     "Start a session",
			RequestBody: jsonBody(creds),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Logged in", email),
				401: passthrough,
				502: unavailable,
			}),
		}}),
		openapi3.WithPath("/api/auth/logout", &openapi3.PathItem{Post: &openapi3.Operation{
			OperationID: "logout",
			Summary:     "End the session",
			Responses: responses(map[int]*openapi3.ResponseRef{
				204: {Value: openapi3.NewResponse().WithDescription("Logged out")},
			}),
		}}),
		openapi3.WithPath("/api/me", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "me",
			Summary:     "Current identity",
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Identity", email),
				401: unauthorized,
			}),
		}}),
		openapi3.WithPath("/api/chats", &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "listChats",
				Summary:     "List chats",
				Responses: responses(map[int]*openapi3.ResponseRef{
					200: passthrough,
					401: unauthorized,
					502: unavailable,
				}),
			},
			Post: &openapi3.Operation{
				OperationID: "createChat",
				Summary:     "Create a chat",
				RequestBody: jsonBody(title),
				Responses: responses(map[int]*openapi3.ResponseRef{
					200: passthrough,
					401: unauthorized,
					502: unavailable,
				}),
			},
		}),
		openapi3.WithPath("/api/history/{id}", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "history",
			Summary:     "Messages of a chat",
			Parameters:  openapi3.Parameters{idParam},
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: passthrough,
				401: {Value: openapi3.NewResponse().WithDescription("No session")},
				502: unavailable,
			}),
		}}),
		openapi3.WithPath("/api/models", &openapi3.PathItem{Get: &openapi3.Operation{
			OperationID: "models",
			Summary:     "Available model names",
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: jsonResponse("Model names, never empty", models),
			}),
		}}),
		openapi3.WithPath("/api/generate", &openapi3.PathItem{Post: &openapi3.Operation{
			OperationID: "generate",
			Summary:     "Generate a complete answer",
			RequestBody: jsonBody(generate),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: passthrough,
				400: jsonResponse("Invalid input", detail),
				401: unauthorized,
				500: jsonResponse("Backend unreachable", detail),
			}),
		}}),
		openapi3.WithPath("/api/stream", &openapi3.PathItem{Post: &openapi3.Operation{
			OperationID: "stream",
			Summary:     "Stream an answer",
			RequestBody: jsonBody(generate),
			Responses: responses(map[int]*openapi3.ResponseRef{
				200: {Value: sse},
				400: jsonResponse("Invalid input", detail),
				401: unauthorized,
			}),
		}}),
	)

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "chatfront API",
			Version: "1.0.0",
		},
		Paths: paths,
	}
}

var (
	openapiOnce sync.Once
	openapiJSON []byte
)

// OpenAPIHandler serves the OpenAPI document.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		openapiOnce.Do(func() {
			b, err := Document().MarshalJSON()
			if err != nil {
				logx.Log.Error().Err(err).Msg("marshal openapi")
				return
			}
			openapiJSON = b
		})
		if openapiJSON == nil {
			writeDetail(w, http.StatusInternalServerError, "openapi document unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(openapiJSON); err != nil {
			logx.Log.Error().Err(err).Msg("write openapi")
		}
	}
}
