package main

import (
	"encoding/json"
	"net/http"

	"github.com/justinas/alice"

	"github.com/playback-history/collector/tools"
)

type catalogParam struct {
	Name        string          `json:"name"`
	Type        tools.ParamType `json:"type"`
	Required    bool            `json:"required"`
	Default     any             `json:"default,omitempty"`
	Description string          `json:"description"`
}

type catalogEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Parameters  []catalogParam `json:"parameters"`
}

func jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleCatalog serves GET /mcp/tools: an ordered enumeration of every
// registered tool's name, category, description, and parameter schema.
func handleCatalog(reg *tools.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defs := reg.Catalog()
		out := make([]catalogEntry, 0, len(defs))
		for _, d := range defs {
			params := make([]catalogParam, 0, len(d.Params))
			for _, p := range d.Params {
				params = append(params, catalogParam{
					Name: p.Name, Type: p.Type, Required: p.Required,
					Default: p.Default, Description: p.Description,
				})
			}
			out = append(out, catalogEntry{
				Name: d.Name, Description: d.Description, Category: d.Category, Parameters: params,
			})
		}
		jsonResponse(w, http.StatusOK, out)
	}
}

type callRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// handleCall serves POST /mcp/call: {tool, args} in, an Envelope out —
// 200 for every decodable request, since the envelope itself is where
// success/failure lives per spec.md §4.9 (tool-dispatch carries errors
// in-band, not as HTTP status codes). A body that does not decode as JSON
// gets a 400 with a plain error object instead of an envelope.
func handleCall(reg *tools.Registry, app *tools.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		env := tools.Dispatch(r.Context(), reg, app, req.Tool, req.Args)
		jsonResponse(w, http.StatusOK, env)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/mcp/tools", handleCatalog(s.registry))
	mux.HandleFunc("/mcp/call", requireSharedSecret(s.sharedSecret, handleCall(s.registry, s.app)))

	standard := alice.New()
	return standard.Then(mux)
}
