package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"coderag/internal/index"
)

const maxBodyBytes = 1 << 20

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	TenantID string `json:"tenant_id"`
	// Source is a local directory or a git URL.
	Source string `json:"source"`
}

// SearchRequest is the body of POST /search and POST /query.
type SearchRequest struct {
	TenantID string `json:"tenant_id"`
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// ChunkDTO is one retrieved chunk.
type ChunkDTO struct {
	Rank        int     `json:"rank"`
	Position    int     `json:"position"`
	Score       float32 `json:"score"`
	Kind        string  `json:"kind"`
	FileName    string  `json:"file_name"`
	SymbolName  string  `json:"symbol_name"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	CodeSnippet string  `json:"code_snippet"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	TenantID   string     `json:"tenant_id"`
	Status     string     `json:"status"`
	Generation int64      `json:"generation,omitempty"`
	Chunks     []ChunkDTO `json:"chunks"`
	Warnings   []string   `json:"warnings,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	TenantID string     `json:"tenant_id"`
	Answer   string     `json:"answer"`
	Status   string     `json:"status"`
	Chunks   []ChunkDTO `json:"chunks"`
}

// TenantDTO describes a tenant's live corpus.
type TenantDTO struct {
	TenantID   string    `json:"tenant_id"`
	Generation int64     `json:"generation"`
	ChunkCount int       `json:"chunk_count"`
	Dimension  int       `json:"vector_dimension"`
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	BuiltAt    time.Time `json:"built_at"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var body IngestRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.TenantID) == "" || strings.TrimSpace(body.Source) == "" {
		s.writeError(w, r, fmt.Errorf("%w: tenant_id and source are required", errBadRequest))
		return
	}

	if err := s.policy.Check(body.Source); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Reserve before cloning.
	res, err := s.service.Reserve(body.TenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer res.Release()

	ctx := r.Context()
	tree, err := s.sources.Materialize(ctx, body.Source)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() {
		if err := tree.Cleanup(); err != nil {
			s.logger.Warn("source cleanup failed", "root", tree.Root, "error", err)
		}
	}()

	summary, err := res.Ingest(ctx, tree.Root)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	body, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	res := s.service.Search(r.Context(), body.TenantID, body.Question, body.K)
	writeJSON(w, http.StatusOK, SearchResponse{
		TenantID:   res.TenantID,
		Status:     string(res.Status),
		Generation: res.Generation,
		Chunks:     chunkDTOs(res.Hits),
		Warnings:   res.Warnings,
		Reason:     res.Reason,
	})
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "no answer generator configured"})
		return
	}
	body, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	ans, err := s.asker.Ask(r.Context(), body.TenantID, body.Question, body.K)
	if err != nil {
		s.logger.Error("answer generation failed", "tenant", body.TenantID, "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		TenantID: body.TenantID,
		Answer:   ans.Text,
		Status:   string(ans.Search.Status),
		Chunks:   chunkDTOs(ans.Search.Hits),
	})
}

func (s *Server) listTenants(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.service.Tenants(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]TenantDTO, len(manifests))
	for i, m := range manifests {
		out[i] = TenantDTO{
			TenantID:   m.TenantID,
			Generation: m.Generation,
			ChunkCount: m.ChunkCount,
			Dimension:  m.Dimension,
			Backend:    m.Backend,
			Model:      m.Model,
			BuiltAt:    m.BuiltAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (SearchRequest, bool) {
	var body SearchRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return body, false
	}
	if strings.TrimSpace(body.TenantID) == "" || strings.TrimSpace(body.Question) == "" {
		s.writeError(w, r, fmt.Errorf("%w: tenant_id and question are required", errBadRequest))
		return body, false
	}
	if body.K < 0 {
		s.writeError(w, r, fmt.Errorf("%w: k must not be negative", errBadRequest))
		return body, false
	}
	return body, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

func chunkDTOs(hits []index.Hit) []ChunkDTO {
	out := make([]ChunkDTO, len(hits))
	for i, h := range hits {
		out[i] = ChunkDTO{
			Rank:        h.Rank,
			Position:    h.Position,
			Score:       h.Score,
			Kind:        h.Record.Kind,
			FileName:    h.Record.FileName,
			SymbolName:  h.Record.SymbolName,
			StartLine:   h.Record.StartLine,
			EndLine:     h.Record.EndLine,
			CodeSnippet: h.Record.CodeSnippet,
		}
	}
	return out
}
