package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/unmark"
	"github.com/hazyhaar/unmark/internal/urlcheck"
)

// Handler returns the HTTP API.
//
//	GET    /healthz
//	POST   /api/rewrite           {"src","token","secondary"}
//	POST   /api/html              raw HTML body; ?format=html|markdown&sanitize=1&base=URL
//	GET    /api/rewrites          ?limit=N
//	GET    /api/pages
//	POST   /api/pages             {"id","url"}
//	DELETE /api/pages/{id}
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID(s.logger))
	r.Use(apiHeaders)
	r.Use(maxBody(s.cfg.MaxBody))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/rewrite", s.handleRewrite)
		r.Post("/html", s.handleHTML)
		r.Get("/rewrites", s.handleRecent)

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", s.handlePages)
			r.Post("/", s.handleWatch)
			r.Delete("/{id}", s.handleUnwatch)
		})
	})
	return r
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var req rewriteURLReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.rewriteURL(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHTML(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	q := r.URL.Query()
	resp, err := s.rewriteHTML(&rewriteHTMLReq{
		HTML:     string(body),
		Format:   q.Get("format"),
		Sanitize: q.Get("sanitize") == "1" || q.Get("sanitize") == "true",
		BaseURL:  q.Get("base"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	loggerFrom(r.Context()).Info("server: html rewritten", "format", resp.Format, "rewritten", resp.Rewritten)

	ct := "text/html; charset=utf-8"
	if resp.Format == "markdown" {
		ct = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Unmark-Rewritten", strconv.Itoa(resp.Rewritten))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, resp.Content)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	list, err := s.recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePages(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoDaemon)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Pages.Stats())
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoDaemon)
		return
	}
	var req unmark.PageConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := urlcheck.PageID(req.ID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := urlcheck.Page(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// The page outlives the request.
	if err := s.cfg.Pages.WatchPage(context.WithoutCancel(r.Context()), req); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "watching", "url": req.URL})
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoDaemon)
		return
	}
	id := chi.URLParam(r, "id")
	if !s.cfg.Pages.Unwatch(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "page not watched"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func statusFor(err error) int {
	if errors.Is(err, ErrNoLedger) || errors.Is(err, ErrNoDaemon) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
