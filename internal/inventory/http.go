package inventory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Inventory/pkg/kit"
)

const maxBodyBytes = 10 << 20

type Server struct {
	Service *Service
	Log     *zap.Logger

	// WriteLimiter throttles mutating routes per client IP when set.
	WriteLimiter *kit.IPRateLimiter
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	s.mount(r)
	return r
}

func (s *Server) mount(r chi.Router) {
	r.Get("/health", s.health)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Get("/products", s.list)

	r.Group(func(wr chi.Router) {
		if s.WriteLimiter != nil {
			wr.Use(s.WriteLimiter.Middleware)
		}
		wr.Post("/products", s.create)
		wr.Put("/products", s.replaceAll)
		wr.Put("/products/{key}", s.update)
		wr.Delete("/products/{key}", s.delete)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Service.Store.Ping(ctx); err != nil {
		s.logger().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Service.List(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	p, err := DecodeProduct(raw)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "object expected", map[string]any{"cause": err.Error()})
		return
	}

	created, err := s.Service.Create(r.Context(), p)
	if err != nil {
		s.serverError(w, r, "create product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	partial, err := DecodeProduct(raw)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "object expected", map[string]any{"cause": err.Error()})
		return
	}

	merged, err := s.Service.Update(r.Context(), key, partial)
	if errors.Is(err, ErrNotFound) {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{KeyField: key})
		return
	}
	if err != nil {
		s.serverError(w, r, "update product failed", err, zap.String(KeyField, key))
		return
	}
	kit.WriteJSON(w, http.StatusOK, merged)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	key, ok := pathKey(w, r)
	if !ok {
		return
	}

	removed, err := s.Service.Delete(r.Context(), key)
	if err != nil {
		s.serverError(w, r, "delete product failed", err, zap.String(KeyField, key))
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) replaceAll(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.readBody(w, r)
	if !ok {
		return
	}

	products, err := DecodeCollection(raw)
	if err != nil {
		msg := "array expected"
		if errors.Is(err, ErrNotObjects) {
			msg = "array of objects expected"
		}
		kit.WriteError(w, r, http.StatusBadRequest, msg, map[string]any{"cause": err.Error()})
		return
	}

	total, err := s.Service.ReplaceAll(r.Context(), products)
	if err != nil {
		s.serverError(w, r, "replace products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "total": total})
}

// pathKey returns the decoded {key} segment. chi matches on RawPath when the
// request carries one, so the param is still escaped in that case (a key
// holding "/" arrives as %2F).
func pathKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath == "" {
		return key, true
	}

	decoded, err := url.PathUnescape(key)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad key", map[string]any{"cause": err.Error()})
		return "", false
	}
	return decoded, true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			kit.WriteError(w, r, http.StatusRequestEntityTooLarge, "body too large", map[string]any{"limit": maxBodyBytes})
			return nil, false
		}
		kit.WriteError(w, r, http.StatusBadRequest, "bad body", map[string]any{"cause": err.Error()})
		return nil, false
	}
	return raw, true
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	s.logger().Error(msg, append(fields, zap.Error(err))...)
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}

func (s *Server) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
