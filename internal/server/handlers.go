package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
)

const maxUploadBytes = 32 << 20 // 32 MB

// handleProcess accepts a multipart upload under "file", runs the pipeline,
// and persists the result. Pipeline failure is reported in the result body,
// not as a transport error.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read upload failed")
		return
	}

	res := s.proc.ProcessInvoice(r.Context(), data, header.Filename)

	inv, err := s.invoices.SaveResult(r.Context(), header.Filename, res)
	if err != nil {
		s.logger.Error("persist invoice failed", "filename", header.Filename, "error", err)
		s.respondError(w, http.StatusInternalServerError, "persist failed")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"id":     inv.ID,
		"result": res,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.invoices.List(r.Context())
	if err != nil {
		s.logger.Error("list invoices failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "list failed")
		return
	}
	s.respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	inv, err := s.invoices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "invoice not found")
			return
		}
		s.logger.Error("get invoice failed", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "get failed")
		return
	}
	s.respondJSON(w, http.StatusOK, inv)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.exporter.ExportInvoicesXLSX(r.Context())
	if err != nil {
		s.logger.Error("export failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode error", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
