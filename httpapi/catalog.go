// CLAUDE:SUMMARY Broker and format catalog handlers.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearway/dutyrec/store"
)

// redactBroker strips credentials from an API response. They go in via
// POST/PUT but never come back out.
func redactBroker(b *store.Broker) *store.Broker {
	out := *b
	out.Password = ""
	out.OTPURI = ""
	return &out
}

func (s *Server) listBrokers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	brokers, err := s.store.ListBrokers(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]*store.Broker, 0, len(brokers))
	for _, b := range brokers {
		out = append(out, redactBroker(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createBroker(w http.ResponseWriter, r *http.Request) {
	var b store.Broker
	if !readJSON(w, r, &b) {
		return
	}
	if err := s.store.InsertBroker(r.Context(), &b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, redactBroker(&b))
}

func (s *Server) getBroker(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBroker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "broker not found")
		return
	}
	writeJSON(w, http.StatusOK, redactBroker(b))
}

func (s *Server) updateBroker(w http.ResponseWriter, r *http.Request) {
	var b store.Broker
	if !readJSON(w, r, &b) {
		return
	}
	b.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateBroker(r.Context(), &b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, redactBroker(&b))
}

func (s *Server) deleteBroker(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteBroker(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listFormats(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	formats, err := s.store.ListFormats(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, formats)
}

func (s *Server) createFormat(w http.ResponseWriter, r *http.Request) {
	var f store.Format
	if !readJSON(w, r, &f) {
		return
	}
	if err := s.store.InsertFormat(r.Context(), &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &f)
}

func (s *Server) getFormat(w http.ResponseWriter, r *http.Request) {
	f, err := s.store.GetFormat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "format not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) updateFormat(w http.ResponseWriter, r *http.Request) {
	var f store.Format
	if !readJSON(w, r, &f) {
		return
	}
	f.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateFormat(r.Context(), &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &f)
}

func (s *Server) deleteFormat(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFormat(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
