// CLAUDE:SUMMARY Batch submission, status, and cancellation handlers.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clearway/dutyrec/dutyrun"
	"github.com/clearway/dutyrec/mawbinput"
	"github.com/clearway/dutyrec/store"
)

type submitBatchRequest struct {
	InputText   string           `json:"input_text"`
	BrokerID    string           `json:"broker_id"`
	FormatID    string           `json:"format_id"`
	Sections    dutyrun.Sections `json:"sections"`
	InitiatedBy string           `json:"initiated_by"`
}

type submitBatchResponse struct {
	Batch     *store.Batch `json:"batch"`
	ItemCount int          `json:"item_count"`
}

// submitBatch parses the pasted input, records the batch, and hands it
// to the background worker. Parsing drops malformed lines silently;
// the caller sees the surviving count.
func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.BrokerID == "" || req.FormatID == "" {
		writeError(w, http.StatusBadRequest, "broker_id and format_id are required")
		return
	}

	parsed := mawbinput.Parse(req.InputText)
	if len(parsed) == 0 {
		writeError(w, http.StatusBadRequest, "no valid MAWBs in input")
		return
	}

	items := make([]*store.BatchItem, 0, len(parsed))
	for _, it := range parsed {
		items = append(items, &store.BatchItem{
			MAWB:           it.MAWB,
			AirportCode:    it.AirportCode,
			Customer:       it.Customer,
			CheckbookHAWBs: it.CheckbookHAWBs,
			BrokerID:       req.BrokerID,
			FormatID:       req.FormatID,
		})
	}

	sections := map[string]bool{
		"ams":               req.Sections.AMS,
		"entries":           req.Sections.Entries,
		"custom":            req.Sections.Custom,
		"download_7501_pdf": req.Sections.PDF,
	}
	batch, err := s.store.CreateBatch(r.Context(), sections, req.InitiatedBy, items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.startBatch(batch.ID)
	writeJSON(w, http.StatusAccepted, submitBatchResponse{Batch: batch, ItemCount: len(items)})
}

// startBatch runs the batch on the single worker slot. The context
// outlives the request; cancellation comes through the cancel endpoint.
func (s *Server) startBatch(batchID string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[batchID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.cancels, batchID)
			s.mu.Unlock()
			cancel()
		}()

		s.slot <- struct{}{}
		defer func() { <-s.slot }()

		if err := s.runner.RunBatch(ctx, batchID, dutyrun.BatchHooks{}); err != nil {
			s.logger.Error("batch run failed", "batch_id", batchID, "error", err)
		}
	}()
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	batches, err := s.store.ListBatches(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

type batchStatusResponse struct {
	Batch  *store.Batch      `json:"batch"`
	Counts store.BatchCounts `json:"counts"`
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	counts, err := s.store.BatchItemCounts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, batchStatusResponse{Batch: batch, Counts: counts})
}

func (s *Server) getBatchItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.GetBatchItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// cancelBatch stops a running batch at its next item boundary and
// marks pending work cancelled.
func (s *Server) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	cancel, running := s.cancels[id]
	s.mu.Unlock()
	if running {
		cancel()
	} else {
		// Not on the worker: flip the rows directly.
		if err := s.store.CancelBatch(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "was_running": running})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
