// CLAUDE:SUMMARY Sequential batch orchestrator with progress streaming and result persistence.
package dutyrun

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clearway/dutyrec/mawbinput"
	"github.com/clearway/dutyrec/session"
	"github.com/clearway/dutyrec/store"
)

// Orchestrator drains a batch one MAWB at a time. Items run strictly
// sequentially; the portal login flow is not safely re-entrant and one
// item's cost dominates anyway.
type Orchestrator struct {
	store    *store.Store
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(st *store.Store, p *Pipeline, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, pipeline: p, logger: logger}
}

// BatchHooks stream batch-level progress. Percent is the overall batch
// percentage, folding per-item stage fractions in.
type BatchHooks struct {
	Progress func(percent int, message string)
	Log      func(itemID, message string)
}

// RunBatch processes every item of the batch in position order,
// persisting one Result per item. Cancellation is observed between
// items only; an in-flight portal call runs to its timeout.
func (o *Orchestrator) RunBatch(ctx context.Context, batchID string, hooks BatchHooks) error {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("dutyrun: load batch: %w", err)
	}
	if batch == nil {
		return fmt.Errorf("dutyrun: batch %s not found", batchID)
	}
	items, err := o.store.GetBatchItems(ctx, batchID)
	if err != nil {
		return fmt.Errorf("dutyrun: load batch items: %w", err)
	}

	var sections Sections
	if err := json.Unmarshal([]byte(batch.SectionsJSON), &sections); err != nil {
		return fmt.Errorf("dutyrun: batch sections: %w", err)
	}

	if err := o.store.UpdateBatchStatus(ctx, batchID, "running"); err != nil {
		return fmt.Errorf("dutyrun: mark running: %w", err)
	}
	o.logger.Info("batch started", "batch_id", batchID, "items", len(items))

	n := len(items)
	for i, bi := range items {
		if ctx.Err() != nil {
			o.logger.Info("batch cancelled", "batch_id", batchID, "completed", i)
			// CancelBatch flips the batch and every still-pending item.
			if err := o.store.CancelBatch(context.WithoutCancel(ctx), batchID); err != nil {
				o.logger.Error("cancel persist failed", "batch_id", batchID, "error", err)
			}
			return ctx.Err()
		}
		if bi.Status == "cancelled" {
			continue
		}

		o.runItem(ctx, i, n, sections, bi, hooks)
	}

	if err := o.store.UpdateBatchStatus(ctx, batchID, "completed"); err != nil {
		return fmt.Errorf("dutyrun: mark completed: %w", err)
	}
	if hooks.Progress != nil {
		hooks.Progress(100, "batch complete")
	}
	o.logger.Info("batch completed", "batch_id", batchID)
	return nil
}

func (o *Orchestrator) runItem(ctx context.Context, i, n int, sections Sections, bi *store.BatchItem, hooks BatchHooks) {
	if err := o.store.StartBatchItem(ctx, bi.ID); err != nil {
		o.logger.Error("start item failed", "item_id", bi.ID, "error", err)
	}

	item, err := o.buildItem(ctx, sections, bi)
	if err != nil {
		o.logger.Error("item setup failed", "item_id", bi.ID, "error", err)
		o.finishItem(ctx, bi, &Outcome{
			MAWB:    bi.MAWB,
			Summary: NewSummary(bi.MAWB, bi.CheckbookHAWBs),
			Status:  "failed", ErrorMessage: err.Error(),
		}, "", "")
		return
	}

	runHooks := Hooks{
		Progress: func(msg string, frac float64) {
			if hooks.Progress != nil {
				pct := int((float64(i) + frac) / float64(n) * 100)
				hooks.Progress(pct, fmt.Sprintf("%s: %s", bi.MAWB, msg))
			}
		},
		Log: func(msg string) {
			if hooks.Log != nil {
				hooks.Log(bi.ID, msg)
			}
		},
	}

	out := o.pipeline.Run(ctx, *item, runHooks)
	o.finishItem(ctx, bi, out, item.BrokerName, item.TemplateName)
}

func mawbItem(bi *store.BatchItem) mawbinput.Item {
	return mawbinput.Item{
		MAWB:           bi.MAWB,
		AirportCode:    bi.AirportCode,
		Customer:       bi.Customer,
		CheckbookHAWBs: bi.CheckbookHAWBs,
	}
}

// buildItem resolves the broker credentials and template for one item.
func (o *Orchestrator) buildItem(ctx context.Context, sections Sections, bi *store.BatchItem) (*Item, error) {
	broker, err := o.store.GetBroker(ctx, bi.BrokerID)
	if err != nil {
		return nil, fmt.Errorf("load broker: %w", err)
	}
	if broker == nil {
		return nil, fmt.Errorf("broker %s not found", bi.BrokerID)
	}
	format, err := o.store.GetFormat(ctx, bi.FormatID)
	if err != nil {
		return nil, fmt.Errorf("load format: %w", err)
	}
	if format == nil {
		return nil, fmt.Errorf("format %s not found", bi.FormatID)
	}

	return &Item{
		Input: mawbItem(bi),
		Broker: session.Credentials{
			ID:           broker.ID,
			Username:     broker.Username,
			Password:     broker.Password,
			OTPURI:       broker.OTPURI,
			AuthRequired: broker.AuthRequired,
		},
		BrokerName:         broker.Name,
		TemplateName:       format.Name,
		TemplateIdentifier: format.TemplateIdentifier,
		TemplatePayload:    format.TemplatePayload,
		Sections:           sections,
	}, nil
}

// finishItem persists the Result row and closes the batch item.
func (o *Orchestrator) finishItem(ctx context.Context, bi *store.BatchItem, out *Outcome, brokerName, templateName string) {
	summaryJSON, err := json.Marshal(out.Summary)
	if err != nil {
		o.logger.Error("summary marshal failed", "item_id", bi.ID, "error", err)
	}
	sectionsJSON := "{}"
	if b, err := o.store.GetBatch(ctx, bi.BatchID); err == nil && b != nil {
		sectionsJSON = b.SectionsJSON
	}

	res := &store.Result{
		MAWB:         bi.MAWB,
		BrokerID:     bi.BrokerID,
		FormatID:     bi.FormatID,
		BatchID:      bi.BatchID,
		Status:       out.Status,
		BrokerName:   brokerName,
		TemplateName: templateName,
		AirportCode:  bi.AirportCode,
		Customer:     bi.Customer,
		SectionsJSON: sectionsJSON,
		SummaryJSON:  string(summaryJSON),
		ArtifactPath: out.ExcelKey,
		PDFPath:      out.PDFKey,
		PDFURL:       out.Summary["7501 Batch PDF URL"],
		ErrorMessage: out.ErrorMessage,
	}
	if res.PDFURL == "N/A" {
		res.PDFURL = ""
	}
	res.CompletedAt = time.Now().UnixMilli()
	if err := o.store.UpsertResult(ctx, res); err != nil {
		o.logger.Error("result upsert failed", "item_id", bi.ID, "error", err)
	}

	if err := o.store.FinishBatchItem(ctx, bi.ID, out.Status, res.ID, out.Logs); err != nil {
		o.logger.Error("finish item failed", "item_id", bi.ID, "error", err)
	}
	o.logger.Info("item finished",
		"item_id", bi.ID, "mawb", bi.MAWB, "status", out.Status)
}
