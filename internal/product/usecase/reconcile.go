package usecase

import (
	"context"
	"time"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"go.uber.org/zap"
)

// Reconcile scans every counter for conservation violations. It only reports;
// the ledger and error logs are left untouched.
func (uc *productUseCase) Reconcile(ctx context.Context) (*dto.ReconcileReport, error) {
	counters, err := uc.repo.ListCounters(ctx, "")
	if err != nil {
		uc.logger.Error("reconciliation failed", zap.Error(err))
		return nil, err
	}

	report := &dto.ReconcileReport{Checked: len(counters), Findings: []dto.Finding{}, CheckedAt: time.Now()}
	discrepant := 0
	for _, c := range counters {
		found := false
		if c.Received > c.Produced {
			report.Findings = append(report.Findings, dto.Finding{
				ProductID: c.ProductID,
				Kind:      model.DiscrepancyReceivedExceedsProduced,
				Expected:  c.Produced,
				Actual:    c.Received,
			})
			found = true
		}
		if c.Delivered > c.Received {
			report.Findings = append(report.Findings, dto.Finding{
				ProductID: c.ProductID,
				Kind:      model.DiscrepancyDeliveredExceedsReceived,
				Expected:  c.Received,
				Actual:    c.Delivered,
			})
			found = true
		}
		if found {
			discrepant++
		}
	}

	uc.metrics.SetDiscrepantProducts(discrepant)
	for _, f := range report.Findings {
		uc.logger.Warn("counter out of balance",
			zap.String("product_id", f.ProductID),
			zap.String("kind", string(f.Kind)),
			zap.Int("expected", f.Expected),
			zap.Int("actual", f.Actual),
		)
	}
	uc.logger.Info("reconciliation finished", zap.Int("checked", report.Checked), zap.Int("discrepant", discrepant))
	return report, nil
}
