package agents

import (
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/models"
)

// Data source names cited in recommendations.
const (
	marketSource = "CompRanges.csv"
	paritySource = "EmployeeRoster.csv"
)

// collectData gathers market and parity data for a (job title, location)
// pair. It always returns a record with Collected set, so a later turn for
// the same pair can reuse it even when nothing matched.
func (w *Workflow) collectData(jobTitle, location string) *models.ResearchRecord {
	market := w.data.MarketCompensation(jobTitle, location)
	parity := w.data.InternalParity(jobTitle, location)

	rec := &models.ResearchRecord{
		JobTitle:    jobTitle,
		Location:    location,
		CollectedAt: w.now().UTC(),
		Collected:   true,
		MarketData: models.MarketResult{
			Source:    marketSource,
			Available: market != nil,
			Data:      market,
		},
		InternalParity: models.ParityResult{
			Source:    paritySource,
			Available: parity != nil,
			Data:      parity,
		},
	}

	if market != nil {
		w.logger.Info("market data found",
			zap.String("job_title", jobTitle),
			zap.String("location", location),
			zap.Float64("min", market.Min),
			zap.Float64("max", market.Max),
		)
	} else {
		w.logger.Warn("no market data",
			zap.String("job_title", jobTitle),
			zap.String("location", location),
		)
	}
	if parity != nil {
		w.logger.Info("internal parity found",
			zap.String("job_title", jobTitle),
			zap.String("location", location),
			zap.Int("employees", parity.Count),
		)
	}
	return rec
}
