package usecase

import (
	"speedliner/internal/domain/models"
	drepo "speedliner/internal/domain/repository"
)

type nopMetrics struct{}

func (nopMetrics) RecordQuote(bool)                     {}
func (nopMetrics) RecordValidationFailure(string)       {}
func (nopMetrics) RecordSubmission(models.AuditOutcome) {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordLatency(string, float64)        {}
func (nopMetrics) SetRoutesLoaded(int)                  {}
func (nopMetrics) SetActiveSessions(int)                {}

func metricsOrNop(m drepo.Metrics) drepo.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
