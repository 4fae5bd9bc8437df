package database

import (
	"math"
	"testing"
)

func TestRecognitionStat_IncrementalMean(t *testing.T) {
	s := NewRecognitionStat("2026-01-05", "cam1", StatSample{Success: true, Confidence: 0.9, ProcessingTimeMs: 100})
	if s.TotalRecognitions != 1 || s.SuccessfulMatches != 1 || s.FailedMatches != 0 {
		t.Fatalf("unexpected seed counts %+v", s)
	}

	s.Apply(StatSample{Success: false, Confidence: 0, ProcessingTimeMs: 50})

	if s.TotalRecognitions != 2 || s.SuccessfulMatches != 1 || s.FailedMatches != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if math.Abs(s.AvgConfidence-0.45) > 1e-9 {
		t.Errorf("expected avg confidence 0.45, got %f", s.AvgConfidence)
	}
	if math.Abs(s.AvgProcessingTimeMs-75) > 1e-9 {
		t.Errorf("expected avg processing 75, got %f", s.AvgProcessingTimeMs)
	}
}

func TestRecognitionStat_CountsInvariant(t *testing.T) {
	s := NewRecognitionStat("2026-01-05", "cam1", StatSample{Success: false})
	for i := range 20 {
		s.Apply(StatSample{Success: i%3 == 0, Confidence: 0.8})
	}
	if s.SuccessfulMatches+s.FailedMatches != s.TotalRecognitions {
		t.Errorf("successful + failed != total: %+v", s)
	}
}
