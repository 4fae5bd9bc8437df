package database

import "time"

// NewRecognitionStat seeds a row from its first sample.
func NewRecognitionStat(date, cameraID string, sample StatSample) RecognitionStat {
	s := RecognitionStat{
		Date:                date,
		CameraID:            cameraID,
		TotalRecognitions:   1,
		AvgConfidence:       sample.Confidence,
		AvgProcessingTimeMs: sample.ProcessingTimeMs,
		UpdatedAt:           time.Now(),
	}
	if sample.Success {
		s.SuccessfulMatches = 1
	} else {
		s.FailedMatches = 1
	}
	return s
}

// Apply folds one sample into the row using an incremental mean:
// new = (old*oldTotal + sample) / newTotal.
func (s *RecognitionStat) Apply(sample StatSample) {
	old := float64(s.TotalRecognitions)
	s.TotalRecognitions++
	total := float64(s.TotalRecognitions)

	if sample.Success {
		s.SuccessfulMatches++
	} else {
		s.FailedMatches++
	}
	s.AvgConfidence = (s.AvgConfidence*old + sample.Confidence) / total
	s.AvgProcessingTimeMs = (s.AvgProcessingTimeMs*old + sample.ProcessingTimeMs) / total
	s.UpdatedAt = time.Now()
}
