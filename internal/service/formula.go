package service

import (
	"math"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

// Weights of the continuous/periodic blend and the continuous/exam blend.
// Shared by the lifecycle engine and the retake workflow so recomputation
// during rollback and promotion is reproducible.
const (
	continuousWeight = 0.3
	periodicWeight   = 0.7
	examWeight       = 0.7
)

// PassThreshold is the minimum average considered passing. A continuous
// average below it blocks the exam entirely.
const PassThreshold = 5.0

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ContinuousAverage blends the means of the continuous and periodic score
// groups: 0.3*mean(continuous) + 0.7*mean(periodic), rounded to one decimal.
// Nil when either group is empty.
func ContinuousAverage(continuous, periodic models.ScoreSet) *float64 {
	continuousMean := continuous.Mean()
	periodicMean := periodic.Mean()
	if continuousMean == nil || periodicMean == nil {
		return nil
	}
	avg := round1(continuousWeight**continuousMean + periodicWeight**periodicMean)
	return &avg
}

// CourseFinalAverage blends the continuous average with the exam score:
// 0.3*continuousAvg + 0.7*examScore, one decimal. Nil when either is nil.
func CourseFinalAverage(continuousAvg, examScore *float64) *float64 {
	if continuousAvg == nil || examScore == nil {
		return nil
	}
	avg := round1(continuousWeight**continuousAvg + examWeight**examScore)
	return &avg
}

// Classify buckets a course-final average.
func Classify(courseFinalAvg *float64) models.Classification {
	if courseFinalAvg == nil {
		return models.ClassificationUnclassified
	}
	switch avg := *courseFinalAvg; {
	case avg >= 9:
		return models.ClassificationExcellent
	case avg >= 8:
		return models.ClassificationGood
	case avg >= 7:
		return models.ClassificationFairlyGood
	case avg >= PassThreshold:
		return models.ClassificationAverage
	default:
		return models.ClassificationPoor
	}
}
