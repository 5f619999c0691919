package detection

import "github.com/BradenHooton/loginguard/internal/models"

const (
	// DefaultThreshold is the combined score above which an attempt is an attack
	DefaultThreshold = 0.6

	classifierWeight = 0.7
	behavioralWeight = 0.3

	detectedCutoff  = 0.7
	suspectedCutoff = 0.5
)

// Combiner fuses the classifier and behavioral signals into a verdict
type Combiner struct {
	threshold float64
}

// NewCombiner creates a Combiner; a threshold outside (0,1) falls back to DefaultThreshold
func NewCombiner(threshold float64) *Combiner {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	return &Combiner{threshold: threshold}
}

// Threshold returns the configured decision threshold
func (c *Combiner) Threshold() float64 {
	return c.threshold
}

// Combine produces the DetectionResult. When the classifier is not usable its
// probability is reported but ignored for the verdict.
func (c *Combiner) Combine(cls models.ClassifierResult, beh models.BehavioralResult, classifierUsable bool) models.DetectionResult {
	combined := beh.Score
	if classifierUsable {
		combined = classifierWeight*cls.ProbabilityAttack + behavioralWeight*beh.Score
	}
	combined = clamp01(combined)

	isAttack := combined > c.threshold

	attackType := models.AttackTypeNormal
	switch {
	case !isAttack:
	case classifierUsable && cls.ProbabilityAttack > detectedCutoff:
		attackType = models.AttackTypeClassifierDetected
	case classifierUsable && cls.ProbabilityAttack > suspectedCutoff:
		attackType = models.AttackTypeClassifierSuspected
	default:
		attackType = models.AttackTypeBehavioralAnomaly
	}

	return models.DetectionResult{
		IsAttack:              isAttack,
		Confidence:            combined,
		AttackType:            attackType,
		ClassifierProbability: cls.ProbabilityAttack,
		BehavioralScore:       beh.Score,
		BehavioralFlags:       beh.Flags,
		RecentFailures:        beh.RecentFailures,
		ClassifierUsed:        classifierUsable,
	}
}
