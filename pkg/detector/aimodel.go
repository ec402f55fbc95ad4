package detector

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

// AIModel scores evidence features into a [0,1] confidence. It stands in for
// a trained model behind the same Detector contract, so a real inference
// backend can replace it without touching the aggregator.
type AIModel struct {
	// Threshold is the confidence above which a file is considered
	// malicious rather than merely suspicious.
	Threshold float64
}

var _ Detector = &AIModel{}

const (
	defaultMaliciousThreshold = 0.75
	suspiciousThreshold       = 0.4

	highEntropyBound = 7.0
)

// suspiciousNameTokens flag filenames that advertise cracked or malicious
// content.
var suspiciousNameTokens = []string{"trojan", "hack", "crack", "keygen", "patch", "warez", "virus"}

func NewAIModel() *AIModel {
	return &AIModel{Threshold: defaultMaliciousThreshold}
}

func (d *AIModel) Method() datamodel.DetectionMethod { return datamodel.MethodAIModel }

func (d *AIModel) Evaluate(_ context.Context, ev *datamodel.Evidence) ([]datamodel.Finding, error) {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = defaultMaliciousThreshold
	}

	score := 0.0
	var reasons []string

	if ev.Entropy > highEntropyBound {
		score += 0.3
		reasons = append(reasons, "high entropy (possible packing)")
	}
	if ev.Size < smallExecutableSize && isExecutableExtension(ev.Extension) {
		score += 0.4
		reasons = append(reasons, "unusually small executable")
	}
	name := strings.ToLower(baseName(ev.Path))
	for _, token := range suspiciousNameTokens {
		if strings.Contains(name, token) {
			score += 0.5
			reasons = append(reasons, fmt.Sprintf("suspicious filename pattern: %s", token))
			break
		}
	}
	score = min(score, 1.0)

	var severity int
	switch {
	case score >= threshold:
		severity = 10
	case score >= suspiciousThreshold:
		severity = 5
	default:
		return nil, nil
	}
	return []datamodel.Finding{{
		Method:    datamodel.MethodAIModel,
		Category:  datamodel.CategoryUnclassified,
		Severity:  severity,
		Rationale: fmt.Sprintf("model confidence %.2f: %s", score, strings.Join(reasons, ", ")),
	}}, nil
}
