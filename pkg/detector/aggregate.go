package detector

import (
	"sort"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

const (
	maxRiskScore       = 100
	severityMultiplier = 10

	maliciousScoreBound = 70
)

// Aggregate folds a file's findings into one verdict. The same multiset of
// findings always yields the same verdict: findings are sorted canonically
// before scoring, so detector execution order never matters.
func Aggregate(ev *datamodel.Evidence, findings []datamodel.Finding) datamodel.Verdict {
	sorted := make([]datamodel.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Method != sorted[j].Method {
			return sorted[i].Method < sorted[j].Method
		}
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		return sorted[i].Rationale < sorted[j].Rationale
	})

	total := 0
	signatureHit := false
	for _, f := range sorted {
		total += f.Severity
		if f.Method == datamodel.MethodSignature && f.Severity == signatureSeverity {
			signatureHit = true
		}
	}
	risk := min(maxRiskScore, total*severityMultiplier)

	var classification datamodel.Classification
	switch {
	case signatureHit:
		// known-bad overrides heuristic uncertainty
		classification = datamodel.Malicious
	case risk == 0:
		classification = datamodel.Clean
	case risk >= maliciousScoreBound:
		classification = datamodel.Malicious
	default:
		classification = datamodel.Suspicious
	}

	return datamodel.Verdict{
		Path:           ev.Path,
		SHA256:         ev.SHA256,
		RiskScore:      risk,
		Classification: classification,
		Findings:       sorted,
	}
}
