package detector

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

func TestAggregate(t *testing.T) {
	ev := &datamodel.Evidence{Path: "/scan/file.exe", SHA256: "abc123"}
	tests := []struct {
		name               string
		findings           []datamodel.Finding
		wantScore          int
		wantClassification datamodel.Classification
	}{
		{
			name:               "no findings is clean",
			findings:           nil,
			wantScore:          0,
			wantClassification: datamodel.Clean,
		},
		{
			name: "low score is suspicious",
			findings: []datamodel.Finding{
				{Method: datamodel.MethodHeuristic, Severity: 2, Rationale: "hidden file"},
			},
			wantScore:          20,
			wantClassification: datamodel.Suspicious,
		},
		{
			name: "mid score is suspicious",
			findings: []datamodel.Finding{
				{Method: datamodel.MethodHeuristic, Severity: 3, Rationale: "a"},
				{Method: datamodel.MethodHeuristic, Severity: 2, Rationale: "b"},
			},
			wantScore:          50,
			wantClassification: datamodel.Suspicious,
		},
		{
			name: "high score is malicious",
			findings: []datamodel.Finding{
				{Method: datamodel.MethodHeuristic, Severity: 4, Rationale: "a"},
				{Method: datamodel.MethodHeuristic, Severity: 3, Rationale: "b"},
			},
			wantScore:          70,
			wantClassification: datamodel.Malicious,
		},
		{
			name: "score saturates at 100",
			findings: []datamodel.Finding{
				{Method: datamodel.MethodBehavioral, Severity: 9, Rationale: "a"},
				{Method: datamodel.MethodBehavioral, Severity: 8, Rationale: "b"},
			},
			wantScore:          100,
			wantClassification: datamodel.Malicious,
		},
		{
			name: "signature match forces malicious",
			findings: []datamodel.Finding{
				{Method: datamodel.MethodSignature, Severity: 10, Rationale: "matched known malware signature: Trojan.Generic"},
			},
			wantScore:          100,
			wantClassification: datamodel.Malicious,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Aggregate(ev, tt.findings)
			if v.RiskScore != tt.wantScore {
				t.Errorf("Aggregate() risk = %d, want %d", v.RiskScore, tt.wantScore)
			}
			if v.Classification != tt.wantClassification {
				t.Errorf("Aggregate() classification = %s, want %s", v.Classification, tt.wantClassification)
			}
			if v.Path != ev.Path || v.SHA256 != ev.SHA256 {
				t.Errorf("Aggregate() verdict identity = %s/%s", v.Path, v.SHA256)
			}
		})
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	ev := &datamodel.Evidence{Path: "/scan/file.exe", SHA256: "abc123"}
	findings := []datamodel.Finding{
		{Method: datamodel.MethodSignature, Severity: 10, Rationale: "sig"},
		{Method: datamodel.MethodHeuristic, Severity: 3, Rationale: "pattern a"},
		{Method: datamodel.MethodHeuristic, Severity: 3, Rationale: "pattern b"},
		{Method: datamodel.MethodAIModel, Severity: 5, Rationale: "model"},
		{Method: datamodel.MethodBehavioral, Severity: 8, Rationale: "behavior"},
	}
	want := Aggregate(ev, findings)

	r := rand.New(rand.NewSource(42))
	for range 20 {
		shuffled := make([]datamodel.Finding, len(findings))
		copy(shuffled, findings)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := Aggregate(ev, shuffled)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Aggregate() differs after permutation:\n%s", diff)
		}
	}
}

func TestAggregateMonotonic(t *testing.T) {
	ev := &datamodel.Evidence{Path: "/scan/file.exe"}
	var findings []datamodel.Finding
	prev := 0
	for i := range 15 {
		findings = append(findings, datamodel.Finding{
			Method:   datamodel.MethodHeuristic,
			Severity: 1 + i%4,
		})
		v := Aggregate(ev, findings)
		if v.RiskScore < prev {
			t.Fatalf("Aggregate() score decreased from %d to %d after adding a finding", prev, v.RiskScore)
		}
		if v.RiskScore < 0 || v.RiskScore > 100 {
			t.Fatalf("Aggregate() score out of range: %d", v.RiskScore)
		}
		prev = v.RiskScore
	}
}
