package datamodel

import (
	"io/fs"
	"strings"
	"time"
)

// DetectionMethod identifies which detection variant produced a finding.
type DetectionMethod string

const (
	MethodSignature  DetectionMethod = "signature"
	MethodHeuristic  DetectionMethod = "heuristic"
	MethodBehavioral DetectionMethod = "behavioral"
	MethodAIModel    DetectionMethod = "ai_model"
	MethodSandbox    DetectionMethod = "sandbox"
)

// ThreatCategory is the threat family asserted by a finding.
type ThreatCategory string

const (
	CategoryRansomware   ThreatCategory = "ransomware"
	CategoryTrojan       ThreatCategory = "trojan"
	CategorySpyware      ThreatCategory = "spyware"
	CategoryRootkit      ThreatCategory = "rootkit"
	CategoryCryptominer  ThreatCategory = "cryptominer"
	CategoryBackdoor     ThreatCategory = "backdoor"
	CategoryWorm         ThreatCategory = "worm"
	CategoryAdware       ThreatCategory = "adware"
	CategoryUnclassified ThreatCategory = "unclassified"
)

// CategoryFromThreatName maps a signature threat name such as
// "Trojan.Generic" or "Ransomware.Crypto" to its category.
func CategoryFromThreatName(name string) ThreatCategory {
	family, _, _ := strings.Cut(name, ".")
	switch strings.ToLower(family) {
	case "ransomware":
		return CategoryRansomware
	case "trojan":
		return CategoryTrojan
	case "spyware":
		return CategorySpyware
	case "rootkit":
		return CategoryRootkit
	case "cryptominer", "miner":
		return CategoryCryptominer
	case "backdoor":
		return CategoryBackdoor
	case "worm":
		return CategoryWorm
	case "adware":
		return CategoryAdware
	default:
		return CategoryUnclassified
	}
}

// Classification is the aggregated risk tier for one file.
type Classification string

const (
	Clean      Classification = "clean"
	Suspicious Classification = "suspicious"
	Malicious  Classification = "malicious"
)

// Evidence holds the detector-agnostic facts extracted from one file.
// It is built once per file, never mutated, and discarded after aggregation.
type Evidence struct {
	Path          string
	Size          int64
	Extension     string
	Mode          fs.FileMode
	SHA256        string
	MD5           string
	Entropy       float64
	ContentSample []byte
	ExtractedAt   time.Time
}

// Finding is one detector's assertion about a file.
type Finding struct {
	Method    DetectionMethod `json:"method"`
	Category  ThreatCategory  `json:"category"`
	Severity  int             `json:"severity"`
	Rationale string          `json:"rationale"`
}

// Verdict is the aggregated result for one evaluated file.
type Verdict struct {
	Path           string         `json:"path"`
	SHA256         string         `json:"sha256,omitempty"`
	RiskScore      int            `json:"risk-score"`
	Classification Classification `json:"classification"`
	Findings       []Finding      `json:"findings,omitempty"`
}

// SkipReason explains why the traversal engine did not evaluate a path.
type SkipReason string

const (
	SkipSymlink         SkipReason = "symlink"
	SkipDepthLimit      SkipReason = "depth-limit"
	SkipExtensionFilter SkipReason = "extension-filter"
	SkipSizeLimit       SkipReason = "size-limit"
	SkipIOError         SkipReason = "io-error"
	SkipTimeout         SkipReason = "timeout"
)

// SessionStatus is the terminal state of a scan session.
type SessionStatus string

const (
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Statistics accumulates per-session counters. Counters only grow while a
// session runs and are frozen once FinishedAt is set.
type Statistics struct {
	FilesScanned    int64                `json:"files-scanned"`
	SuspiciousCount int64                `json:"suspicious"`
	MaliciousCount  int64                `json:"malicious"`
	ErrorCount      int64                `json:"errors"`
	SkippedCount    int64                `json:"skipped"`
	Skips           map[SkipReason]int64 `json:"skips,omitempty"`
	StartedAt       time.Time            `json:"started-at"`
	FinishedAt      time.Time            `json:"finished-at"`
	Status          SessionStatus        `json:"status"`
}

// Result is the full output of one scan session.
type Result struct {
	ScanID     string     `json:"scan-id"`
	Profile    string     `json:"profile"`
	Verdicts   []Verdict  `json:"verdicts"`
	Statistics Statistics `json:"statistics"`
}

// Threats returns the verdicts classified suspicious or malicious.
func (r *Result) Threats() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Classification != Clean {
			out = append(out, v)
		}
	}
	return out
}
