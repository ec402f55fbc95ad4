package detector

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

// Rule is one weighted content pattern. Every matching rule contributes its
// own finding; capping happens in the aggregator, not here.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity int
	Category datamodel.ThreatCategory
}

func mustRule(name, expr string, severity int, category datamodel.ThreatCategory) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(`(?i)` + expr), Severity: severity, Category: category}
}

// DefaultRules covers the API-call, persistence and obfuscation patterns
// commonly dropped in scripts and droppers.
func DefaultRules() []Rule {
	return []Rule{
		// system modification
		mustRule("registry-set-value", `registry\.SetValue`, 3, datamodel.CategoryTrojan),
		mustRule("process-start", `Process\.Start`, 2, datamodel.CategoryUnclassified),
		mustRule("file-delete", `File\.Delete`, 2, datamodel.CategoryUnclassified),
		// network activity
		mustRule("socket-connect", `Socket\.Connect`, 2, datamodel.CategoryBackdoor),
		mustRule("http-client", `Http(Client|Request)`, 2, datamodel.CategoryBackdoor),
		// encryption
		mustRule("crypto-api", `Crypto(stream|provider)`, 3, datamodel.CategoryRansomware),
		mustRule("cipher-name", `Rijndael|AES|RSA`, 3, datamodel.CategoryRansomware),
		// process injection
		mustRule("write-process-memory", `WriteProcessMemory`, 4, datamodel.CategoryRootkit),
		mustRule("create-remote-thread", `CreateRemoteThread`, 4, datamodel.CategoryRootkit),
		mustRule("nt-create-thread-ex", `NtCreateThreadEx`, 4, datamodel.CategoryRootkit),
		// code obfuscation
		mustRule("virtual-alloc-ex", `VirtualAllocEx`, 3, datamodel.CategoryRootkit),
		mustRule("virtual-protect-ex", `VirtualProtectEx`, 3, datamodel.CategoryRootkit),
		// persistence
		mustRule("run-key", `Run\s*=`, 3, datamodel.CategoryTrojan),
		mustRule("startup-folder", `StartupFolder`, 3, datamodel.CategoryTrojan),
		// file operations
		mustRule("binary-extension-ref", `\.exe|\.dll|\.sys`, 1, datamodel.CategoryUnclassified),
		mustRule("create-write-file", `CreateFile|WriteFile`, 2, datamodel.CategoryUnclassified),
	}
}

const (
	attributeSeverity   = 2
	smallExecutableSize = 1024
)

// Heuristic searches the content sample against weighted pattern rules and
// flags suspicious file attributes.
type Heuristic struct {
	rules []Rule
}

var _ Detector = &Heuristic{}

func NewHeuristic(rules []Rule) *Heuristic {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Heuristic{rules: rules}
}

func (d *Heuristic) Method() datamodel.DetectionMethod { return datamodel.MethodHeuristic }

func (d *Heuristic) Evaluate(_ context.Context, ev *datamodel.Evidence) ([]datamodel.Finding, error) {
	var findings []datamodel.Finding
	// regexp matching on raw bytes ignores undecodable sequences instead
	// of failing on them
	for _, rule := range d.rules {
		if rule.Pattern.Match(ev.ContentSample) {
			findings = append(findings, datamodel.Finding{
				Method:    datamodel.MethodHeuristic,
				Category:  rule.Category,
				Severity:  rule.Severity,
				Rationale: fmt.Sprintf("matched pattern: %s", rule.Name),
			})
		}
	}
	findings = append(findings, d.attributeFindings(ev)...)
	return findings, nil
}

func (d *Heuristic) attributeFindings(ev *datamodel.Evidence) []datamodel.Finding {
	var findings []datamodel.Finding
	base := baseName(ev.Path)
	if strings.HasPrefix(base, ".") {
		findings = append(findings, datamodel.Finding{
			Method:    datamodel.MethodHeuristic,
			Category:  datamodel.CategoryUnclassified,
			Severity:  attributeSeverity,
			Rationale: "hidden file",
		})
	}
	if ev.Mode.Perm()&0o002 != 0 {
		findings = append(findings, datamodel.Finding{
			Method:    datamodel.MethodHeuristic,
			Category:  datamodel.CategoryUnclassified,
			Severity:  attributeSeverity,
			Rationale: "world-writable permissions",
		})
	}
	if ev.Size < smallExecutableSize && isExecutableExtension(ev.Extension) {
		findings = append(findings, datamodel.Finding{
			Method:    datamodel.MethodHeuristic,
			Category:  datamodel.CategoryUnclassified,
			Severity:  attributeSeverity + 1,
			Rationale: "unusually small executable",
		})
	}
	return findings
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
