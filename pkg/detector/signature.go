package detector

import (
	"context"
	"fmt"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
	"github.com/sentinelx/host-scanner/pkg/signature"
)

// signatureSeverity is fixed: an exact digest match is a certain detection.
const signatureSeverity = 10

// Signature matches file digests against a known-malware store. It produces
// at most one finding per file.
type Signature struct {
	store signature.Store
}

var _ Detector = &Signature{}

func NewSignature(store signature.Store) *Signature {
	return &Signature{store: store}
}

func (d *Signature) Method() datamodel.DetectionMethod { return datamodel.MethodSignature }

func (d *Signature) Evaluate(_ context.Context, ev *datamodel.Evidence) ([]datamodel.Finding, error) {
	if d.store == nil {
		return nil, nil
	}
	threat, ok := "", false
	if ev.MD5 != "" {
		threat, ok = d.store.Lookup(ev.MD5)
	}
	if !ok {
		threat, ok = d.store.Lookup(ev.SHA256)
	}
	if !ok {
		return nil, nil
	}
	return []datamodel.Finding{{
		Method:    datamodel.MethodSignature,
		Category:  datamodel.CategoryFromThreatName(threat),
		Severity:  signatureSeverity,
		Rationale: fmt.Sprintf("matched known malware signature: %s", threat),
	}}, nil
}
