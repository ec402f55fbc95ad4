// Package detector holds the detection methods run against extracted
// evidence, and the aggregator that folds their findings into one verdict
// per file.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

// Detector is one independently pluggable detection method. Evaluate must
// treat "no detection" as an empty result, not an error.
type Detector interface {
	Method() datamodel.DetectionMethod
	Evaluate(ctx context.Context, ev *datamodel.Evidence) ([]datamodel.Finding, error)
}

// EvaluateAll runs every detector against the evidence. A detector's error
// or panic degrades to "no finding" for that detector only; the others still
// contribute.
func EvaluateAll(ctx context.Context, detectors []Detector, ev *datamodel.Evidence) []datamodel.Finding {
	var findings []datamodel.Finding
	for _, d := range detectors {
		fs, err := safeEvaluate(ctx, d, ev)
		if err != nil {
			logger.Warn("detector failed, skipping its findings",
				slog.String("detector", string(d.Method())),
				slog.String("file", ev.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		findings = append(findings, fs...)
	}
	return findings
}

func safeEvaluate(ctx context.Context, d Detector, ev *datamodel.Evidence) (findings []datamodel.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Evaluate(ctx, ev)
}

// executableExtensions are extensions where an anomalously small file is a
// packing or dropper hint.
var executableExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".sys": {}, ".drv": {},
	".ocx": {}, ".cpl": {}, ".scr": {}, ".com": {},
}

func isExecutableExtension(ext string) bool {
	_, ok := executableExtensions[ext]
	return ok
}
