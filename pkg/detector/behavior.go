package detector

import (
	"context"
	"fmt"

	"github.com/sentinelx/host-scanner/pkg/datamodel"
)

// BehaviorPattern names a catalog entry matched against runtime indicators.
type BehaviorPattern struct {
	Name        string
	Category    datamodel.ThreatCategory
	Indicators  []string
	Severity    int
	Description string
}

// DefaultCatalog lists the known malicious behavior patterns.
func DefaultCatalog() []BehaviorPattern {
	return []BehaviorPattern{
		{
			Name:        "Ransomware_File_Encryption",
			Category:    datamodel.CategoryRansomware,
			Indicators:  []string{"rapid_file_encryption", "file_extension_change", "ransom_note_creation"},
			Severity:    9,
			Description: "File encryption behavior typical of ransomware",
		},
		{
			Name:        "Trojan_Persistence",
			Category:    datamodel.CategoryTrojan,
			Indicators:  []string{"registry_run_key_modification", "startup_folder_addition", "scheduled_task_creation"},
			Severity:    7,
			Description: "Persistence mechanisms used by Trojans",
		},
		{
			Name:        "Spyware_Data_Collection",
			Category:    datamodel.CategorySpyware,
			Indicators:  []string{"screenshot_capture", "keylogging", "browser_history_access"},
			Severity:    8,
			Description: "Data collection activities typical of spyware",
		},
		{
			Name:        "Cryptominer_High_CPU",
			Category:    datamodel.CategoryCryptominer,
			Indicators:  []string{"sustained_high_cpu_usage", "connection_to_mining_pools", "mining_software_detection"},
			Severity:    9,
			Description: "High CPU usage and network activity associated with cryptominers",
		},
		{
			Name:        "Rootkit_System_Hooking",
			Category:    datamodel.CategoryRootkit,
			Indicators:  []string{"system_call_hooking", "driver_manipulation", "hidden_process"},
			Severity:    8,
			Description: "System-level manipulation indicating rootkit presence",
		},
		{
			Name:        "Backdoor_Remote_Access",
			Category:    datamodel.CategoryBackdoor,
			Indicators:  []string{"remote_connection", "unusual_port_listening", "hidden_communication"},
			Severity:    9,
			Description: "Remote access and control behavior typical of backdoors",
		},
		{
			Name:        "Worm_Self_Replication",
			Category:    datamodel.CategoryWorm,
			Indicators:  []string{"self_copying", "network_propagation", "system_resource_consumption"},
			Severity:    8,
			Description: "Self-replicating and spreading behavior of worms",
		},
		{
			Name:        "Adware_Unwanted_Ads",
			Category:    datamodel.CategoryAdware,
			Indicators:  []string{"browser_redirection", "unwanted_popups", "browser_setting_modification"},
			Severity:    6,
			Description: "Displaying unwanted advertisements and modifying browser settings",
		},
	}
}

// IndicatorSource supplies runtime observation tags for a file. Collecting
// them is a live-monitoring concern outside this engine; a nil source means
// no indicators and therefore no findings.
type IndicatorSource interface {
	Indicators(ctx context.Context, path string) ([]string, error)
}

// Behavioral matches runtime indicators against the behavior catalog.
type Behavioral struct {
	catalog []BehaviorPattern
	source  IndicatorSource
}

var _ Detector = &Behavioral{}

func NewBehavioral(source IndicatorSource) *Behavioral {
	return &Behavioral{catalog: DefaultCatalog(), source: source}
}

func (d *Behavioral) Method() datamodel.DetectionMethod { return datamodel.MethodBehavioral }

func (d *Behavioral) Evaluate(ctx context.Context, ev *datamodel.Evidence) ([]datamodel.Finding, error) {
	if d.source == nil {
		return nil, nil
	}
	indicators, err := d.source.Indicators(ctx, ev.Path)
	if err != nil {
		return nil, err
	}
	if len(indicators) == 0 {
		return nil, nil
	}
	observed := make(map[string]struct{}, len(indicators))
	for _, tag := range indicators {
		observed[tag] = struct{}{}
	}
	var findings []datamodel.Finding
	for _, pattern := range d.catalog {
		for _, indicator := range pattern.Indicators {
			if _, ok := observed[indicator]; ok {
				findings = append(findings, datamodel.Finding{
					Method:    datamodel.MethodBehavioral,
					Category:  pattern.Category,
					Severity:  pattern.Severity,
					Rationale: fmt.Sprintf("%s: %s", pattern.Name, pattern.Description),
				})
				break
			}
		}
	}
	return findings, nil
}
