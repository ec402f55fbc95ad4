package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// DefaultMaxFileSize bounds which files are hashed; larger files are skipped
// and counted, never opened.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

const (
	quickScanDepth  = 2
	deepScanDepth   = 5
	customScanDepth = 10
)

// quickScanExtensions are the types most commonly abused for initial
// infection.
var quickScanExtensions = []string{
	".exe", ".dll", ".bat", ".cmd", ".ps1", ".vbs", ".js", ".jar", ".scr", ".pif",
}

// deepScanExtensions extend the quick list with drivers, office macro
// carriers and other executable content.
var deepScanExtensions = []string{
	// executables
	".exe", ".dll", ".sys", ".drv", ".ocx", ".cpl",
	// scripts
	".bat", ".cmd", ".ps1", ".vbs", ".js", ".jse", ".wsf", ".wsh", ".hta",
	// java
	".jar", ".class",
	// office macros
	".doc", ".docm", ".xls", ".xlsm", ".ppt", ".pptm",
	// other
	".scr", ".pif", ".msi", ".com",
}

// Policy is the immutable configuration of one scan session. The quick,
// deep and custom profiles are just named values of this type; nothing below
// the session knows which profile is running.
type Policy struct {
	Profile        string
	RootPaths      []string
	MaxDepth       int
	Extensions     map[string]struct{} // nil matches every extension
	MaxFileSize    int64
	FollowSymlinks bool
	WithMD5        bool
	ExpandArchives bool
}

// AllowsExtension reports whether the policy's extension filter admits ext.
func (p Policy) AllowsExtension(ext string) bool {
	if p.Extensions == nil {
		return true
	}
	_, ok := p.Extensions[strings.ToLower(ext)]
	return ok
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return set
}

// QuickPolicy scans high-traffic user areas at shallow depth.
func QuickPolicy() Policy {
	roots := []string{os.TempDir()}
	if home, err := homedir.Dir(); err == nil {
		roots = append(roots,
			filepath.Join(home, "Downloads"),
			filepath.Join(home, "Desktop"),
		)
	}
	return Policy{
		Profile:     "quick",
		RootPaths:   roots,
		MaxDepth:    quickScanDepth,
		Extensions:  extensionSet(quickScanExtensions),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// DeepPolicy scans broader system and user areas, consults the signature
// store with an MD5 key and expands archives.
func DeepPolicy() Policy {
	roots := []string{os.TempDir(), "/usr/local", "/opt", "/var/tmp"}
	if home, err := homedir.Dir(); err == nil {
		roots = append(roots, home)
	}
	return Policy{
		Profile:        "deep",
		RootPaths:      roots,
		MaxDepth:       deepScanDepth,
		Extensions:     extensionSet(deepScanExtensions),
		MaxFileSize:    DefaultMaxFileSize,
		WithMD5:        true,
		ExpandArchives: true,
	}
}

// CustomPolicy scans a single caller-supplied root.
func CustomPolicy(root string) Policy {
	return Policy{
		Profile:     "custom",
		RootPaths:   []string{root},
		MaxDepth:    customScanDepth,
		Extensions:  extensionSet(deepScanExtensions),
		MaxFileSize: DefaultMaxFileSize,
		WithMD5:     true,
	}
}
