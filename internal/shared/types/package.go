package types

import "time"

// PackageMetadata describes a single package file (.apk) before install.
// A record is valid only when PackageName is non-empty and VersionCode is
// non-negative; invalid records are never cached or returned to callers.
type PackageMetadata struct {
	PackageName string    `json:"package_name"`
	VersionCode int64     `json:"version_code"`
	VersionName string    `json:"version_name"`
	MinSDK      int       `json:"min_sdk"`
	TargetSDK   int       `json:"target_sdk"`
	Label       string    `json:"label"`
	Permissions []string  `json:"permissions,omitempty"`
	FileSize    int64     `json:"file_size"`
	ModifiedAt  time.Time `json:"modified_at"`
	SHA256      string    `json:"sha256,omitempty"`
}

// Valid reports whether the record satisfies the metadata invariant.
func (m *PackageMetadata) Valid() bool {
	return m != nil && m.PackageName != "" && m.VersionCode >= 0
}

// BundleMetadata describes a multi-file package bundle (.xapk): package
// metadata plus the ordered inner package file names and any expansion
// data files.
type BundleMetadata struct {
	PackageMetadata
	SplitFiles []string `json:"split_files"`
	Expansions []string `json:"expansions,omitempty"`
}

// ToPackage converts losslessly into a PackageMetadata for downstream
// use; bundle-specific fields are dropped.
func (b *BundleMetadata) ToPackage() PackageMetadata {
	return b.PackageMetadata
}

// InstalledPackage is one entry of the subsystem-side package inventory.
type InstalledPackage struct {
	PackageName    string    `json:"package_name"`
	Label          string    `json:"label"`
	VersionCode    int64     `json:"version_code"`
	VersionName    string    `json:"version_name,omitempty"`
	System         bool      `json:"system"`
	Enabled        bool      `json:"enabled"`
	InstalledAt    time.Time `json:"installed_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Running        bool      `json:"running"`
	LastLaunchedAt time.Time `json:"last_launched_at,omitempty"`
}

// InstallOutcome is the terminal result of one install attempt.
type InstallOutcome struct {
	Success       bool      `json:"success"`
	PackageName   string    `json:"package_name,omitempty"`
	InstalledSize int64     `json:"installed_size,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	ExitCode      int       `json:"exit_code"`
	FinishedAt    time.Time `json:"finished_at"`
}

// InstallStage is a fixed milestone reported during an install.
type InstallStage string

const (
	StageValidating InstallStage = "validating"
	StageExtracting InstallStage = "extracting_metadata"
	StageChecking   InstallStage = "checking_compatibility"
	StageInstalling InstallStage = "installing"
	StageCompleted  InstallStage = "completed"
	StageFailed     InstallStage = "failed"
	StageCancelled  InstallStage = "cancelled"
)

// Percent returns the fixed progress percentage for a stage.
func (s InstallStage) Percent() int {
	switch s {
	case StageValidating:
		return 10
	case StageExtracting:
		return 25
	case StageChecking:
		return 40
	case StageInstalling:
		return 60
	case StageCompleted:
		return 100
	default: // failed, cancelled
		return 100
	}
}
