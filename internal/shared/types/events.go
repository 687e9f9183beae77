package types

import "time"

// Event topics published on the internal bus.
const (
	TopicConnection = "connection"
	TopicInstall    = "install"
	TopicInventory  = "inventory"
)

// ConnectionStatus is raised on any subsystem connection transition.
type ConnectionStatus struct {
	Connected bool      `json:"connected"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// InstallProgress mirrors the progress sink for listeners that did not
// supply one.
type InstallProgress struct {
	Stage       InstallStage `json:"stage"`
	Percent     int          `json:"percent"`
	BytesSent   int64        `json:"bytes_sent,omitempty"`
	BytesTotal  int64        `json:"bytes_total,omitempty"`
	Path        string       `json:"path"`
	PackageName string       `json:"package_name,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ChangeKind classifies one inventory delta.
type ChangeKind string

const (
	ChangeInstalled   ChangeKind = "installed"
	ChangeUninstalled ChangeKind = "uninstalled"
	ChangeUpdated     ChangeKind = "updated"
	ChangeRefreshed   ChangeKind = "cache-refreshed"
)

// InventoryChange is raised once per classified package during a refresh,
// plus a final cache-refreshed event carrying the snapshot size.
type InventoryChange struct {
	Kind        ChangeKind        `json:"kind"`
	PackageName string            `json:"package_name,omitempty"`
	Package     *InstalledPackage `json:"package,omitempty"`
	Total       int               `json:"total"`
	Timestamp   time.Time         `json:"timestamp"`
}
