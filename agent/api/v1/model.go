package v1

import "github.com/zfskit/exportd/share/nfs"

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Commit        string            `json:"commit"`
	UptimeSeconds int               `json:"uptime_seconds"`
	Features      map[string]string `json:"features,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type ShareRequest struct {
	Mountpoint string `json:"mountpoint"`
	Options    string `json:"options"`
}

type ShareStatusResponse struct {
	Mountpoint string `json:"mountpoint"`
	Shared     bool   `json:"shared"`
}

type ShareListResponse struct {
	Exports []nfs.ExportEntry `json:"exports"`
	Total   int               `json:"total"`
}
