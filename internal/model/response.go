package model

import "time"

type OKResponse struct {
	OK bool `json:"ok"`
}

type CheckSSHResponse struct {
	OK     bool   `json:"ok"`
	Stdout string `json:"stdout"`
}

type RunResponse struct {
	RunID string `json:"run_id"`
}

type RunSummary struct {
	RunID      string `json:"run_id"`
	Target     string `json:"target"`
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
	Error      string `json:"error,omitempty"`
	Size       int64  `json:"size"`
	Mtime      int64  `json:"mtime"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

type WGParamsResponse struct {
	Endpoint        string `json:"endpoint"`
	ServerPublicKey string `json:"server_public_key"`
	DNS             string `json:"dns"`
	AllowedIPs      string `json:"allowed_ips"`
	ClientAddress   string `json:"client_address"`
}

type PeerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

type PeerListResponse struct {
	Peers []PeerResponse `json:"peers"`
}

type ContainerState struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemUsedMB   uint64  `json:"mem_used_mb"`
	MemTotalMB  uint64  `json:"mem_total_mb"`
	DiskUsedMB  uint64  `json:"disk_used_mb"`
	DiskTotalMB uint64  `json:"disk_total_mb"`
}

type StatusResponse struct {
	Status    string          `json:"status"`
	PeerCount int             `json:"peer_count"`
	WireGuard *ContainerState `json:"wireguard,omitempty"`
	Host      *HostStats      `json:"host,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
}

// ErrorResponse keeps the message under "detail", which is where the
// browser clients look for it.
type ErrorResponse struct {
	OK     bool   `json:"ok"`
	Code   int    `json:"code,omitempty"`
	Detail string `json:"detail"`
}
