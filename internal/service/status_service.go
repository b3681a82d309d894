package service

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"autovpn-backend/internal/model"
	"autovpn-backend/internal/pkg/logger"
)

const mb = 1024 * 1024

type PeerCounter interface {
	CountActivePeers(ctx context.Context) (int, error)
}

type HostSampler func(ctx context.Context) (*model.HostStats, error)

type StatusService struct {
	peers  PeerCounter
	wg     *WireGuardService
	sample HostSampler
	logger *logger.Logger
}

func NewStatusService(peers PeerCounter, wg *WireGuardService, sample HostSampler, logger *logger.Logger) *StatusService {
	if sample == nil {
		sample = SampleHost
	}
	return &StatusService{peers: peers, wg: wg, sample: sample, logger: logger}
}

// Status never fails on WireGuard or host errors; those sections are left
// out instead.
func (s *StatusService) Status(ctx context.Context) (*model.StatusResponse, error) {
	count, err := s.peers.CountActivePeers(ctx)
	if err != nil {
		return nil, err
	}
	resp := &model.StatusResponse{Status: "ok", PeerCount: count}

	if s.wg != nil {
		if st, err := s.wg.Status(ctx); err == nil {
			resp.WireGuard = st
		} else {
			s.logger.Warnf("status: wireguard unavailable: %v", err)
		}
	}
	if stats, err := s.sample(ctx); err == nil {
		resp.Host = stats
	} else {
		s.logger.Warnf("status: host stats unavailable: %v", err)
	}
	return resp, nil
}

func SampleHost(ctx context.Context) (*model.HostStats, error) {
	stats := &model.HostStats{}

	percent, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return nil, err
	}
	if len(percent) > 0 {
		stats.CPUPercent = percent[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats.MemUsedMB = vm.Used / mb
	stats.MemTotalMB = vm.Total / mb

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, err
	}
	stats.DiskUsedMB = du.Used / mb
	stats.DiskTotalMB = du.Total / mb
	return stats, nil
}
