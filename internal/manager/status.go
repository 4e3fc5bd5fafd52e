package manager

import (
	"context"

	"whisprd/pkg/types"
)

// ServerStatus reports the supervised completion server.
func (m *Manager) ServerStatus() types.ServerStatus { return m.sup.Status() }

// GpuStatus reports the resolved acceleration capability.
func (m *Manager) GpuStatus(ctx context.Context) types.GpuStatus { return m.det.Status(ctx) }

// ConverterStatus reports the audio converter diagnostic.
func (m *Manager) ConverterStatus(ctx context.Context) types.ConverterStatus {
	return m.conv.Status(ctx)
}
