package manager

import (
	"context"

	"whisprd/pkg/types"
)

// Infer runs a text completion. A missing artifact is downloaded and
// installed first, then the server is started on demand for the requested
// model.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	md, err := m.Lookup(req.Model)
	if err != nil {
		return types.InferResponse{}, err
	}
	if md.Kind != types.KindText {
		return types.InferResponse{}, wrongKindError{id: md.ID, want: "text"}
	}
	path, err := m.Download(ctx, md.ID, nil)
	if err != nil {
		return types.InferResponse{}, err
	}

	gpuLayers := -1
	if req.GPULayers != nil {
		gpuLayers = *req.GPULayers
	}
	if err := m.sup.Start(ctx, md, path, gpuLayers); err != nil {
		return types.InferResponse{}, err
	}

	text, err := m.sup.Completion(ctx, req.Prompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return types.InferResponse{}, err
	}
	return types.InferResponse{Text: text}, nil
}

// StartServer brings up the completion server for a model without running a
// request, so the first completion does not pay the startup cost. Like Infer
// it installs the artifact on demand.
func (m *Manager) StartServer(ctx context.Context, id string) error {
	md, err := m.Lookup(id)
	if err != nil {
		return err
	}
	if md.Kind != types.KindText {
		return wrongKindError{id: md.ID, want: "text"}
	}
	path, err := m.Download(ctx, id, nil)
	if err != nil {
		return err
	}
	return m.sup.Start(ctx, md, path, -1)
}

// StopServer terminates the completion server if one is running.
func (m *Manager) StopServer() { m.sup.Stop() }
