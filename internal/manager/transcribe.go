package manager

import (
	"context"

	"whisprd/pkg/types"
)

// Transcribe runs the one-shot transcriber against an audio file. Like text
// inference, a missing artifact fails fast.
func (m *Manager) Transcribe(ctx context.Context, id, audioPath, lang string) (types.TranscribeResponse, error) {
	md, err := m.Lookup(id)
	if err != nil {
		return types.TranscribeResponse{}, err
	}
	if md.Kind != types.KindSpeech {
		return types.TranscribeResponse{}, wrongKindError{id: md.ID, want: "speech"}
	}
	if !m.isInstalled(md) {
		return types.TranscribeResponse{}, NotDownloadedError{ID: md.ID}
	}
	return m.runner.Transcribe(ctx, md, m.installPath(md), audioPath, lang)
}
