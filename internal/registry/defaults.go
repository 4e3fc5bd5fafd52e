package registry

import "whisprd/pkg/types"

const whisperBase = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// builtinModels returns the descriptors shipped with the daemon. The slice is
// rebuilt on every call so callers can never mutate shared state.
func builtinModels() []types.Model {
	return []types.Model{
		{
			ID: "whisper-tiny", Name: "Whisper Tiny", Kind: types.KindSpeech,
			URL: whisperBase + "ggml-tiny.bin", FileName: "ggml-tiny.bin",
			ApproxBytes: 77_700_000,
		},
		{
			ID: "whisper-base", Name: "Whisper Base", Kind: types.KindSpeech,
			URL: whisperBase + "ggml-base.bin", FileName: "ggml-base.bin",
			ApproxBytes: 147_900_000,
		},
		{
			ID: "whisper-small", Name: "Whisper Small", Kind: types.KindSpeech,
			URL: whisperBase + "ggml-small.bin", FileName: "ggml-small.bin",
			ApproxBytes: 487_600_000,
		},
		{
			ID: "whisper-medium", Name: "Whisper Medium", Kind: types.KindSpeech,
			URL: whisperBase + "ggml-medium.bin", FileName: "ggml-medium.bin",
			ApproxBytes: 1_533_000_000,
		},
		{
			ID: "whisper-large-v3-turbo", Name: "Whisper Large v3 Turbo", Kind: types.KindSpeech,
			URL: whisperBase + "ggml-large-v3-turbo.bin", FileName: "ggml-large-v3-turbo.bin",
			ApproxBytes: 1_624_000_000,
		},
		{
			ID: "parakeet-tdt-0.6b", Name: "Parakeet TDT 0.6B", Kind: types.KindSpeech,
			URL:         "https://github.com/k2-fsa/sherpa-onnx/releases/download/asr-models/sherpa-onnx-nemo-parakeet-tdt-0.6b-v2-int8.tar.gz",
			FileName:    "sherpa-onnx-nemo-parakeet-tdt-0.6b-v2-int8.tar.gz",
			ApproxBytes: 650_000_000,
			Archive: &types.ArchiveLayout{
				DirName: "sherpa-onnx-nemo-parakeet-tdt-0.6b-v2-int8",
				Files:   []string{"encoder.int8.onnx", "decoder.int8.onnx", "joiner.int8.onnx", "tokens.txt"},
			},
		},
		{
			ID: "llama-3.2-1b-instruct-q4", Name: "Llama 3.2 1B Instruct (Q4)", Kind: types.KindText,
			URL:         "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf",
			FileName:    "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
			ApproxBytes: 807_700_000,
		},
		{
			ID: "llama-3.2-3b-instruct-q4", Name: "Llama 3.2 3B Instruct (Q4)", Kind: types.KindText,
			URL:         "https://huggingface.co/bartowski/Llama-3.2-3B-Instruct-GGUF/resolve/main/Llama-3.2-3B-Instruct-Q4_K_M.gguf",
			FileName:    "Llama-3.2-3B-Instruct-Q4_K_M.gguf",
			ApproxBytes: 2_019_000_000,
		},
		{
			ID: "qwen2.5-3b-instruct-q4", Name: "Qwen 2.5 3B Instruct (Q4)", Kind: types.KindText,
			URL:         "https://huggingface.co/Qwen/Qwen2.5-3B-Instruct-GGUF/resolve/main/qwen2.5-3b-instruct-q4_k_m.gguf",
			FileName:    "qwen2.5-3b-instruct-q4_k_m.gguf",
			ApproxBytes: 1_929_000_000,
		},
	}
}
