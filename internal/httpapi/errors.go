package httpapi

import (
	"encoding/json"
	"net/http"

	"whisprd/internal/manager"
	"whisprd/pkg/types"
)

// statusForKind maps the manager's closed error-kind set onto HTTP statuses.
func statusForKind(kind string) int {
	switch kind {
	case manager.KindModelNotFound:
		return http.StatusNotFound
	case manager.KindDownloadInProgress, manager.KindDownloadCancelled, manager.KindModelNotDownloaded:
		return http.StatusConflict
	case manager.KindDownloadFailed, manager.KindDownloadRedirect, manager.KindDownloadCorrupted, manager.KindInferenceFailed:
		return http.StatusBadGateway
	case manager.KindBinaryNotFound, manager.KindServerStartFailed, manager.KindServerNotRunning:
		return http.StatusServiceUnavailable
	case manager.KindInferenceTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a manager error onto the consistent JSON error payload.
func writeError(w http.ResponseWriter, err error) {
	kind := manager.Kind(err)
	writeJSONError(w, statusForKind(kind), kind, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Kind: kind, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
