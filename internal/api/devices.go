package api

import (
	"net/http"
)

// handleListDevices returns the Android devices currently visible to adb.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeInternalError(w, "device listing is not available")
		return
	}

	devices, err := s.devices.Devices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleListPackages returns the packages installed on a device.
//
// Query parameters:
//   - serial: target device; omitted, the single online device is used.
func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeInternalError(w, "device listing is not available")
		return
	}

	serial := r.URL.Query().Get("serial")
	if len(serial) > maxQueryParamLen {
		writeBadRequest(w, "serial exceeds maximum length")
		return
	}

	resolved, err := s.devices.ResolveSerial(r.Context(), serial)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	packages, err := s.devices.ListPackages(r.Context(), resolved)
	if err != nil {
		writeInternalError(w, "failed to list packages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serial":   resolved,
		"packages": packages,
		"count":    len(packages),
	})
}
