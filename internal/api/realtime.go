package api

import "net/http"

// handleRestartStreams re-establishes every change stream. Streams that
// failed stay down until this is called.
func (s *Server) handleRestartStreams(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		writeUnavailable(w, "change streams not configured")
		return
	}

	if err := s.streams.Restart(r.Context()); err != nil {
		s.logger.Error("change stream restart failed", "error", err)
		writeUnavailable(w, "change streams could not be restarted")
		return
	}
	running := s.streams.Running()
	if running == nil {
		running = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "restarted",
		"streams": running,
	})
}

// handleWebSocket hands the request to the hub. Clients are not
// authenticated and may join any topic.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeUnavailable(w, "realtime hub not available")
		return
	}
	s.hub.ServeHTTP(w, r)
}
