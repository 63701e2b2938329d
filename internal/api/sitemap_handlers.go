package api

import (
	"bytes"
	"net/http"

	"github.com/listenupapp/coverfinder-server/internal/sitemap"
)

// handleSitemap renders sitemap.xml. Rendered into a buffer first so an encoding
// failure can still produce a clean 500.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	urls := s.services.Sitemap.Build(r.Context())

	var buf bytes.Buffer
	if err := sitemap.WriteXML(&buf, urls); err != nil {
		s.logger.Error("failed to render sitemap", "error", err)
		http.Error(w, "sitemap unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", CacheOneHour)
	_, _ = w.Write(buf.Bytes())
}
