package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listSourcesHandler handles GET /api/sources.
func (s *Server) listSourcesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, sourceListResponse{Sources: s.sources.List()})
}

// addSourceHandler handles POST /api/sources. New sources default to
// untrusted; pass trusted=true to let fetches use them immediately.
func (s *Server) addSourceHandler(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	trusted := req.Trusted != nil && *req.Trusted
	info, err := s.sources.Add(req.URL, trusted)
	if err != nil {
		// Everything Add can return is bad input: malformed URL, unsupported
		// scheme, host outside the allow-list. Duplicate adds succeed.
		s.badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusCreated, info)
}

// removeSourceHandler handles DELETE /api/sources.
func (s *Server) removeSourceHandler(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err.Error())
		return
	}

	if err := s.sources.Remove(req.URL); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
