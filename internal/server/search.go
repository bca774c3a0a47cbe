package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/movieclub/internal/tmdb"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleSearch(c *gin.Context) {
	query, ok := searchQuery(c)
	if !ok {
		return
	}
	payload, err := h.search.SearchRaw(c.Request.Context(), query)
	if err != nil {
		respondSearchError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *httpHandler) handleSuggestions(c *gin.Context) {
	query, ok := searchQuery(c)
	if !ok {
		return
	}
	response, err := h.search.Search(c.Request.Context(), query)
	if err != nil {
		respondSearchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": tmdb.Suggestions(response)})
}

func searchQuery(c *gin.Context) (string, bool) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter is required"})
		return "", false
	}
	return query, true
}

func respondSearchError(c *gin.Context, err error) {
	if errors.Is(err, tmdb.ErrMissingAPIKey) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "TMDB API key is not configured"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search movies"})
}
