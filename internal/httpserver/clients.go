package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handlers) getClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	client, err := h.deps.Clients.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}
