package callback

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxCallbackBytes bounds the callback body we read.
const maxCallbackBytes = 4 << 20

// Handlers exposes one POST endpoint per callback name.
type Handlers struct {
	receiver *Receiver
}

func NewHandlers(receiver *Receiver) *Handlers {
	return &Handlers{receiver: receiver}
}

func (h *Handlers) Register(r gin.IRoutes) {
	for _, name := range Names {
		r.POST("/"+name, h.handle(name))
	}
}

func (h *Handlers) handle(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBytes))
		if err != nil {
			body = nil
		}
		c.JSON(http.StatusOK, h.receiver.Receive(name, body))
	}
}
