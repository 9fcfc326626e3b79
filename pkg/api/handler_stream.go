package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/oasis/pkg/events"
)

// streamTopicHandler handles GET /api/v1/topics/:id/stream as server-sent
// events. The stream ends with a "done" event once the topic is terminal, or
// when the client disconnects.
func (s *Server) streamTopicHandler(c *gin.Context) {
	f, err := s.registry.Forum(c.Param("id"), owner(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	stream := events.Stream(c.Request.Context(), f, events.DefaultInterval)
	c.Stream(func(w io.Writer) bool {
		msg, ok := <-stream
		if !ok {
			return false
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
		return msg.Event != "done"
	})
}
