package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth comes from the bearer header or ?token=, never from cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

// LiveHandler upgrades authenticated requests to the notification feed.
type LiveHandler struct {
	feed LiveFeed
}

// NewLiveHandler constructs LiveHandler.
func NewLiveHandler(feed LiveFeed) *LiveHandler {
	return &LiveHandler{feed: feed}
}

// Serve handles GET /api/ws.
func (h *LiveHandler) Serve(c *gin.Context) {
	actor := CurrentActor(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	h.feed.ServeConn(c.Request.Context(), conn, actor)
}
