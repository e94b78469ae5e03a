package controller

import (
	"github.com/gofiber/websocket/v2"

	"teymur/broadcast"
)

// HandleDispatchLogWS streams the dispatcher's activity lines to a websocket
// client until it disconnects or falls too far behind.
func HandleDispatchLogWS(hub *broadcast.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		lines, cancel := hub.Subscribe()
		defer cancel()

		for line := range lines {
			if err := c.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}
