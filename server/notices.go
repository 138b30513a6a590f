package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// notices streams every notice as one JSON text message until the client
// goes away.
func (s *Server) notices(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeFail(w, http.StatusServiceUnavailable, "no_session", errors.New("notices are not available"))
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The popup is served from an extension or file origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Debug("server: websocket accept", "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	ch, cancel := s.hub.Subscribe(32)
	defer cancel()

	// The stream is one-way; CloseRead handles pings and the close frame.
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case n, ok := <-ch:
			if !ok {
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, done := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, c, n)
			done()
			if err != nil {
				s.logger.Debug("server: notice write", "error", err)
				return
			}
		}
	}
}
