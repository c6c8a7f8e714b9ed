package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dudu/pumpkinface/internal/compositor"
	"github.com/dudu/pumpkinface/internal/pipeline"
	"github.com/dudu/pumpkinface/internal/session"
)

const (
	// streamBoundary separates MJPEG parts
	streamBoundary = "pumpkinframe"
	// versionHeader carries the render version of a snapshot or stream part
	versionHeader = "X-Render-Version"
)

type healthResponse struct {
	Session string        `json:"session"`
	Mode    pipeline.Mode `json:"mode"`
	Active  bool          `json:"active"`
	Stats   session.Stats `json:"stats"`
	Timing  timingJSON    `json:"timing_ms"`
}

type timingJSON struct {
	Detection float64 `json:"detection"`
	Composite float64 `json:"composite"`
	Total     float64 `json:"total"`
}

// PlacementMessage is one websocket update of overlay placements
type PlacementMessage struct {
	Seq          uint64          `json:"seq"`
	ScreenWidth  float64         `json:"screen_width"`
	ScreenHeight float64         `json:"screen_height"`
	Placements   []PlacementJSON `json:"placements"`
}

// PlacementJSON is a display rect with a top-left origin
type PlacementJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pub.Stats()
	s.JSON(w, http.StatusOK, healthResponse{
		Session: s.pub.ID(),
		Mode:    s.pub.Mode(),
		Active:  s.pub.Active(),
		Stats:   stats,
		Timing: timingJSON{
			Detection: millis(stats.LastTiming.Detection),
			Composite: millis(stats.LastTiming.Composite),
			Total:     millis(stats.LastTiming.Total),
		},
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	img, version, ok := s.pub.Render()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := s.encodeJPEG(img)
	if err != nil {
		s.log.WithError(err).Warn("snapshot failed")
		s.JSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set(versionHeader, strconv.FormatUint(version, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.JSON(w, http.StatusInternalServerError, map[string]string{"status": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, "--%s\r\n", streamBoundary); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("stream client connected")
	defer log.Debug("stream client gone")

	var (
		version uint64
		buf     bytes.Buffer
	)
	for {
		next, err := s.pub.WaitRender(ctx, version)
		if err != nil {
			return
		}
		version = next

		img, rendered, ok := s.pub.Render()
		if !ok {
			continue
		}
		data, err := s.encodeJPEG(img)
		if err != nil {
			log.WithError(err).Warn("stream frame dropped")
			continue
		}

		// the trailing delimiter completes this part on the wire
		buf.Reset()
		fmt.Fprintf(&buf, "Content-Type: image/jpeg\r\nContent-Length: %d\r\n%s: %d\r\n\r\n",
			len(data), versionHeader, rendered)
		buf.Write(data)
		fmt.Fprintf(&buf, "\r\n--%s\r\n", streamBoundary)
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handlePlacements(w http.ResponseWriter, r *http.Request) {
	if s.pub.Mode() != pipeline.ModeOverlay {
		s.JSON(w, http.StatusConflict, map[string]string{"status": "placements are only published in overlay mode"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the read loop only notices the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var version uint64
	for {
		overlay, next, err := s.pub.WaitOverlay(ctx, version)
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
		version = next

		payload, err := json.Marshal(placementMessage(overlay))
		if err != nil {
			s.log.WithError(err).Warn("placement encode failed")
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func placementMessage(o *session.Overlay) PlacementMessage {
	msg := PlacementMessage{Placements: []PlacementJSON{}}
	if o == nil {
		return msg
	}
	msg.Seq = o.Seq
	msg.ScreenWidth = o.ScreenWidth
	msg.ScreenHeight = o.ScreenHeight
	for _, p := range o.Placements {
		msg.Placements = append(msg.Placements, placementJSON(p))
	}
	return msg
}

func placementJSON(p compositor.Placement) PlacementJSON {
	r := p.Rect.Rect()
	return PlacementJSON{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}
