package server

import (
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"

	"flamingods.net/ledplans/led"
)

const (
	defaultPreviewScale = 8
	maxPreviewScale     = 32
)

// frameImage draws one pixel per LED, one row per strip.
func frameImage(f *led.Frame) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Len(), len(f.Strips)))
	for y, strip := range f.Strips {
		for x, l := range strip {
			img.SetNRGBA(x, y, color.NRGBA{R: l.Red, G: l.Green, B: l.Blue, A: 255})
		}
	}
	return img
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f := s.dev.Snapshot().Frame
	if f == nil || f.Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	scale := defaultPreviewScale
	if v := r.URL.Query().Get("scale"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPreviewScale {
			writeError(w, http.StatusBadRequest, "scale must be between 1 and 32")
			return
		}
		scale = n
	}
	img := imaging.Resize(frameImage(f), f.Len()*scale, len(f.Strips)*scale, imaging.NearestNeighbor)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode preview", "error", err)
	}
}
