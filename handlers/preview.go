package handlers

import (
	"image"
	"image/color"
	"log"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/imagebank/backend/gallery"
	"github.com/imagebank/backend/models"
)

// previews larger than this are scaled down before encoding
const previewMaxSize = 1600

type PreviewHandler struct {
	Service *gallery.Service
}

func NewPreviewHandler(service *gallery.Service) *PreviewHandler {
	return &PreviewHandler{Service: service}
}

func drawBox(img *image.NRGBA, rect image.Rectangle, col color.NRGBA, thickness int) {
	bounds := img.Bounds()
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, rect.Min.Y+t, col)
			img.SetNRGBA(x, rect.Max.Y-1-t, col)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			img.SetNRGBA(rect.Min.X+t, y, col)
			img.SetNRGBA(rect.Max.X-1-t, y, col)
		}
	}
}

// ServeAnnotatedPreview renders the image with its stored face rectangles
// drawn on top and returns it as a JPEG. Like ShowImage, it is public.
func (ph *PreviewHandler) ServeAnnotatedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := imageIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid image ID")
		return
	}

	entry, err := ph.Service.Retrieve(id, nil, false)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	var faces []models.Face
	if faces, err = ph.Service.Rectangles(id); err != nil {
		log.Printf("handlers: failed to load rectangles for preview of image %d: %v", id, err)
		faces = nil // serve the plain image rather than failing the preview
	}

	fullPath, err := ph.Service.BlobPath(entry.Filename)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	src, err := imaging.Open(fullPath)
	if err != nil {
		log.Printf("handlers: failed to decode %s for preview: %v", entry.Filename, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to decode image")
		return
	}

	canvas := imaging.Clone(src)
	boxColor := color.NRGBA{R: 0, G: 80, B: 255, A: 255}
	for _, face := range faces {
		drawBox(canvas, image.Rect(face.X1, face.Y1, face.X2+1, face.Y2+1), boxColor, 2)
	}

	out := image.Image(canvas)
	if b := canvas.Bounds(); b.Dx() > previewMaxSize || b.Dy() > previewMaxSize {
		out = imaging.Fit(canvas, previewMaxSize, previewMaxSize, imaging.Lanczos)
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := imaging.Encode(w, out, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		log.Printf("handlers: failed to encode preview for image %d: %v", id, err)
	}
}
