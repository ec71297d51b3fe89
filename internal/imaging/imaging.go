package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"streetsight/internal/detector"
)

// WatermarkRect is the attribution stamp region the imagery provider adds
// at the bottom-left corner of every 640x640 frame.
var WatermarkRect = image.Rect(0, 615, 120, 640)

// MaskWatermark blanks the watermark region to a solid color and returns
// the re-encoded JPEG. On any failure the original bytes come back with
// the error so the caller can proceed on the unmasked image as a degraded
// fallback.
func MaskWatermark(data []byte) ([]byte, error) {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return data, fmt.Errorf("decode image: %w", err)
	}
	defer frame.Close()
	if frame.Empty() {
		return data, fmt.Errorf("decode image: empty frame")
	}

	rect := WatermarkRect.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if rect.Empty() {
		return data, nil
	}
	gocv.Rectangle(&frame, rect, color.RGBA{0, 0, 0, 255}, -1)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return data, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Annotate draws the detection boxes and labels onto a copy of the frame
// and returns it as JPEG. Used for the detected-images namespace upload.
func Annotate(data []byte, detections []detector.Detection) ([]byte, error) {
	frame, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer frame.Close()
	if frame.Empty() {
		return nil, fmt.Errorf("decode image: empty frame")
	}

	for _, d := range detections {
		label := fmt.Sprintf("%s: %.2f", d.Label, d.Score)
		labelSize := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 2)

		box := image.Rect(d.Box[0], d.Box[1], d.Box[2], d.Box[3])
		gocv.Rectangle(&frame, box, color.RGBA{0, 255, 0, 255}, 2)
		gocv.Rectangle(&frame, image.Rect(d.Box[0], d.Box[1]-labelSize.Y-10, d.Box[0]+labelSize.X, d.Box[1]),
			color.RGBA{0, 255, 0, 255}, -1)
		gocv.PutText(&frame, label, image.Pt(d.Box[0], d.Box[1]-5),
			gocv.FontHersheySimplex, 0.5, color.RGBA{0, 0, 0, 255}, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
