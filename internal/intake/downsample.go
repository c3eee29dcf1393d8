package intake

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	startQuality = 84
	qualityStep  = 12
	minQuality   = 58
	shrinkFactor = 0.92
	maxAttempts  = 4
)

// Downsample re-encodes data as JPEG, scaled so the long side fits
// maxDimension. Successive attempts lower quality and shrink dimensions
// until the output fits thresholdBytes. ok is false when no attempt beat
// the original size, in which case the original should be kept.
func Downsample(data []byte, thresholdBytes int64, maxDimension int) ([]byte, bool, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, false, nil
	}

	scale := 1.0
	if maxSide := max(srcW, srcH); maxDimension > 0 && maxSide > maxDimension {
		scale = float64(maxDimension) / float64(maxSide)
	}
	outW := max(1, int(math.Round(float64(srcW)*scale)))
	outH := max(1, int(math.Round(float64(srcH)*scale)))

	var best []byte
	quality := startQuality
	for attempt := 0; attempt < maxAttempts; attempt++ {
		dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
		draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
			return nil, false, fmt.Errorf("encode jpeg: %w", err)
		}
		if n := buf.Len(); n > 0 && (best == nil || n < len(best)) {
			best = buf.Bytes()
		}
		if int64(buf.Len()) <= thresholdBytes {
			break
		}
		quality = max(minQuality, quality-qualityStep)
		outW = max(1, int(math.Round(float64(outW)*shrinkFactor)))
		outH = max(1, int(math.Round(float64(outH)*shrinkFactor)))
	}

	if best == nil || len(best) >= len(data) {
		return nil, false, nil
	}
	return best, true, nil
}
