package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// Bundled image operation names.
const (
	OpImageResize    = "image.resize"
	OpImageBlur      = "image.blur"
	OpImageGrayscale = "image.grayscale"
)

// intParam reads an integer-ish config value. HCL and JSON both surface
// numbers as float64 by the time they reach a transform.
func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func decodePNG(ctx context.Context, payload []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

func encodePNG(ctx context.Context, img image.Image) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ImageResize scales the payload to width x height using nearest-neighbour
// sampling. A missing dimension is derived from the source aspect ratio.
func ImageResize(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
	src, err := decodePNG(ctx, payload)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	width := intParam(params, "width", 0)
	height := intParam(params, "height", 0)
	switch {
	case width <= 0 && height <= 0:
		return nil, fmt.Errorf("resize: width or height required")
	case width <= 0:
		width = bounds.Dx() * height / bounds.Dy()
	case height <= 0:
		height = bounds.Dy() * width / bounds.Dx()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcY := bounds.Min.Y + y*bounds.Dy()/height
		for x := 0; x < width; x++ {
			srcX := bounds.Min.X + x*bounds.Dx()/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return encodePNG(ctx, dst)
}

// ImageBlur applies a box blur with the given size (radius in pixels).
func ImageBlur(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
	src, err := decodePNG(ctx, payload)
	if err != nil {
		return nil, err
	}

	radius := intParam(params, "size", 2)
	if radius < 0 {
		return nil, fmt.Errorf("blur: negative size %d", radius)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var r, g, b, a, n uint32
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					sx, sy := x+dx, y+dy
					if sx < bounds.Min.X || sx >= bounds.Max.X || sy < bounds.Min.Y || sy >= bounds.Max.Y {
						continue
					}
					pr, pg, pb, pa := src.At(sx, sy).RGBA()
					r += pr
					g += pg
					b += pb
					a += pa
					n++
				}
			}
			dst.Set(x, y, color.RGBA64{
				R: uint16(r / n),
				G: uint16(g / n),
				B: uint16(b / n),
				A: uint16(a / n),
			})
		}
	}
	return encodePNG(ctx, dst)
}

// ImageGrayscale converts the payload to 8-bit grayscale.
func ImageGrayscale(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
	src, err := decodePNG(ctx, payload)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
	return encodePNG(ctx, dst)
}
