// Package imageutil turns encoded image bytes into the 8-bit RGB tensors the
// vision and image-embedding engines consume.
package imageutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// Channels is the number of interleaved channels in a Tensor.
const Channels = 3

// defaultLoadConcurrency bounds parallel file reads in LoadAll.
const defaultLoadConcurrency = 4

// ErrEmpty is returned when Decode receives no bytes.
var ErrEmpty = errors.New("empty image data")

// Tensor is a decoded image laid out as height x width x RGB bytes.
type Tensor struct {
	Width  int
	Height int
	Data   []byte
}

// Shape returns the NHWC shape of the tensor.
func (t Tensor) Shape() []int { return []int{1, t.Height, t.Width, Channels} }

// IsZero reports whether the tensor holds no pixels.
func (t Tensor) IsZero() bool { return len(t.Data) == 0 }

// Decode decodes any registered image format (png, jpeg, gif, bmp, tiff, webp)
// into an RGB tensor. Alpha is dropped.
func Decode(data []byte) (Tensor, error) {
	if len(data) == 0 {
		return Tensor{}, ErrEmpty
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, fmt.Errorf("decoding image: %w", err)
	}
	return fromImage(img), nil
}

// Load reads and decodes the image file at path.
func Load(path string) (Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Tensor{}, fmt.Errorf("reading image %s: %w", path, err)
	}
	t, err := Decode(b)
	if err != nil {
		return Tensor{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadAll loads every path concurrently. The result keeps input order; the
// first failure aborts the batch.
func LoadAll(ctx context.Context, paths []string) ([]Tensor, error) {
	out := make([]Tensor, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultLoadConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := Load(p)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fromImage(img image.Image) Tensor {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()
	data := make([]byte, 0, w*h*Channels)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			data = append(data, px[0], px[1], px[2])
		}
	}
	return Tensor{Width: w, Height: h, Data: data}
}
