package mnist

import (
	"fmt"
	"image"
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"math"
	"os"

	"golang.org/x/image/draw"

	"github.com/born-ml/lenet/internal/tensor"
)

// Block is the side of the square averaged into one output pixel.
const Block = 7

// Downsample reduces a (Rows*Block)x(Cols*Block) grayscale canvas to 28x28
// by block averaging and maps the mean through a tanh contrast curve:
//
//	out = 127.5 * (1 + tanh((mean - 100) / 40))
func Downsample(canvas *image.Gray) []byte {
	sums := make([]float64, ImageSize)
	for y := 0; y < Rows*Block; y++ {
		row := canvas.Pix[y*canvas.Stride:]
		for x := 0; x < Cols*Block; x++ {
			sums[(y/Block)*Cols+x/Block] += float64(row[x])
		}
	}
	out := make([]byte, ImageSize)
	for i, s := range sums {
		v := 127.5 * (1 + math.Tanh((s/(Block*Block)-100)/40))
		out[i] = uint8(min(v, 255))
	}
	return out
}

// Canvas converts img to a grayscale canvas of Downsample's input size,
// resampling when needed. With invert set, dark strokes on a light
// background become light strokes on a dark one, as in the training data.
func Canvas(img image.Image, invert bool) *image.Gray {
	size := image.Rect(0, 0, Cols*Block, Rows*Block)
	canvas := image.NewGray(size)
	if img.Bounds().Size() == size.Size() {
		draw.Draw(canvas, size, img, img.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(canvas, size, img, img.Bounds(), draw.Src, nil)
	}
	if invert {
		for i, p := range canvas.Pix {
			canvas.Pix[i] = 255 - p
		}
	}
	return canvas
}

// LoadImageFile decodes a PNG or JPEG file into 28x28 pixel bytes.
func LoadImageFile(path string, invert bool) ([]byte, error) {
	//nolint:gosec // G304: image path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s: empty image", path)
	}
	return Downsample(Canvas(img, invert)), nil
}

// ReadRaw reads a raw 784-byte image.
func ReadRaw(path string) ([]byte, error) {
	//nolint:gosec // G304: image path comes from the command line
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) != ImageSize {
		return nil, fmt.Errorf("%s: %w: %d bytes, want %d", path, ErrFormat, len(b), ImageSize)
	}
	return b, nil
}

// WriteRaw writes the 784 pixel bytes of an image.
func WriteRaw(path string, pixels []byte) error {
	if len(pixels) != ImageSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrFormat, len(pixels), ImageSize)
	}
	return os.WriteFile(path, pixels, 0o644)
}

// ToTensor scales pixel bytes by 1/256 into a [1,1,28,28] float32 tensor.
func ToTensor(pixels []byte) (*tensor.Tensor, error) {
	if len(pixels) != ImageSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrFormat, len(pixels), ImageSize)
	}
	data := make([]float32, ImageSize)
	for i, p := range pixels {
		data[i] = float32(p) / 256
	}
	return tensor.FromFloat32(data, tensor.Shape{1, 1, Rows, Cols})
}
