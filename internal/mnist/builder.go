package mnist

import (
	"fmt"

	"github.com/born-ml/lenet/internal/store"
)

// Standard file names of the MNIST distribution.
const (
	TrainImagesFile = "train-images-idx3-ubyte.gz"
	TrainLabelsFile = "train-labels-idx1-ubyte.gz"
	TestImagesFile  = "t10k-images-idx3-ubyte.gz"
	TestLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

// BuildDB writes images and labels into a new LevelDB store at dbPath,
// keyed %08d in file order. limit > 0 caps the number of records.
// It returns the number of records written.
func BuildDB(imagesPath, labelsPath, dbPath string, limit int) (int, error) {
	imgs, err := ReadImages(imagesPath)
	if err != nil {
		return 0, err
	}
	labels, err := ReadLabels(labelsPath)
	if err != nil {
		return 0, err
	}
	if len(labels) != len(imgs.Pixels) {
		return 0, fmt.Errorf("%w: %d images but %d labels", ErrFormat, len(imgs.Pixels), len(labels))
	}
	n := len(labels)
	if limit > 0 && limit < n {
		n = limit
	}

	w, err := store.Create(dbPath)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		rec := store.Record{Image: imgs.Pixels[i], Dims: []int{1, imgs.Rows, imgs.Cols}, Label: int32(labels[i])}
		if err := w.Add(rec); err != nil {
			_ = w.Close()
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
