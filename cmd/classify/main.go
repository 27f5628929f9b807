// Package main classifies one digit with exported predictor nets.
//
// The image comes from a record store (-db, -index), a raw 784-byte file
// (-raw) or a PNG/JPEG file (-image).
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/mnist"
	"github.com/born-ml/lenet/internal/predictor"
	"github.com/born-ml/lenet/internal/store"
	"github.com/born-ml/lenet/internal/workspace"
)

func main() {
	nets := flag.String("nets", ".", "Directory containing mnist_init_net.pb and mnist_predict_net.pb")
	dbPath := flag.String("db", "", "Record store to read the image from")
	index := flag.Int("index", 0, "Record index in -db")
	raw := flag.String("raw", "", "Raw 784-byte image file")
	imgPath := flag.String("image", "", "PNG or JPEG image")
	invert := flag.Bool("invert", false, "Invert -image (dark digit on light background)")
	exportRaw := flag.String("export-raw", "", "Write the 784 raw bytes of the chosen image here")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, *nets, *dbPath, *index, *raw, *imgPath, *invert, *exportRaw); err != nil {
		logger.Error("classify failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, nets, dbPath string, index int, raw, imgPath string, invert bool, exportRaw string) error {
	pixels, label, err := loadPixels(dbPath, index, raw, imgPath, invert)
	if err != nil {
		return err
	}
	if exportRaw != "" {
		if err := mnist.WriteRaw(exportRaw, pixels); err != nil {
			return err
		}
		logger.Info("exported image", "path", exportRaw)
	}

	p, err := predictor.NewFromDir(nets, workspace.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer p.Close()
	logger.Info("loaded predictor", "dir", nets, "run_id", p.RunID())

	x, err := mnist.ToTensor(pixels)
	if err != nil {
		return err
	}
	y, err := p.Run(x)
	if err != nil {
		return err
	}
	probs := y.Float32()
	for i, v := range probs {
		fmt.Printf("%d: %.4f\n", i, v)
	}
	class := cpu.ArgMax(probs)
	if label >= 0 {
		fmt.Println("Class:", class, "expected:", label)
	} else {
		fmt.Println("Class:", class)
	}
	return nil
}

// loadPixels returns the image bytes and, for store records, the label
// (-1 otherwise).
func loadPixels(dbPath string, index int, raw, imgPath string, invert bool) ([]byte, int32, error) {
	switch {
	case dbPath != "":
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, 0, err
		}
		defer db.Close()
		rec, err := db.Record(index)
		if err != nil {
			return nil, 0, err
		}
		return rec.Image, rec.Label, nil
	case raw != "":
		px, err := mnist.ReadRaw(raw)
		return px, -1, err
	case imgPath != "":
		px, err := mnist.LoadImageFile(imgPath, invert)
		return px, -1, err
	default:
		return nil, 0, errors.New("one of -db, -raw or -image is required")
	}
}
