// Package main converts the MNIST IDX files into the LevelDB stores read by
// the lenet command.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/born-ml/lenet/internal/mnist"
)

func main() {
	src := flag.String("src", "./data", "Directory containing the MNIST .gz files")
	dst := flag.String("dst", ".", "Directory for the LevelDB stores")
	limit := flag.Int("limit", 0, "Max records per store (0 = all)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	jobs := []struct {
		images, labels, db string
	}{
		{mnist.TrainImagesFile, mnist.TrainLabelsFile, "mnist-train-nchw-leveldb"},
		{mnist.TestImagesFile, mnist.TestLabelsFile, "mnist-test-nchw-leveldb"},
	}
	for _, j := range jobs {
		dbPath := filepath.Join(*dst, j.db)
		n, err := mnist.BuildDB(filepath.Join(*src, j.images), filepath.Join(*src, j.labels), dbPath, *limit)
		if err != nil {
			logger.Error("build store", "db", dbPath, "err", err)
			if os.IsNotExist(err) {
				logger.Info("download train/t10k images and labels from http://yann.lecun.com/exdb/mnist/ into -src")
			}
			os.Exit(1)
		}
		logger.Info("built store", "db", dbPath, "records", n)
	}
}
