package main

import (
	"fmt"
	"path/filepath"

	"github.com/born-ml/brew/internal/data"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// convertMNIST writes one Datum per image, keyed by zero-padded index so the
// store iterates in file order.
func convertMNIST(imagesFile, labelsFile, output string) error {
	imgs, err := openIDX(imagesFile, readIDXImages)
	if err != nil {
		return err
	}
	labels, err := openIDX(labelsFile, readIDXLabels)
	if err != nil {
		return err
	}
	if len(labels) != len(imgs.pixels) {
		return fmt.Errorf("%d images but %d labels", len(imgs.pixels), len(labels))
	}

	store, err := data.Create(output)
	if err != nil {
		return err
	}
	base := filepath.Base(imagesFile)
	var bytes uint64
	for i, px := range imgs.pixels {
		d := &data.Datum{
			Channels: 1,
			Height:   int32(imgs.rows),
			Width:    int32(imgs.cols),
			Data:     px,
			Label:    int32(labels[i]),
			Filename: fmt.Sprintf("%s#%d", base, i),
		}
		if err := store.Put(fmt.Sprintf("%08d", i), d); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		bytes += uint64(len(px))

		if (i+1)%10000 == 0 {
			log.Debugf("converted %d images", i+1)
		}
	}

	log.WithFields(log.Fields{
		"store":  output,
		"images": humanize.Comma(int64(len(imgs.pixels))),
		"pixels": humanize.Bytes(bytes),
	}).Infof("converted %dx%d MNIST images", imgs.rows, imgs.cols)
	return nil
}
