// Package main provides the brew command line: device listing, layer timing
// and dataset conversion.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

const version = "v0.1.0"

var (
	app   = kingpin.New("brew", "Convolutional layer framework tools.")
	debug = app.Flag("debug", "Enable debug logging.").Bool()

	versionCmd = app.Command("version", "Show version.")
	devicesCmd = app.Command("devices", "List compute devices.")

	timeCmd        = app.Command("time", "Time forward and backward of every layer of LeNet.")
	timeIterations = timeCmd.Flag("iterations", "Number of timed iterations.").Short('n').Default("10").Int()
	timeBatch      = timeCmd.Flag("batch", "Batch size.").Short('b').Default("64").Int()
	timeGPU        = timeCmd.Flag("gpu", "Run the GPU entry points.").Bool()
	timeDevice     = timeCmd.Flag("device", "Accelerator for --gpu.").Default("emu").Enum("emu", "webgpu")
	timeOnly       = timeCmd.Flag("only", "Comma separated layer names to report.").String()
	timeSeed       = timeCmd.Flag("seed", "Random seed for fillers and inputs.").Default("1701").Uint64()

	convertCmd    = app.Command("convert-mnist", "Convert MNIST IDX files into a record store.")
	convertImages = convertCmd.Arg("images", "IDX image file.").Required().ExistingFile()
	convertLabels = convertCmd.Arg("labels", "IDX label file.").Required().ExistingFile()
	convertOutput = convertCmd.Arg("output", "Store directory to create.").Required().String()
)

func main() {
	app.Version(version)
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	var err error
	switch cmd {
	case versionCmd.FullCommand():
		fmt.Printf("brew %s\n", version)
	case devicesCmd.FullCommand():
		err = listDevices(os.Stdout)
	case timeCmd.FullCommand():
		err = timeLeNet(os.Stdout, timeOptions{
			iterations: *timeIterations,
			batch:      *timeBatch,
			gpu:        *timeGPU,
			device:     *timeDevice,
			only:       *timeOnly,
			seed:       *timeSeed,
		})
	case convertCmd.FullCommand():
		err = convertMNIST(*convertImages, *convertLabels, *convertOutput)
	}
	if err != nil {
		log.Fatal(err)
	}
}
