package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/engine"
	"github.com/born-ml/brew/internal/layers"
	"github.com/born-ml/brew/internal/net"
	"github.com/evilsocket/islazy/str"
	"github.com/evilsocket/islazy/tui"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

type timeOptions struct {
	iterations int
	batch      int
	gpu        bool
	device     string
	only       string
	seed       uint64
}

func xavier() config.FillerParameter {
	return config.FillerParameter{Type: config.FillerXavier}
}

func conv(name string, numOutput int) config.LayerParameter {
	p := config.NewLayer(name, config.TypeConvolution)
	p.NumOutput = numOutput
	p.KernelSize = 5
	p.WeightFiller = xavier()
	return p
}

func maxPool(name string) config.LayerParameter {
	p := config.NewLayer(name, config.TypePooling)
	p.Pool = config.PoolMax
	p.KernelSize = 2
	p.Stride = 2
	return p
}

func innerProduct(name string, numOutput int) config.LayerParameter {
	p := config.NewLayer(name, config.TypeInnerProduct)
	p.NumOutput = numOutput
	p.WeightFiller = xavier()
	return p
}

// lenet is the classic 28×28 digit classifier.
func lenet(batch int) config.NetParameter {
	return config.NetParameter{
		Name: "lenet",
		Inputs: []config.Input{
			{Name: "data", Shape: []int{batch, 1, 28, 28}},
			{Name: "label", Shape: []int{batch, 1, 1, 1}},
		},
		Layers: []config.LayerConnection{
			{Layer: conv("conv1", 20), Bottom: []string{"data"}, Top: []string{"conv1"}},
			{Layer: maxPool("pool1"), Bottom: []string{"conv1"}, Top: []string{"pool1"}},
			{Layer: conv("conv2", 50), Bottom: []string{"pool1"}, Top: []string{"conv2"}},
			{Layer: maxPool("pool2"), Bottom: []string{"conv2"}, Top: []string{"pool2"}},
			{Layer: innerProduct("ip1", 500), Bottom: []string{"pool2"}, Top: []string{"ip1"}},
			{Layer: config.NewLayer("relu1", config.TypeReLU), Bottom: []string{"ip1"}, Top: []string{"relu1"}},
			{Layer: innerProduct("ip2", 10), Bottom: []string{"relu1"}, Top: []string{"ip2"}},
			{Layer: config.NewLayer("loss", config.TypeSoftmaxWithLoss), Bottom: []string{"ip2", "label"}},
		},
	}
}

func timeLeNet(w io.Writer, o timeOptions) error {
	if o.iterations <= 0 || o.batch <= 0 {
		return fmt.Errorf("iterations and batch must be positive")
	}
	defer engine.Reset()
	engine.SetRandomSeed(o.seed)
	if o.gpu {
		dev, release, err := openDevice(o.device)
		if err != nil {
			return err
		}
		defer release()
		engine.SetDevice(dev)
		engine.SetMode(engine.GPU)
	}

	n, err := net.New[float32](lenet(o.batch))
	if err != nil {
		return err
	}
	defer n.Close()

	pixels := distuv.Normal{Mu: 0, Sigma: 1, Src: engine.NewSource()}
	data := n.Blob("data").MutableCPUData()
	for i := range data {
		data[i] = float32(pixels.Rand())
	}
	classes := rand.New(engine.NewSource())
	labels := n.Blob("label").MutableCPUData()
	for i := range labels {
		labels[i] = float32(classes.IntN(10))
	}

	sync := func() {}
	if o.gpu {
		sync = engine.Device().Synchronize
	}

	all := n.Layers()
	forward := make([]time.Duration, len(all))
	backward := make([]time.Duration, len(all))
	start := time.Now()
	for it := 0; it < o.iterations; it++ {
		for i, l := range all {
			t0 := time.Now()
			layers.Forward(l, n.Bottoms(i), n.Tops(i))
			sync()
			forward[i] += time.Since(t0)
		}
		for i := len(all) - 1; i >= 0; i-- {
			l := all[i]
			if !n.NeedsBackward(i) && !layers.IsLoss(l.Type()) {
				continue
			}
			t0 := time.Now()
			layers.Backward(l, n.Tops(i), n.PropagateDown(i), n.Bottoms(i))
			sync()
			backward[i] += time.Since(t0)
		}
		log.Debugf("iteration %d done", it)
	}
	total := time.Since(start)

	only := make(map[string]bool)
	for _, name := range str.SplitBy(o.only, ",") {
		if name = str.Trim(name); name != "" {
			only[name] = true
		}
	}

	var fwdSum, bwdSum time.Duration
	rows := [][]string{}
	for i, l := range all {
		fwdSum += forward[i]
		bwdSum += backward[i]
		if len(only) > 0 && !only[l.Name()] {
			continue
		}
		shape := "-"
		if tops := n.Tops(i); len(tops) > 0 {
			shape = tops[0].ShapeString()
		}
		rows = append(rows, []string{
			l.Name(),
			string(l.Type()),
			shape,
			average(forward[i], o.iterations),
			average(backward[i], o.iterations),
		})
	}
	tui.Table(w, []string{"layer", "type", "top", "forward", "backward"}, rows)

	mode := engine.CurrentMode().String()
	if o.gpu {
		mode += " (" + engine.Device().Name() + ")"
	}
	fmt.Fprintf(w, "%s %s: forward %s, backward %s, %d iterations in %s\n",
		tui.Bold("lenet"), mode,
		average(fwdSum, o.iterations), average(bwdSum, o.iterations),
		o.iterations, total.Round(time.Millisecond))
	log.Info(n.MemoryUsage())
	return nil
}

func average(d time.Duration, n int) string {
	return (d / time.Duration(n)).Round(time.Microsecond).String()
}
