// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package net wires layers into a feed-forward graph by blob name.
//
// Example:
//
//	n, err := net.New[float32](net.Parameter{
//	    Name:   "mlp",
//	    Inputs: []net.Input{{Name: "data", Shape: []int{64, 784, 1, 1}}, {Name: "label", Shape: []int{64, 1, 1, 1}}},
//	    Layers: []net.LayerConnection{
//	        {Layer: ip1, Bottom: []string{"data"}, Top: []string{"ip1"}},
//	        {Layer: loss, Bottom: []string{"ip1", "label"}},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Close()
//	loss := n.ForwardBackward()
package net

import (
	"github.com/born-ml/brew/blob"
	"github.com/born-ml/brew/internal/config"
	"github.com/born-ml/brew/internal/net"
	"github.com/born-ml/brew/layers"
)

// Net is a built graph of set-up layers.
type Net[T blob.Float] = net.Net[T]

// MemoryReport summarizes the blob storage of a net.
type MemoryReport = net.MemoryReport

// Graph description types.
type (
	Parameter       = config.NetParameter
	Input           = config.Input
	LayerConnection = config.LayerConnection
)

// Errors returned by Net methods.
var (
	ErrInputCount = net.ErrInputCount
	ErrWeights    = net.ErrWeights
)

// New builds and sets up every layer of p in order.
func New[T blob.Float](p Parameter, opts ...layers.Option) (*Net[T], error) {
	return net.New[T](p, opts...)
}
