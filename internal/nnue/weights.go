package nnue

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	Magic   = 0x46524B53
	Version = 1
)

// ErrBadNetwork reports a weights file with the wrong header.
var ErrBadNetwork = errors.New("nnue: bad network file")

type header struct {
	Magic   uint32
	Version uint32
	L1Size  uint32
	L2Size  uint32
}

// LoadNetwork reads a network file from path.
func LoadNetwork(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network: %w", err)
	}
	defer f.Close()

	net := new(Network)
	if err := net.Read(bufio.NewReaderSize(f, 1<<16)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

// Read decodes the network from r. The layout is a header (magic, version,
// L1 and L2 sizes as uint32) followed by every layer in declaration order,
// all little-endian.
func (n *Network) Read(r io.Reader) error {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	switch {
	case h.Magic != Magic:
		return fmt.Errorf("%w: magic %#x", ErrBadNetwork, h.Magic)
	case h.Version != Version:
		return fmt.Errorf("%w: version %d", ErrBadNetwork, h.Version)
	case h.L1Size != L1Size || h.L2Size != L2Size:
		return fmt.Errorf("%w: layers %dx%d, want %dx%d", ErrBadNetwork, h.L1Size, h.L2Size, L1Size, L2Size)
	}

	for i := range n.L1Weights {
		if err := binary.Read(r, binary.LittleEndian, &n.L1Weights[i]); err != nil {
			return fmt.Errorf("read L1 weights row %d: %w", i, err)
		}
	}
	for _, field := range []struct {
		name string
		data any
	}{
		{"L1 bias", &n.L1Bias},
		{"L2 weights", &n.L2Weights},
		{"L2 bias", &n.L2Bias},
		{"output weights", &n.OutputWeights},
		{"output bias", &n.OutputBias},
	} {
		if err := binary.Read(r, binary.LittleEndian, field.data); err != nil {
			return fmt.Errorf("read %s: %w", field.name, err)
		}
	}
	return nil
}

// Write encodes the network in the layout Read expects.
func (n *Network) Write(w io.Writer) error {
	h := header{Magic: Magic, Version: Version, L1Size: L1Size, L2Size: L2Size}
	for _, data := range []any{&h, &n.L1Weights, &n.L1Bias, &n.L2Weights, &n.L2Bias, &n.OutputWeights, &n.OutputBias} {
		if err := binary.Write(w, binary.LittleEndian, data); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the network to path.
func (n *Network) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, 1<<16)
	if err := n.Write(bw); err != nil {
		f.Close()
		return fmt.Errorf("write network: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
