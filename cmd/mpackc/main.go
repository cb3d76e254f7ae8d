// Command mpackc converts between MessagePack bytes and a restricted JSON
// representation, driving lib/mpack's walker (via internal/mvalue) in both
// directions. JSON numbers round-trip through float64 (so integers wider
// than 2^53 lose precision), object keys must be strings, and Ext values
// decode to {"ext_type": N, "data": "<base64>"} one-way only.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/thebagchi/mpack-go/internal/mvalue"
	"github.com/thebagchi/mpack-go/lib/mpack"
)

func main() {
	var (
		decode = flag.Bool("decode", false, "decode MessagePack to JSON instead of encoding")
		in     = flag.String("in", "", "input file (default stdin)")
		out    = flag.String("out", "", "output file (default stdout)")
		depth  = flag.Int("depth", 32, "maximum nesting depth")
	)
	flag.Parse()

	input, err := readInput(*in)
	if err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}

	var output []byte
	if *decode {
		output, err = decodeToJSON(input, *depth)
	} else {
		output, err = encodeFromJSON(input, *depth)
	}
	if err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}

	if err := writeOutput(*out, output); err != nil {
		fmt.Println("Error: ", err)
		os.Exit(1)
	}
}

func readInput(path string) ([]byte, error) {
	if len(path) == 0 {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if len(path) == 0 {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func decodeToJSON(input []byte, depth int) ([]byte, error) {
	p := mpack.NewParser(depth)
	value, _, status, err := mvalue.Decode(p, input)
	switch status {
	case mpack.Ok:
		return json.Marshal(value)
	case mpack.Eof:
		return nil, fmt.Errorf("truncated MessagePack input")
	case mpack.NoMem:
		return nil, fmt.Errorf("nesting exceeds -depth=%d", p.Capacity())
	case mpack.Exception:
		return nil, fmt.Errorf("decode rejected: map key was not a string")
	default:
		return nil, err
	}
}

func encodeFromJSON(input []byte, depth int) ([]byte, error) {
	var root any
	if err := json.Unmarshal(input, &root); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	u := mpack.NewUnparser(depth)
	var encoded []byte
	buf := make([]byte, 4096)
	for {
		n, status, err := mvalue.Encode(u, root, buf)
		encoded = append(encoded, buf[:n]...)
		switch status {
		case mpack.Ok:
			return encoded, nil
		case mpack.Eof:
			continue
		case mpack.NoMem:
			return nil, fmt.Errorf("nesting exceeds -depth=%d", u.Capacity())
		case mpack.Exception:
			return nil, err
		default:
			return nil, err
		}
	}
}
