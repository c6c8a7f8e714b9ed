// Command modelcheck verifies that a detector model loads and reports how
// fast it runs on a blank frame.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/pumpkinface/internal/detector"
	"github.com/dudu/pumpkinface/internal/detector/scrfd"
	"github.com/dudu/pumpkinface/internal/inference"
	"github.com/dudu/pumpkinface/internal/logging"
	"github.com/dudu/pumpkinface/internal/pipeline"
)

type options struct {
	library    string
	metal      bool
	iterations int
	size       int
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.library, "ort-library", "", "ONNX Runtime shared library (default: platform path)")
	flag.BoolVar(&opts.metal, "metal", false, "Also try importing the ONNX graph with go-metal")
	flag.IntVar(&opts.iterations, "bench", 10, "Timed detections after warmup, 0 to skip")
	flag.IntVar(&opts.size, "size", 640, "Blank frame size for the benchmark")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelcheck [options] <model.onnx | facefinder>\n\n")
		fmt.Fprintf(os.Stderr, "Checks that a detector model loads.\n\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  modelcheck models/scrfd_10g.onnx\n")
		fmt.Fprintf(os.Stderr, "  modelcheck -metal models/scrfd_10g.onnx\n")
		fmt.Fprintf(os.Stderr, "  modelcheck -bench 50 models/facefinder\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(flag.Arg(0), opts, logger); err != nil {
		fmt.Printf("\n❌ FAILED: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath string, opts options, logger *logrus.Logger) error {
	fmt.Printf("Testing model: %s\n", modelPath)
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	var det pipeline.FaceDetector
	if strings.EqualFold(filepath.Ext(modelPath), ".onnx") {
		d, err := checkONNX(modelPath, opts, logger)
		if err != nil {
			return err
		}
		defer inference.Shutdown()
		det = d
	} else {
		d, err := detector.NewPigo(modelPath, detector.DefaultPigoParams())
		if err != nil {
			return err
		}
		fmt.Println("✓ Pigo cascade unpacked")
		det = d
	}
	defer det.Close()

	if opts.iterations > 0 {
		benchmark(det, opts.size, opts.iterations)
	}

	fmt.Println("\n✅ SUCCESS! Model is usable.")
	return nil
}

func checkONNX(modelPath string, opts options, logger *logrus.Logger) (pipeline.FaceDetector, error) {
	if opts.metal {
		checkMetal(modelPath)
	}

	fmt.Println("\nInitializing ONNX Runtime...")
	if err := inference.Initialize(opts.library, logger); err != nil {
		fmt.Println("\nYou may need to install ONNX Runtime:")
		fmt.Println("  brew install onnxruntime")
		return nil, err
	}
	fmt.Println("✓ ONNX Runtime initialized")

	inputs, outputs, err := inference.ModelInfo(modelPath)
	if err != nil {
		inference.Shutdown()
		return nil, err
	}
	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", info.Name, info.Dimensions, info.DataType)
	}
	printMetadata(modelPath)

	det, err := scrfd.New(scrfd.Options{ModelPath: modelPath})
	if err != nil {
		inference.Shutdown()
		return nil, err
	}
	fmt.Println("\n✓ SCRFD session created")
	return det, nil
}

func printMetadata(modelPath string) {
	fmt.Println("\nMetadata:")
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		fmt.Printf("  (Could not read metadata: %v)\n", err)
		return
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Printf("  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Printf("  Version: %d\n", version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		fmt.Printf("  Domain: %s\n", domain)
	}
}

// checkMetal reports whether go-metal can import the graph. Failure is
// informational; the detector runs on ONNX Runtime either way.
func checkMetal(modelPath string) {
	fmt.Println("\nAttempting to import with go-metal...")
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		fmt.Printf("  go-metal cannot import this model: %v\n", err)
		fmt.Println("  go-metal only supports: Conv, MatMul, Add, Relu, LeakyRelu,")
		fmt.Println("  Sigmoid, Tanh, BatchNorm, Dropout, Softmax, Flatten")
		return
	}
	fmt.Printf("  ✓ Imported: %d layers, %d weight tensors\n",
		len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("    %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
}

func benchmark(det pipeline.FaceDetector, size, iterations int) {
	frame := image.NewRGBA(image.Rect(0, 0, size, size))

	fmt.Println("\nWarming up...")
	for i := 0; i < 3; i++ {
		if _, err := det.Detect(frame); err != nil {
			fmt.Printf("Warmup detection failed: %v\n", err)
		}
	}

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := det.Detect(frame); err != nil {
			fmt.Printf("Detection %d failed: %v\n", i, err)
		}
	}
	elapsed := time.Since(start)
	avg := elapsed / time.Duration(iterations)
	fmt.Printf("Benchmark: %d detections, avg %v (%.1f FPS)\n",
		iterations, avg, float64(time.Second)/float64(avg))
}
