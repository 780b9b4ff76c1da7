// Command deconv runs sparse nonnegative deconvolution on a sampled trace.
//
// Usage:
//
//	deconv [flags] [trace-file]
//
// The trace is read as one float per line from the file, or from standard
// input when no file is given. With -simulate N a synthetic trace is
// generated instead.
//
// Examples:
//
//	deconv -g 0.95 trace.txt
//	deconv -g 0.95 -sn 0.2 -baseline trace.txt
//	deconv -g1 1.3 -g2 -0.4 trace.txt
//	deconv -g 0.95 -sn 0.2 -simulate 5000
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-deconv/deconv"
)

func main() {
	g := flag.Float64("g", 0.95, "AR(1) decay coefficient")
	g1 := flag.Float64("g1", 0, "AR(2) first coefficient (enables AR(2) mode together with -g2)")
	g2 := flag.Float64("g2", 0, "AR(2) second coefficient")
	sn := flag.Float64("sn", 0, "noise standard deviation; > 0 selects the noise-constrained solver")
	lambda := flag.Float64("lambda", 0, "sparsity penalty for the unconstrained solvers")
	smin := flag.Float64("smin", 0, "minimum accepted impulse size")
	baseline := flag.Bool("baseline", false, "jointly estimate a constant baseline (constrained AR(1) only)")
	decay := flag.Int("decay", 0, "number of events used to refine the decay coefficient (constrained AR(1) only)")
	decimate := flag.Int("decimate", 1, "decimation factor for the warm start (constrained AR(1) only)")
	simulate := flag.Int("simulate", 0, "generate a synthetic trace of this many samples instead of reading one")
	spikes := flag.Bool("spikes", false, "print the deconvolved impulse train to standard output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: deconv [flags] [trace-file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs sparse nonnegative deconvolution on a sampled trace.\n")
		fmt.Fprintf(os.Stderr, "Without a file the trace is read from standard input.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  deconv -g 0.95 trace.txt\n")
		fmt.Fprintf(os.Stderr, "  deconv -g 0.95 -sn 0.2 -baseline trace.txt\n")
		fmt.Fprintf(os.Stderr, "  deconv -g1 1.3 -g2 -0.4 trace.txt\n")
	}
	flag.Parse()

	ar2 := *g2 != 0

	y, err := loadTrace(flag.Arg(0), *simulate, ar2, *g, *g1, *g2, *sn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		c, s   []float64
		report summary
	)

	switch {
	case ar2 && *sn > 0:
		opts := deconv.DefaultConstrainedAR2Options()
		res := deconv.ConstrainedAR2(y, *g1, *g2, *sn, opts)
		c, s = res.C, res.S
		report = summary{lambda: res.Lambda, iterations: res.Iterations, converged: res.Converged, constrained: true}

	case ar2:
		opts := deconv.DefaultAR2Options()
		opts.Lambda = *lambda
		opts.SMin = *smin
		c, s = deconv.AR2(y, *g1, *g2, opts)
		report = summary{lambda: *lambda}

	case *sn > 0:
		opts := deconv.DefaultConstrainedAR1Options()
		opts.OptimizeBaseline = *baseline
		opts.OptimizeDecay = *decay
		opts.Decimate = *decimate
		if *baseline {
			opts.MaxIter = 10
		}

		res := deconv.ConstrainedAR1(y, *g, *sn, opts)
		c, s = res.C, res.S
		report = summary{
			baseline:    res.Baseline,
			decay:       res.Decay,
			lambda:      res.Lambda,
			iterations:  res.Iterations,
			converged:   res.Converged,
			constrained: true,
		}

	default:
		opts := deconv.DefaultAR1Options()
		opts.Lambda = *lambda
		opts.SMin = *smin
		c, s = deconv.AR1(y, *g, opts)
		report = summary{lambda: *lambda, decay: *g}
	}

	printSummary(os.Stderr, y, c, s, report)

	if *spikes {
		w := bufio.NewWriter(os.Stdout)
		for _, v := range s {
			fmt.Fprintf(w, "%g\n", v)
		}
		w.Flush()
	}
}

type summary struct {
	baseline    float64
	decay       float64
	lambda      float64
	iterations  int
	converged   bool
	constrained bool
}

func printSummary(out io.Writer, y, c, s []float64, report summary) {
	var rss float64
	count := 0
	for i := range y {
		d := y[i] - report.baseline - c[i]
		rss += d * d
		if s[i] > 1e-9 {
			count++
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "samples\t%d\n", len(y))
	fmt.Fprintf(w, "events\t%d\n", count)
	fmt.Fprintf(w, "residual energy\t%.6g\n", rss)
	fmt.Fprintf(w, "penalty\t%.6g\n", report.lambda)
	if report.baseline != 0 {
		fmt.Fprintf(w, "baseline\t%.6g\n", report.baseline)
	}
	if report.decay != 0 {
		fmt.Fprintf(w, "decay\t%.6g\n", report.decay)
	}
	if report.constrained {
		fmt.Fprintf(w, "iterations\t%d\n", report.iterations)
		fmt.Fprintf(w, "converged\t%t\n", report.converged)
	}
	w.Flush()
}

func loadTrace(path string, simulate int, ar2 bool, g, g1, g2, sn float64) ([]float64, error) {
	if simulate > 0 {
		noise := sn
		if noise == 0 {
			noise = 0.1
		}

		sim := deconv.NewSimulator(deconv.WithNoise(noise))
		if ar2 {
			y, _, _ := sim.AR2(simulate, g1, g2)
			return y, nil
		}

		y, _, _ := sim.AR1(simulate, g)
		return y, nil
	}

	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	return readFloats(r)
}

func readFloats(r io.Reader) ([]float64, error) {
	var y []float64

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		y = append(y, v)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(y) == 0 {
		return nil, fmt.Errorf("no samples read")
	}

	return y, nil
}
