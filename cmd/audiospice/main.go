// Command audiospice parses a netlist and runs an operating point or a
// fixed-step transient analysis. Transient traces can be written out as a
// PNG plot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"audiospice/pkg/analysis"
	"audiospice/pkg/circuit"
	"audiospice/pkg/device"
	"audiospice/pkg/netlist"
	"audiospice/pkg/symbol"
	"audiospice/pkg/util"
)

func main() {
	var (
		opOnly   = flag.Bool("op", false, "operating point only")
		tstart   = flag.String("tstart", "0", "transient start time")
		tstop    = flag.String("tstop", "1M", "transient stop time")
		timestep = flag.String("dt", "1U", "transient timestep")
		method   = flag.String("method", "tr", "integration method: be or tr")
		probes   = flag.String("probe", "", "comma-separated probes, e.g. V(out),I(V1); default all node voltages")
		plotFile = flag.String("plot", "", "write transient traces to this PNG file")
		libFile  = flag.String("lib", "", "symbol library JSON for pinout validation")
		maxIter  = flag.Int("maxiter", 0, "Newton iteration limit")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] netlist\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	log.SetFlags(0)
	log.SetPrefix("audiospice: ")

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	nl, err := netlist.Parse(string(data))
	if err != nil {
		log.Fatal(err)
	}

	var lib *symbol.Library
	if *libFile != "" {
		f, err := os.Open(*libFile)
		if err != nil {
			log.Fatal(err)
		}
		lib, err = symbol.Load(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
	}

	ckt, err := circuit.FromNetlist(nl, lib)
	if err != nil {
		log.Fatal(err)
	}

	opts := analysis.Options{MaxIterations: *maxIter}
	switch strings.ToLower(*method) {
	case "be":
		opts.Method = device.BE
	case "tr":
		opts.Method = device.TR
	default:
		log.Fatalf("unknown integration method %q", *method)
	}

	probeList := splitProbes(*probes, ckt)

	if *opOnly {
		runOperatingPoint(ckt, opts, probeList)
		return
	}

	t0 := parseTime(*tstart, "tstart")
	t1 := parseTime(*tstop, "tstop")
	dt := parseTime(*timestep, "dt")

	result, err := analysis.Transient(context.Background(), ckt, opts, t0, t1, dt, probeList)
	if err != nil {
		log.Fatal(err)
	}

	printTable(result, probeList)

	if *plotFile != "" {
		if err := writePlot(result, probeList, *plotFile); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", *plotFile)
	}
}

func parseTime(s, name string) float64 {
	v, err := netlist.ParseValue(s)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return v
}

// splitProbes returns the requested probe list, defaulting to every
// non-hidden node voltage in index order.
func splitProbes(arg string, ckt *circuit.Circuit) []string {
	if arg != "" {
		parts := strings.Split(arg, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}

	var out []string
	for i := 1; i <= ckt.NumNodes(); i++ {
		name := ckt.NodeName(i)
		if strings.Contains(name, ".") {
			continue
		}
		out = append(out, "V("+name+")")
	}
	return out
}

func runOperatingPoint(ckt *circuit.Circuit, opts analysis.Options, probeList []string) {
	res, err := analysis.OperatingPoint(context.Background(), ckt, opts, probeList)
	if err != nil {
		log.Fatal(err)
	}

	keys := make([]string, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		unit := "V"
		if strings.HasPrefix(k, "I(") {
			unit = "A"
		}
		fmt.Printf("%-12s %s\n", k, util.FormatValue(res[k], unit))
	}
}

func printTable(result *analysis.Result, probeList []string) {
	fmt.Printf("%-12s", "time")
	for _, p := range probeList {
		fmt.Printf(" %-12s", p)
	}
	fmt.Println()

	for i, tm := range result.Times {
		fmt.Printf("%-12.6g", tm)
		for _, p := range probeList {
			fmt.Printf(" %-12.6g", result.Signals[p][i])
		}
		fmt.Println()
	}
}

func writePlot(result *analysis.Result, probeList []string, path string) error {
	p := plot.New()
	p.Title.Text = "Transient"
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "value"
	p.Legend.Top = true

	for n, probe := range probeList {
		signal := result.Signals[probe]
		pts := make(plotter.XYs, len(result.Times))
		for i, tm := range result.Times {
			pts[i].X = tm
			pts[i].Y = signal[i]
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(n)
		p.Add(line)
		p.Legend.Add(probe, line)
	}

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
