package runner

import (
	"io"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
)

// Report holds the timing statistics of the launch+fence iterations
type Report struct {
	Backend    string
	Device     string
	Length     int
	Iterations int

	Total  time.Duration
	Mean   time.Duration
	StdDev time.Duration
	Median time.Duration
	Min    time.Duration
	Max    time.Duration

	// BytesMoved counts two vectors read and one written per iteration
	BytesMoved int64
	// Bandwidth in GB/s, zero when nothing was timed
	Bandwidth float64
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Report summarises every iteration run so far. Total, Mean, Min and Max
// cover all iterations; Median and StdDev the retained samples.
func (kr *Runner) Report() Report {
	info := kr.Device.Info()
	r := Report{
		Backend:    info.Backend,
		Device:     info.Name,
		Length:     kr.Length,
		Iterations: kr.launches,
		BytesMoved: 3 * kr.BytesPerVector() * int64(kr.launches),
	}
	if kr.launches == 0 {
		return r
	}

	r.Total = seconds(kr.elapsed)
	r.Mean = seconds(kr.elapsed / float64(kr.launches))
	r.Min = seconds(kr.fastest)
	r.Max = seconds(kr.slowest)
	if kr.elapsed > 0 {
		r.Bandwidth = float64(r.BytesMoved) / kr.elapsed / 1e9
	}

	sorted := make([]float64, len(kr.timings))
	copy(sorted, kr.timings)
	sort.Float64s(sorted)
	if len(sorted) > 1 {
		r.StdDev = seconds(stat.StdDev(sorted, nil))
	}
	r.Median = seconds(stat.Quantile(0.5, stat.Empirical, sorted, nil))
	return r
}

// Print writes the report with grouped digits
func (r Report) Print(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Backend:             %s\n", r.Backend)
	p.Fprintf(w, "Device:              %s\n", r.Device)
	p.Fprintf(w, "Vector length:       %d\n", r.Length)
	p.Fprintf(w, "Iterations:          %d\n", r.Iterations)
	if r.Iterations == 0 {
		p.Fprintf(w, "\n")
		return
	}
	p.Fprintf(w, "Total time:          %v\n", r.Total)
	p.Fprintf(w, "Per iteration:       mean %v, stddev %v, median %v, min %v, max %v\n",
		r.Mean, r.StdDev, r.Median, r.Min, r.Max)
	p.Fprintf(w, "Effective bandwidth: %.3f GB/s (%d bytes)\n", r.Bandwidth, r.BytesMoved)
	p.Fprintf(w, "\n")
}
