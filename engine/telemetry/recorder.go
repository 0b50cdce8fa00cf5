// Package telemetry records per-frame lighting statistics to CSV.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"
)

// FrameStats is one CSV row: the lighting setup outcome of one view in one frame.
type FrameStats struct {
	Frame             uint64  `csv:"frame"`
	View              int     `csv:"view"`
	Lights            int     `csv:"lights"`
	OccupiedCells     int     `csv:"occupied_cells"`
	IndexCount        int     `csv:"index_count"`
	MeanOccupancy     float64 `csv:"mean_occupancy"`
	StdDevOccupancy   float64 `csv:"stddev_occupancy"`
	MaxOccupancy      int     `csv:"max_occupancy"`
	CascadesRefreshed int     `csv:"cascades_refreshed"`
	SpotsPacked       int     `csv:"spots_packed"`
	SpotsDropped      int     `csv:"spots_dropped"`
	AtlasUtilization  float64 `csv:"atlas_utilization"`
	SetupMicros       int64   `csv:"setup_us"`
	Failed            bool    `csv:"failed"`
}

// Summary aggregates the rows kept in a Recorder's window.
type Summary struct {
	Frames             int
	MeanSetupMicros    float64
	StdDevSetupMicros  float64
	P95SetupMicros     float64
	MeanCascadeRefresh float64
	MeanOccupancy      float64
	SpotsDropped       int
	Failures           int
}

// Recorder buffers FrameStats rows and writes them as CSV every flushEvery
// rows. It keeps the last window rows in memory for Summary.
// Safe for concurrent use.
type Recorder struct {
	mu *sync.Mutex

	out           io.Writer
	closer        io.Closer
	headerWritten bool

	pending    []FrameStats
	flushEvery int

	window []FrameStats
	size   int
	next   int
}

// RecorderOption is a functional option applied by NewRecorder.
type RecorderOption func(*Recorder)

// WithFlushEvery sets how many rows are buffered before they are written.
//
// Parameters:
//   - n: rows per flush, minimum 1
//
// Returns:
//   - RecorderOption: option function to apply
func WithFlushEvery(n int) RecorderOption {
	return func(r *Recorder) {
		r.flushEvery = max(n, 1)
	}
}

// WithWindow sets how many recent rows Summary covers.
//
// Parameters:
//   - n: window length, minimum 1
//
// Returns:
//   - RecorderOption: option function to apply
func WithWindow(n int) RecorderOption {
	return func(r *Recorder) {
		r.size = max(n, 1)
	}
}

// NewRecorder creates a Recorder writing to out. A nil out keeps rows in the
// summary window only.
//
// Parameters:
//   - out: CSV destination, may be nil
//   - options: variadic list of RecorderOption functions
//
// Returns:
//   - *Recorder: the recorder
func NewRecorder(out io.Writer, options ...RecorderOption) *Recorder {
	r := &Recorder{
		mu:         &sync.Mutex{},
		out:        out,
		flushEvery: 60,
		size:       600,
	}
	for _, opt := range options {
		opt(r)
	}
	r.window = make([]FrameStats, 0, r.size)
	return r
}

// CreateRecorder creates (or truncates) the CSV file at path and returns a
// Recorder that owns it. Close flushes and closes the file.
//
// Parameters:
//   - path: the CSV file
//   - options: variadic list of RecorderOption functions
//
// Returns:
//   - *Recorder: the recorder
//   - error: file creation errors
func CreateRecorder(path string, options ...RecorderOption) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	r := NewRecorder(f, options...)
	r.closer = f
	return r, nil
}

// Record appends one row, flushing when the buffer is full.
//
// Parameters:
//   - s: the row
//
// Returns:
//   - error: CSV write errors
func (r *Recorder) Record(s FrameStats) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.window) < r.size {
		r.window = append(r.window, s)
	} else {
		r.window[r.next] = s
	}
	r.next = (r.next + 1) % r.size

	if r.out == nil {
		return nil
	}
	r.pending = append(r.pending, s)
	if len(r.pending) < r.flushEvery {
		return nil
	}
	return r.flush()
}

// Flush writes every buffered row.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *Recorder) flush() error {
	if r.out == nil || len(r.pending) == 0 {
		return nil
	}
	if !r.headerWritten {
		if err := gocsv.Marshal(r.pending, r.out); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		r.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(r.pending, r.out); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
	}
	r.pending = r.pending[:0]
	return nil
}

// Close flushes buffered rows and closes the file opened by CreateRecorder.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	err := r.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}

// Summary aggregates the rows in the window.
//
// Returns:
//   - Summary: the aggregate; zero if nothing was recorded
func (r *Recorder) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum Summary
	sum.Frames = len(r.window)
	if sum.Frames == 0 {
		return sum
	}

	setup := make([]float64, len(r.window))
	refresh := make([]float64, len(r.window))
	occupancy := make([]float64, len(r.window))
	for i, s := range r.window {
		setup[i] = float64(s.SetupMicros)
		refresh[i] = float64(s.CascadesRefreshed)
		occupancy[i] = s.MeanOccupancy
		sum.SpotsDropped += s.SpotsDropped
		if s.Failed {
			sum.Failures++
		}
	}

	sum.MeanSetupMicros, sum.StdDevSetupMicros = stat.MeanStdDev(setup, nil)
	if sum.Frames == 1 {
		sum.StdDevSetupMicros = 0
	}
	slices.Sort(setup)
	sum.P95SetupMicros = stat.Quantile(0.95, stat.Empirical, setup, nil)
	sum.MeanCascadeRefresh = stat.Mean(refresh, nil)
	sum.MeanOccupancy = stat.Mean(occupancy, nil)
	return sum
}
