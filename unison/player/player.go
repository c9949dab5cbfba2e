// Package player implements the playback control loop: it drives a PCM
// device so that sample 0 of the source hits the DAC at a requested
// wall-clock instant and keeps the emitted stream phase-locked to the wall
// clock afterwards, correcting for the drift of the device's sample clock.
//
// The loop is a single goroutine. Per iteration it samples the device
// clock, refines its estimate of the true sample duration, predicts when
// the next enqueued sample will play, and closes the loop by seeking the
// source by whole frames and fractionally shifting the outgoing block with
// a bandlimited filter. Integer corrections go to the seek, the fractional
// residual goes to the filter, never the other way around.
package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/unisonwave/go-unison/unison/device"
	"github.com/unisonwave/go-unison/unison/indicator"
	"github.com/unisonwave/go-unison/unison/resample"
)

const (
	// jumpMax bounds the frames a single iteration may seek. Transient
	// regression outputs right after device start would otherwise cause
	// audible skips.
	jumpMax = 100

	// spinCap bounds the status samples accepted per iteration so a
	// device that never dips below the fill threshold cannot stall the
	// loop.
	spinCap = 64

	logEvery = 500 // iterations between progress logs

	// maxPredictions bounds the prediction FIFO against a device whose
	// observations never line up with the enqueue counts.
	maxPredictions = 4096
)

// Source supplies interleaved int16 frames and supports absolute frame
// seeks. wave.Reader satisfies it.
type Source interface {
	Spec() (rate, channels int)
	Len() int64
	Pos() int64
	Seek(frame int64) error
	ReadFrames(dst []int16) (int, error)
}

// Config carries the loop parameters. Zero values select the defaults.
type Config struct {
	StartAt       int64 // ns since the Unix epoch at which source frame 0 plays
	DesyncAvg     int   // window of the drift regression, default 1000
	EstimationAvg int   // window of the duration/error estimators, default 1000
	Quality       int   // half-width K of the sinc filter, default 2
	PeriodFrames  int   // device period, default 1024
	FillThreshold int   // spin exit level, default 3/4 period

	NoCorrection bool // pre-roll only, no seeks and no filtering
	NoSpinning   bool // single status probe with sleeps instead of spinning
	NoEstimation bool // freeze the sample duration at nominal 1/fs

	// Stop is an optional external termination flag. When nil, Run
	// installs the interrupt handler and polls that instead.
	Stop *atomic.Bool
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	SamplesPushed int64
	Correction    float64
	Desync        float64
	Underruns     int
}

type prediction struct {
	samples int64   // samplesPushed when the prediction was made
	at      float64 // predicted play time of that sample, ns
}

// Player owns the device and the source for the duration of the run.
// Not safe for concurrent use; the only state shared with another
// goroutine is the termination flag.
type Player struct {
	dev device.Device
	src Source
	cfg Config
	log *slog.Logger

	rate       int
	channels   int
	nominalDur float64 // ns per frame at the nominal rate
	realDur    float64 // current estimate of the true ns per frame
	startAt    float64

	desync       *indicator.LinearRegression
	actDesyncAvg *indicator.Average
	durMedian    *indicator.Median
	estErrVar    *indicator.Variance

	nsts          []prediction
	samplesPushed int64
	lastPushed    int64
	correction    float64
	curDesync     float64
	underruns     int
	iterations    int64
	primed        bool // a filtered read has happened; rewind its overlap

	haveLast  bool
	lastStamp int64
	lastDelay int64

	stamps   []int64
	delays   []int64
	readBuf  []int16
	blockBuf []int16
}

// New validates the configuration, reads the source spec and configures
// the device for it.
func New(dev device.Device, src Source, cfg Config, log *slog.Logger) (*Player, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.DesyncAvg == 0 {
		cfg.DesyncAvg = 1000
	}
	if cfg.EstimationAvg == 0 {
		cfg.EstimationAvg = 1000
	}
	if cfg.Quality == 0 {
		cfg.Quality = 2
	}
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = 1024
	}
	if cfg.FillThreshold == 0 {
		cfg.FillThreshold = cfg.PeriodFrames * 3 / 4
	}
	if cfg.Quality < 1 {
		return nil, fmt.Errorf("player: quality must be at least 1, got %d", cfg.Quality)
	}
	if cfg.PeriodFrames <= 2*cfg.Quality+1 {
		return nil, fmt.Errorf("player: period %d too small for quality %d", cfg.PeriodFrames, cfg.Quality)
	}

	desync, err := indicator.NewLinearRegression(cfg.DesyncAvg)
	if err != nil {
		return nil, fmt.Errorf("player: desync window: %w", err)
	}
	actDesyncAvg, err := indicator.NewAverage(cfg.DesyncAvg)
	if err != nil {
		return nil, fmt.Errorf("player: desync window: %w", err)
	}
	durMedian, err := indicator.NewMedian(cfg.EstimationAvg)
	if err != nil {
		return nil, fmt.Errorf("player: estimation window: %w", err)
	}
	estErrVar, err := indicator.NewVariance(cfg.EstimationAvg)
	if err != nil {
		return nil, fmt.Errorf("player: estimation window: %w", err)
	}

	rate, channels := src.Spec()
	p := &Player{
		dev:          dev,
		src:          src,
		cfg:          cfg,
		log:          log,
		rate:         rate,
		channels:     channels,
		nominalDur:   1e9 / float64(rate),
		realDur:      1e9 / float64(rate),
		startAt:      float64(cfg.StartAt),
		desync:       desync,
		actDesyncAvg: actDesyncAvg,
		durMedian:    durMedian,
		estErrVar:    estErrVar,
		stamps:       make([]int64, 0, spinCap),
		delays:       make([]int64, 0, spinCap),
		readBuf:      make([]int16, (cfg.PeriodFrames+2*cfg.Quality+1)*channels),
		blockBuf:     make([]int16, cfg.PeriodFrames*channels),
	}
	if err := dev.Configure(device.Config{
		Channels:       channels,
		Rate:           rate,
		PeriodFrames:   cfg.PeriodFrames,
		StartThreshold: cfg.PeriodFrames,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes the loop until the source is exhausted, the termination
// flag fires, or the device fails with something other than an underrun.
// The device is drained before returning from a clean exit.
func (p *Player) Run() error {
	stop := p.cfg.Stop
	if stop == nil {
		stop = notifyStop()
	}
	p.log.Info("playback starting",
		"rate", p.rate,
		"channels", p.channels,
		"frames", p.src.Len(),
		"start_at", p.cfg.StartAt)

	for {
		if stop.Load() {
			p.log.Info("termination requested")
			break
		}
		p.iterations++
		bd := newBreakdown()

		state, err := p.collectStatus(bd)
		if err != nil {
			return err
		}
		p.updatePredictionError(bd)
		p.updateDuration(state, bd)
		nst := p.predictNextSampleTime(bd)

		zeros := p.preroll(nst)
		bd.mark("preroll")

		rho := 0.0
		if !p.cfg.NoCorrection && zeros == 0 {
			rho = p.driftControl(nst)
		}
		bd.mark("drift")

		block, done := p.fillBlock(zeros, rho)
		bd.mark("read")

		if len(block) > 0 {
			if err := p.writeBlock(block, bd); err != nil {
				return err
			}
		}
		if done {
			p.log.Info("input exhausted")
			break
		}
		if p.iterations%logEvery == 0 {
			p.logProgress()
		}
	}

	if err := p.dev.Drain(); err != nil {
		return err
	}
	p.log.Info("playback finished",
		"samples", p.samplesPushed,
		"underruns", p.underruns,
		"correction", p.correction)
	return nil
}

// Stats reports the loop counters. Only meaningful once Run has returned.
func (p *Player) Stats() Stats {
	return Stats{
		SamplesPushed: p.samplesPushed,
		Correction:    p.correction,
		Desync:        p.curDesync,
		Underruns:     p.underruns,
	}
}

// collectStatus samples the device clock until the queue drops below the
// fill threshold or the device leaves the running state. Distinct
// timestamps accumulate so the duration estimator gets several
// observations per period.
func (p *Player) collectStatus(bd *breakdown) (device.State, error) {
	p.stamps = p.stamps[:0]
	p.delays = p.delays[:0]
	var state device.State
	for {
		st, err := p.dev.Status()
		if err != nil {
			return 0, err
		}
		state = st.State
		if p.cfg.NoSpinning {
			// Single-probe mode keeps the latest observation only.
			p.stamps = append(p.stamps[:0], st.Stamp)
			p.delays = append(p.delays[:0], st.Delay)
		} else if n := len(p.stamps); n == 0 || p.stamps[n-1] != st.Stamp {
			p.stamps = append(p.stamps, st.Stamp)
			p.delays = append(p.delays, st.Delay)
		}
		if st.State != device.StateRunning || st.Delay < int64(p.cfg.FillThreshold) {
			break
		}
		if len(p.stamps) >= spinCap {
			break
		}
		if p.cfg.NoSpinning {
			p.sleepHalfSample()
		}
	}
	bd.mark("status")
	return state, nil
}

// updatePredictionError matches this iteration's observations against the
// predictions queued when the corresponding samples were enqueued, and
// feeds the signed error into the estimator.
func (p *Player) updatePredictionError(bd *breakdown) {
	for i := range p.stamps {
		target := p.samplesPushed - p.delays[i]
		for len(p.nsts) > 0 && p.nsts[0].samples < target {
			p.nsts = p.nsts[1:]
		}
		if len(p.nsts) > 0 && p.nsts[0].samples == target {
			p.estErrVar.Push(float64(p.stamps[i]) - p.nsts[0].at)
			p.nsts = p.nsts[1:]
		}
	}
	bd.mark("error")
}

// updateDuration derives per-frame duration observations from adjacent
// status pairs, anchored with the last status of the previous iteration,
// and refreshes the running median.
func (p *Player) updateDuration(state device.State, bd *breakdown) {
	defer bd.mark("estimate")
	if p.cfg.NoEstimation || state != device.StateRunning {
		return
	}

	var sum float64
	var n int
	var prevStamp, prevDelay int64
	have := false
	if p.haveLast {
		// Delay from last iteration, adjusted for the frames written
		// since it was observed.
		prevStamp, prevDelay = p.lastStamp, p.lastDelay+p.lastPushed
		have = true
	}
	for i := range p.stamps {
		if have {
			den := float64(prevDelay - p.delays[i])
			dt := float64(p.stamps[i] - prevStamp)
			if den > 0 && dt > 0 {
				sum += dt / den
				n++
			}
		}
		prevStamp, prevDelay = p.stamps[i], p.delays[i]
		have = true
	}
	if n == 0 {
		return
	}
	p.durMedian.Push(sum / float64(n))
	if v, ok := p.durMedian.Value(); ok {
		if v > 0 {
			p.realDur = v
		} else {
			p.log.Warn("non-positive sample duration estimate, keeping previous",
				"estimate_ns", v)
		}
	}
}

// predictNextSampleTime estimates when the next enqueued sample will hit
// the DAC and queues the prediction for later error measurement.
func (p *Player) predictNextSampleTime(bd *breakdown) float64 {
	var sum float64
	for i := range p.stamps {
		sum += float64(p.stamps[i]) + float64(p.delays[i])*p.realDur
	}
	nst := sum / float64(len(p.stamps))
	if len(p.nsts) >= maxPredictions {
		p.nsts = p.nsts[1:]
	}
	p.nsts = append(p.nsts, prediction{samples: p.samplesPushed, at: nst})

	n := len(p.stamps) - 1
	p.lastStamp, p.lastDelay = p.stamps[n], p.delays[n]
	p.haveLast = true
	bd.mark("predict")
	return nst
}

// preroll counts the zero frames needed so that the first real frame lands
// on the start stamp, capped at one period.
func (p *Player) preroll(nst float64) int {
	z := 0
	for p.startAt > nst+float64(z)*p.realDur && z < p.cfg.PeriodFrames {
		z++
	}
	return z
}

// driftControl closes the loop: it measures the instantaneous drift
// between the schedule and the file cursor, regresses it over time,
// realises the integer part by seeking and returns the fractional residual
// for the filter.
func (p *Player) driftControl(nst float64) float64 {
	k := p.cfg.Quality
	nextSample := (nst - p.startAt) / p.nominalDur

	// The frame the next block will emit first: the cursor, rewound by
	// the previous block's filter overlap once one has been read.
	nextRead := float64(p.src.Pos()) + float64(k)
	if p.primed {
		nextRead = float64(p.src.Pos()) - float64(k+1)
	}

	delta := nextSample - nextRead
	p.actDesyncAvg.Push(delta)
	p.desync.Push(nst, p.correction+delta)
	cur := p.desync.Eval(nst)
	p.curDesync = cur

	jump := math.Floor(cur - p.correction)
	if jump > jumpMax {
		jump = jumpMax
	} else if jump < -jumpMax {
		jump = -jumpMax
	}

	baseline := nextRead - float64(k)
	p.src.Seek(int64(math.Round(baseline + jump))) // saturates at the file bounds
	p.correction += float64(p.src.Pos()) - baseline

	rho := cur - p.correction
	if rho >= 1 {
		rho = 0.999
	} else if rho <= -1 {
		rho = -0.999
	}
	return rho
}

// fillBlock assembles one period: pre-roll zeros followed by source
// content, bandlimit-shifted by rho unless correction is off. done
// reports that the source is exhausted.
func (p *Player) fillBlock(zeros int, rho float64) (block []int16, done bool) {
	ch := p.channels
	k := p.cfg.Quality
	content := p.cfg.PeriodFrames - zeros

	block = p.blockBuf[:zeros*ch]
	for i := range block {
		block[i] = 0
	}
	if content <= 0 {
		return block, false
	}

	if p.cfg.NoCorrection {
		buf := p.readBuf[:content*ch]
		n, err := p.src.ReadFrames(buf)
		if err == io.EOF {
			return block, true
		}
		block = append(block, buf[:n*ch]...)
		return block, n < content
	}

	if zeros > 0 && p.primed {
		// Drift control was skipped this iteration; the previous block's
		// filter overlap still has to be rewound before reading on.
		p.src.Seek(p.src.Pos() - int64(2*k+1))
	}
	need := content + 2*k + 1
	buf := p.readBuf[:need*ch]
	n, err := p.src.ReadFrames(buf)
	if err == io.EOF {
		return block, true
	}
	p.primed = true
	out := resample.Shift(buf[:n*ch], rho, k, ch)
	block = append(block, out...)
	return block, n < need
}

// writeBlock enqueues the block, recovering in place from underruns: the
// device is prepared again and the same block retried so no source frames
// are lost. Stale predictions are dropped since the device queue was
// reset.
func (p *Player) writeBlock(block []int16, bd *breakdown) error {
	for attempt := 0; ; attempt++ {
		n, err := p.dev.Write(block)
		if err == nil {
			p.lastPushed = int64(n)
			p.samplesPushed += int64(n)
			bd.mark("write")
			return nil
		}
		if !errors.Is(err, device.ErrUnderrun) {
			return err
		}
		if attempt >= 3 {
			return fmt.Errorf("player: repeated underrun: %w", err)
		}
		p.underruns++
		p.lastPushed = 0
		p.nsts = p.nsts[:0]
		p.haveLast = false
		bd.mark("write")
		bd.log(p.log)
		p.log.Warn("underrun, recovering", "underruns", p.underruns)
		if err := p.dev.Prepare(); err != nil {
			return err
		}
	}
}

func (p *Player) logProgress() {
	errVar, _ := p.estErrVar.Value()
	driftAvg, _ := p.actDesyncAvg.Value()
	p.log.Debug("loop state",
		"samples", p.samplesPushed,
		"correction", p.correction,
		"desync", p.curDesync,
		"drift_avg", driftAvg,
		"pred_err_var", errVar,
		"sample_dur_ns", p.realDur)
}

// sleepHalfSample paces single-probe status reads. Waits under 2ms
// busy-wait for accuracy, anything longer sleeps.
func (p *Player) sleepHalfSample() {
	d := time.Duration(p.nominalDur / 2)
	if d < 2*time.Millisecond {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
		}
		return
	}
	time.Sleep(d)
}
