package signals

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// #region pipeline
// Pipeline runs detectors in descending priority over a shared Context.
type Pipeline struct {
	detectors []Detector
	config    PipelineConfig
	now       func() time.Time
}

// NewPipeline creates a pipeline. Detectors are ordered by priority, highest first;
// equal priorities keep their registration order.
func NewPipeline(config PipelineConfig, detectors ...Detector) *Pipeline {
	p := &Pipeline{config: config, now: time.Now}
	for _, d := range detectors {
		p.Add(d)
	}
	return p
}

// Add registers a detector and re-sorts by priority.
func (p *Pipeline) Add(d Detector) {
	p.detectors = append(p.detectors, d)
	sort.SliceStable(p.detectors, func(i, j int) bool {
		return p.detectors[i].Priority() > p.detectors[j].Priority()
	})
}

// Has reports whether a detector with the given name is registered.
func (p *Pipeline) Has(name string) bool {
	for _, d := range p.detectors {
		if d.Name() == name {
			return true
		}
	}
	return false
}

// Config returns the active configuration.
func (p *Pipeline) Config() PipelineConfig { return p.config }

// #endregion pipeline

// #region run
// Run executes the chain against dc. Signals from each detector are appended in
// detector order. The budget is checked before each detector; an emitted signal
// above EarlyExitConfidence ends the pass when early termination is on.
func (p *Pipeline) Run(dc *Context) Result {
	start := p.now()
	res := Result{Context: dc}

	for _, d := range p.detectors {
		if !d.CanProcess(dc) {
			res.Skipped = append(res.Skipped, d.Name())
			res.Trace = append(res.Trace, fmt.Sprintf("%s: skipped (preconditions not met)", d.Name()))
			continue
		}

		if elapsed := p.now().Sub(start); elapsed > p.config.MaxProcessingTime {
			res.BudgetExceeded = true
			res.Trace = append(res.Trace, fmt.Sprintf("stopped: time budget %dus exceeded after %dus",
				p.config.MaxProcessingTime.Microseconds(), elapsed.Microseconds()))
			break
		}

		detStart := p.now()
		det := d.Detect(dc)
		took := p.now().Sub(detStart)

		res.Ran = append(res.Ran, d.Name())
		res.Trace = append(res.Trace, fmt.Sprintf("%s: %d signals in %dus", d.Name(), len(det.Signals), took.Microseconds()))

		for _, s := range det.Signals {
			dc.AddSignal(s)
		}
		// A confident miss also has high Detection.Confidence; only emitted
		// signals may end the pass.
		found := maxConfidence(det.Signals)
		res.Confidence = max(res.Confidence, found)

		if p.config.EarlyTermination && found > p.config.EarlyExitConfidence {
			res.EarlyTerminated = true
			res.Trace = append(res.Trace, fmt.Sprintf("early termination: %s confidence %.2f", d.Name(), found))
			break
		}
	}

	res.Elapsed = p.now().Sub(start)
	return res
}

// Summary renders the trace as a single line.
func (r Result) Summary() string {
	return fmt.Sprintf("ran %d detectors, %d signals: %s", len(r.Ran), len(r.Context.Signals), strings.Join(r.Trace, "; "))
}

// #endregion run

// #region stats
// Stats reports the registered detectors in execution order.
func (p *Pipeline) Stats() Stats {
	names := make([]string, len(p.detectors))
	for i, d := range p.detectors {
		names[i] = d.Name()
	}
	return Stats{
		TotalDetectors:   len(p.detectors),
		DetectorNames:    names,
		EarlyTermination: p.config.EarlyTermination,
		MaxProcessingUs:  p.config.MaxProcessingTime.Microseconds(),
	}
}

// #endregion stats
