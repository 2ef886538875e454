package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

type Stage int

const (
	StageParse Stage = iota
	StageSelect
	StageDecode
	StageComposite
	StageEncode
	stageCount
)

func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageSelect:
		return "select"
	case StageDecode:
		return "decode"
	case StageComposite:
		return "composite"
	case StageEncode:
		return "encode"
	default:
		return "unknown"
	}
}

type stageTimes struct {
	counter uint8
	samples [AVG_COUNT]time.Duration
	filled  uint8
}

// Metrics keeps rolling averages of stage durations over the last AVG_COUNT
// extractions along with success and failure counters.
type Metrics struct {
	mu        sync.Mutex
	stages    [stageCount]stageTimes
	succeeded uint64
	failed    uint64
}

type MetricsSnapshot struct {
	Succeeded uint64
	Failed    uint64
	// Average duration per stage name.
	Averages map[string]time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Observe(stage Stage, d time.Duration) {
	if stage < 0 || stage >= stageCount {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &m.stages[stage]
	st.samples[st.counter] = d
	st.counter++
	st.counter %= AVG_COUNT
	if st.filled < AVG_COUNT {
		st.filled++
	}
}

func (m *Metrics) Done(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
		return
	}
	m.succeeded++
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Succeeded: m.succeeded,
		Failed:    m.failed,
		Averages:  make(map[string]time.Duration, stageCount),
	}
	for i := Stage(0); i < stageCount; i++ {
		st := m.stages[i]
		if st.filled == 0 {
			continue
		}
		var sum time.Duration
		for j := uint8(0); j < st.filled; j++ {
			sum += st.samples[j]
		}
		snap.Averages[i.String()] = sum / time.Duration(st.filled)
	}
	return snap
}
