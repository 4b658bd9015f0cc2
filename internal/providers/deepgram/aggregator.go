package deepgram

import (
	"strings"
	"sync"
)

type segmentKind int

const (
	segmentPartial segmentKind = iota
	segmentFinal
)

type segment struct {
	kind segmentKind
	text string
}

type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(seg segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(seg.text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if seg.kind == segmentFinal {
		a.finals = append(a.finals, text)
	}
}

// Raw joins final segments, falling back to the latest partial when it
// extends beyond what was finalized.
func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}
	if a.lastSpoken == "" || strings.HasSuffix(joined, a.lastSpoken) {
		return joined
	}
	if len(a.lastSpoken) > len(joined) {
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}
	return joined
}

func collectSegments(stream *listenStream, aggregator *transcriptAggregator, done chan struct{}) {
	defer close(done)
	for seg := range stream.Segments() {
		aggregator.Add(seg)
	}
}
