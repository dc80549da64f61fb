package camgate

import "github.com/abihf/camgate/protocol"

// Summarize reduces a batch to what the daemon reports to clients.
func Summarize(attempt string, b *Batch) *protocol.CaptureSummary {
	point := func(s FrameSample) protocol.Sample {
		return protocol.Sample{Score: s.Quality(), Timestamp: s.Timestamp}
	}
	return &protocol.CaptureSummary{
		Attempt:         attempt,
		SampleCount:     b.SampleCount,
		QualityVariance: b.QualityVariance,
		First:           point(b.First),
		Best:            point(b.BestMiddle),
		Last:            point(b.Last),
	}
}
