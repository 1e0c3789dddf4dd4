package schedule

import "github.com/arknettransit/dutyplan/internal/timespan"

// Summary holds aggregates derived from a block.
type Summary struct {
	BlockID    string           `json:"block_id"`
	StartTime  timespan.Seconds `json:"start_time"`
	EndTime    timespan.Seconds `json:"end_time"`
	Span       timespan.Seconds `json:"span_s"`
	TripCount  int              `json:"trip_count"`
	BreakCount int              `json:"break_count"`

	// TotalLayovers and TotalBreaks are in minutes.
	TotalLayovers int `json:"total_layovers"`
	TotalBreaks   int `json:"total_breaks"`
}

// Summarize computes the block summary from the block's own trips and breaks.
func Summarize(b *Block) Summary {
	s := Summary{
		BlockID:    b.ID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Span:       b.Span().Duration(),
		TripCount:  len(b.Trips),
		BreakCount: len(b.Breaks),
	}
	for _, bt := range b.Trips {
		s.TotalLayovers += bt.LayoverMinutes
	}
	for _, br := range b.Breaks {
		s.TotalBreaks += br.Duration
	}
	return s
}
