package engine

import "sync/atomic"

// serials numbers the transactions of one factory. Numbers start at 1 and
// show up as "tx" in log lines.
type serials struct {
	last atomic.Int64
}

func (s *serials) next() int64 {
	return s.last.Add(1)
}

// issued reports how many numbers were handed out.
func (s *serials) issued() int64 {
	return s.last.Load()
}
