package world

type StatsBucket struct {
	Productions int `json:"productions"`
	Spends      int `json:"spends"`
	Denied      int `json:"denied"`
	FarmEvents  int `json:"farm_events"`
}

// WorldStats keeps one bucket per simulated day over a rolling window.
type WorldStats struct {
	buckets []StatsBucket
	curIdx  int
	curDay  int
}

func NewWorldStats(windowDays int) *WorldStats {
	if windowDays < 1 {
		windowDays = 1
	}
	return &WorldStats{buckets: make([]StatsBucket, windowDays)}
}

func (s *WorldStats) rotate(day int) {
	if s == nil {
		return
	}
	for day > s.curDay {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curDay++
	}
}

func (s *WorldStats) RecordProduction(day int) {
	if s == nil {
		return
	}
	s.rotate(day)
	s.buckets[s.curIdx].Productions++
}

func (s *WorldStats) RecordSpend(day int, ok bool) {
	if s == nil {
		return
	}
	s.rotate(day)
	if ok {
		s.buckets[s.curIdx].Spends++
	} else {
		s.buckets[s.curIdx].Denied++
	}
}

func (s *WorldStats) RecordFarmEvent(day int, ok bool) {
	if s == nil {
		return
	}
	s.rotate(day)
	if ok {
		s.buckets[s.curIdx].FarmEvents++
	} else {
		s.buckets[s.curIdx].Denied++
	}
}

func (s *WorldStats) WindowDays() int {
	if s == nil {
		return 0
	}
	return len(s.buckets)
}

func (s *WorldStats) Summarize(day int) StatsBucket {
	if s == nil {
		return StatsBucket{}
	}
	s.rotate(day)
	var out StatsBucket
	for _, b := range s.buckets {
		out.Productions += b.Productions
		out.Spends += b.Spends
		out.Denied += b.Denied
		out.FarmEvents += b.FarmEvents
	}
	return out
}
