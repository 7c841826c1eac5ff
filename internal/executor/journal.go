package executor

import (
	"sync"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

const defaultJournalCapacity = 1000

// Journal keeps the most recent trade records in memory for status
// reporting. Older records are overwritten once capacity is reached.
type Journal struct {
	mu    sync.Mutex
	buf   []domain.TradeRecord
	next  int
	full  bool
	total int
}

// NewJournal keeps the last capacity trades.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = defaultJournalCapacity
	}
	return &Journal{buf: make([]domain.TradeRecord, capacity)}
}

// Add records rec, evicting the oldest entry when full.
func (j *Journal) Add(rec domain.TradeRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf[j.next] = rec
	j.next = (j.next + 1) % len(j.buf)
	if j.next == 0 {
		j.full = true
	}
	j.total++
}

// Recent returns up to n records, oldest first. n <= 0 returns everything
// retained.
func (j *Journal) Recent(n int) []domain.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := j.next
	start := 0
	if j.full {
		size = len(j.buf)
		start = j.next
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]domain.TradeRecord, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, j.buf[(start+i)%len(j.buf)])
	}
	return out
}

// Total counts every record ever added, including overwritten ones.
func (j *Journal) Total() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}
