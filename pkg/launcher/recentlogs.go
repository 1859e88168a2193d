package launcher

import "sync"

// recentLogsSize is how many output lines a launch keeps for error reports.
const recentLogsSize = 100

// RecentLogs keeps the last N output lines of a browser process.
type RecentLogs struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRecentLogs creates a buffer holding up to capacity lines.
func NewRecentLogs(capacity int) *RecentLogs {
	if capacity <= 0 {
		capacity = recentLogsSize
	}
	return &RecentLogs{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest once full.
func (r *RecentLogs) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (r *RecentLogs) Lines() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
