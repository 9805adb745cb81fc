package simulator

import "container/heap"

// timerQueue is a min-heap of pending timers ordered by
// deadline, with ties broken by a random key assigned at
// scheduling time.
type timerQueue []*Timer

func (t timerQueue) Len() int {
	return len(t)
}

func (t timerQueue) Less(i, j int) bool {
	if t[i].time != t[j].time {
		return t[i].time < t[j].time
	}
	return t[i].tiebreak < t[j].tiebreak
}

func (t timerQueue) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
	t[i].index = i
	t[j].index = j
}

func (t *timerQueue) Push(x interface{}) {
	timer := x.(*Timer)
	timer.index = len(*t)
	*t = append(*t, timer)
}

func (t *timerQueue) Pop() interface{} {
	old := *t
	timer := old[len(old)-1]
	old[len(old)-1] = nil
	timer.index = -1
	*t = old[:len(old)-1]
	return timer
}

// remove deletes a timer if it is still queued.
func (t *timerQueue) remove(timer *Timer) bool {
	if timer.index < 0 || timer.index >= len(*t) || (*t)[timer.index] != timer {
		return false
	}
	heap.Remove(t, timer.index)
	return true
}
