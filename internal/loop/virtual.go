package loop

import (
	"sort"
	"time"
)

// Virtual 手动推进时钟的事件循环，用于确定性测试。
// 非并发安全，只能在单个 goroutine 中使用。
type Virtual struct {
	now      time.Time
	queue    []func()
	draining bool
	timers   []*virtualTask
	seq      int
}

// NewVirtual 以 start 为初始时间创建虚拟循环
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now 虚拟当前时间
func (v *Virtual) Now() time.Time {
	return v.now
}

// Post 入队并立即排空队列；嵌套投递会排在当前任务之后
func (v *Virtual) Post(fn func()) {
	v.queue = append(v.queue, fn)
	v.drain()
}

func (v *Virtual) drain() {
	if v.draining {
		return
	}
	v.draining = true
	for len(v.queue) > 0 {
		fn := v.queue[0]
		v.queue = v.queue[1:]
		fn()
	}
	v.draining = false
}

// Every 周期任务
func (v *Virtual) Every(d time.Duration, fn func()) Task {
	return v.add(d, d, fn)
}

// After 一次性任务
func (v *Virtual) After(d time.Duration, fn func()) Task {
	return v.add(d, 0, fn)
}

func (v *Virtual) add(d, period time.Duration, fn func()) Task {
	v.seq++
	t := &virtualTask{
		owner:  v,
		due:    v.now.Add(d),
		period: period,
		fn:     fn,
		seq:    v.seq,
	}
	v.timers = append(v.timers, t)
	return t
}

// Advance 推进时钟，按到期顺序执行所有到期任务
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	for {
		next := v.nextDue(target)
		if next == nil {
			break
		}
		v.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			next.Stop()
		}
		v.Post(next.fn)
	}
	v.now = target
}

// Pending 仍处于活动状态的定时任务数量
func (v *Virtual) Pending() int {
	return len(v.timers)
}

func (v *Virtual) nextDue(limit time.Time) *virtualTask {
	if len(v.timers) == 0 {
		return nil
	}
	sort.SliceStable(v.timers, func(i, j int) bool {
		if v.timers[i].due.Equal(v.timers[j].due) {
			return v.timers[i].seq < v.timers[j].seq
		}
		return v.timers[i].due.Before(v.timers[j].due)
	})
	if first := v.timers[0]; !first.due.After(limit) {
		return first
	}
	return nil
}

func (v *Virtual) remove(t *virtualTask) {
	for i, other := range v.timers {
		if other == t {
			v.timers = append(v.timers[:i], v.timers[i+1:]...)
			return
		}
	}
}

type virtualTask struct {
	owner   *Virtual
	due     time.Time
	period  time.Duration
	fn      func()
	seq     int
	stopped bool
}

func (t *virtualTask) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.owner.remove(t)
}
