// Package telemetry 提供注册表核心的内存指标 (对应 C2 Telemetry Registry)。
//
// 两种指标类型:
//   - Counter: increment(name, delta, tags) — 标量总计 + 按维度分桶的子计数。
//   - Timer: record(name, duration, tags) / start(name, tags) → stop() — 每维度
//     {count, total, min, max, last}。
//
// 维度 key 由 tag 条目按 key 排序后以 "k=v,k=v" 拼接而成；空 tag 集合使用哨兵 "_all"。
// Snapshot() 深拷贝所有状态, 对毫秒字段取整; 拷贝期间持读锁, 写者需等待拷贝完成。
package telemetry

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const allDimension = "_all"

// dimensionKey 将 tag 映射转为确定性的维度字符串。
func dimensionKey(tags map[string]string) string {
	if len(tags) == 0 {
		return allDimension
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}

type counterMetric struct {
	total float64
	dims  map[string]float64
}

type timerStat struct {
	count   int64
	totalMS float64
	minMS   float64
	maxMS   float64
	lastMS  float64
}

func (s *timerStat) record(durationMS float64) {
	if s.count == 0 {
		s.minMS = durationMS
		s.maxMS = durationMS
	} else {
		if durationMS < s.minMS {
			s.minMS = durationMS
		}
		if durationMS > s.maxMS {
			s.maxMS = durationMS
		}
	}
	s.count++
	s.totalMS += durationMS
	s.lastMS = durationMS
}

type timerMetric struct {
	overall timerStat
	dims    map[string]*timerStat
}

// Registry 是线程安全的内存指标登记处。
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*counterMetric
	timers   map[string]*timerMetric
}

// New 创建空的 Registry。
func New() *Registry {
	return &Registry{
		counters: make(map[string]*counterMetric),
		timers:   make(map[string]*timerMetric),
	}
}

// Increment 增加一个计数器。delta 为非有限数 (NaN/Inf) 或零时是 no-op。
func (r *Registry) Increment(name string, delta float64, tags map[string]string) {
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return
	}
	dim := dimensionKey(tags)

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = &counterMetric{dims: make(map[string]float64)}
		r.counters[name] = c
	}
	c.total += delta
	c.dims[dim] += delta
}

// Record 记录一次计时样本。负数时长被钳到 0。
func (r *Registry) Record(name string, durationMS float64, tags map[string]string) {
	if durationMS < 0 {
		durationMS = 0
	}
	dim := dimensionKey(tags)

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[name]
	if !ok {
		t = &timerMetric{dims: make(map[string]*timerStat)}
		r.timers[name] = t
	}
	t.overall.record(durationMS)
	stat, ok := t.dims[dim]
	if !ok {
		stat = &timerStat{}
		t.dims[dim] = stat
	}
	stat.record(durationMS)
}

// Start 开始一次计时，返回 stop 函数；调用 stop 即记录经过的时长。
func (r *Registry) Start(name string, tags map[string]string) (stop func()) {
	begin := time.Now()
	return func() {
		r.Record(name, float64(time.Since(begin).Milliseconds()), tags)
	}
}

// CounterSnapshot 是一个计数器的深拷贝快照。
type CounterSnapshot struct {
	Total      float64            `json:"total"`
	Dimensions map[string]float64 `json:"dimensions"`
}

// TimerStatSnapshot 是单个维度 (或 overall) 的计时统计快照，毫秒字段取整。
type TimerStatSnapshot struct {
	Count   int64 `json:"count"`
	TotalMS int64 `json:"total_ms"`
	MinMS   int64 `json:"min_ms"`
	MaxMS   int64 `json:"max_ms"`
	LastMS  int64 `json:"last_ms"`
}

// TimerSnapshot 是一个计时器 (overall + 各维度) 的快照。
type TimerSnapshot struct {
	Overall    TimerStatSnapshot            `json:"overall"`
	Dimensions map[string]TimerStatSnapshot `json:"dimensions"`
}

// Snapshot 是整个 Registry 的深拷贝快照。
type Snapshot struct {
	Counters map[string]CounterSnapshot `json:"counters"`
	Timers   map[string]TimerSnapshot   `json:"timers"`
}

func snapshotStat(s timerStat) TimerStatSnapshot {
	return TimerStatSnapshot{
		Count:   s.count,
		TotalMS: round(s.totalMS),
		MinMS:   round(s.minMS),
		MaxMS:   round(s.maxMS),
		LastMS:  round(s.lastMS),
	}
}

func round(f float64) int64 {
	if f < 0 {
		return int64(f - 0.5)
	}
	return int64(f + 0.5)
}

// Snapshot 返回一份深拷贝的指标快照。拷贝期间持有读锁，
// 并发的 Increment/Record (以及 Start 返回的 stop) 会等待拷贝完成。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := Snapshot{
		Counters: make(map[string]CounterSnapshot, len(r.counters)),
		Timers:   make(map[string]TimerSnapshot, len(r.timers)),
	}
	for name, c := range r.counters {
		dims := make(map[string]float64, len(c.dims))
		for k, v := range c.dims {
			dims[k] = v
		}
		out.Counters[name] = CounterSnapshot{Total: c.total, Dimensions: dims}
	}
	for name, t := range r.timers {
		dims := make(map[string]TimerStatSnapshot, len(t.dims))
		for k, v := range t.dims {
			dims[k] = snapshotStat(*v)
		}
		out.Timers[name] = TimerSnapshot{Overall: snapshotStat(t.overall), Dimensions: dims}
	}
	return out
}
