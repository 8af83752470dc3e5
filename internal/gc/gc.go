// Package gc implements the hybrid collector of spec §4.10: a
// refcount baseline plus an incremental tri-color mark/sweep pass for
// cycles, with a generational nursery and a remembered set for
// cross-generational pointers.
//
// Grounded conceptually on the `Object{Type, Marked, Next}` intrusive
// linked-list header already present in the teacher's
// internal/vmregister/value.go (a mark bit plus a "Next" chain is
// exactly the substrate an explicit mark/sweep collector walks); the
// teacher itself never implements a collector (it relies on Go's own
// GC over boxed `Value`), so the state machine, nursery, and
// remembered set here are new, built per spec §9's explicit redesign
// note ("model as a plain function returning whether the cycle
// completed" rather than a coroutine).
//
// This package defines the Object interface rather than importing
// internal/value, so that internal/value can depend on internal/gc
// (implementing Object) without an import cycle — the collector only
// ever needs to walk headers and outgoing references, never the
// concrete value representation.
package gc

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Color is the tri-color mark state (spec §4.10 "idle, marking,
// sweeping" plus the mark phase's own "white/gray/black").
type Color uint8

const (
	White Color = iota
	Gray
	Black
)

// Generation distinguishes nursery (young) objects from the old
// generation (spec §4.10 "Generational nursery").
type Generation uint8

const (
	Young Generation = iota
	Old
)

// Object is anything the collector can trace: a heap value with a
// mutable Header and a set of outgoing references to other heap
// values. internal/value's heap types implement this.
type Object interface {
	GCHeader() *Header
	GCRefs() []Object
}

// Header is the per-object bookkeeping every heap object embeds.
type Header struct {
	RefCount int32
	Color    Color
	Gen      Generation
	Age      int // minor-cycle survival count, promoted at PromotionAge
	Size     uintptr
	AllocSite string // file:line of the allocating instruction, for leak reports
}

// State is the incremental collector's explicit state machine (spec
// §4.10 "idle, marking, sweeping"; §9 "model as an explicit state
// machine rather than a coroutine").
type State int

const (
	Idle State = iota
	Marking
	Sweeping
)

const (
	defaultMinThreshold = 1 << 20 // 1MiB
	defaultNurserySize  = 4096    // objects
	PromotionAge        = 3
)

// Stats mirrors spec §4.10 "Reporting" verbatim: counters the
// collector exposes for diagnostics, with no effect on correctness.
type Stats struct {
	TotalCollections   int
	BytesAllocated     uint64
	BytesFreed         uint64
	PromotedObjects    int
	WriteBarrierTriggers int
	PeakMemory         uint64
	TotalMarkSweepTime time.Duration
}

// Human renders Stats the way the teacher's internal/reporting package
// favors human-readable byte counts and durations (SPEC_FULL DOMAIN
// STACK: dustin/go-humanize).
func (s Stats) Human() string {
	return "allocated=" + humanize.Bytes(s.BytesAllocated) +
		" freed=" + humanize.Bytes(s.BytesFreed) +
		" peak=" + humanize.Bytes(s.PeakMemory) +
		" mark_sweep_time=" + humanize.RelTime(time.Now().Add(-s.TotalMarkSweepTime), time.Now(), "", "")
}

// leakRecord is kept per live object whose refcount never reached zero
// by process end (spec §4.10 "leak summaries"; SPEC_FULL "GC leak
// summary" supplemented feature).
type leakRecord struct {
	obj       Object
	allocSite string
}

// Collector owns all GC state for one VM. The string pool (spec §5) is
// the only other process-wide mutable state; everything here is
// per-VM, consistent with §5's "Other per-VM state ... is owned
// exclusively by the VM."
type Collector struct {
	mu sync.Mutex

	state State
	gray  []Object

	// liveObjects is every allocated object not yet freed; the sweep
	// phase walks it. Roots are not stored here: the VM passes them to
	// each Step call (frame locals and evaluation-stack entries of
	// heap-handle type).
	liveObjects map[Object]struct{}

	// write barrier buffer: edges recorded while Marking is active
	// (spec §4.10 "Write barriers").
	barrierBuf []edge

	// generational bookkeeping
	nursery        []Object
	nurseryCap     int
	oldGen         []Object
	rememberedSet  map[Object][]Object // old -> young edges

	threshold uint64
	allocated uint64

	stats           Stats
	leaks           map[Object]leakRecord
	markSweepStart  time.Time

	cycleID uuid.UUID
}

type edge struct{ from, to Object }

func NewCollector() *Collector {
	return &Collector{
		state:         Idle,
		liveObjects:   make(map[Object]struct{}),
		nurseryCap:    defaultNurserySize,
		rememberedSet: make(map[Object][]Object),
		threshold:     defaultMinThreshold,
		leaks:         make(map[Object]leakRecord),
	}
}

// Alloc registers a freshly-constructed heap object. New allocations
// always enter the nursery (spec §4.10 "A fixed-size contiguous region
// serves young allocations via bump").
func (c *Collector) Alloc(o Object, size uintptr, allocSite string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := o.GCHeader()
	h.RefCount = 0
	h.Color = White
	h.Gen = Young
	h.Size = size
	h.AllocSite = allocSite
	c.liveObjects[o] = struct{}{}
	c.leaks[o] = leakRecord{obj: o, allocSite: allocSite}
	c.nursery = append(c.nursery, o)
	c.allocated += uint64(size)
	c.stats.BytesAllocated += uint64(size)
	if c.allocated > c.stats.PeakMemory {
		c.stats.PeakMemory = c.allocated
	}
	if len(c.nursery) >= c.nurseryCap {
		c.minorCollect()
	}
}

// Retain increments o's refcount (spec §4.10 "Reference counting is
// the baseline").
func (c *Collector) Retain(o Object) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o.GCHeader().RefCount++
}

// Release decrements o's refcount and frees it immediately at zero
// (spec §4.10 "every release decrements and frees at zero"). Cyclic
// garbage is left for the incremental mark/sweep pass: an object whose
// only referrers are its own cycle partners never has Release called
// on its behalf by those partners going away (they themselves become
// unreachable, not explicitly released), so its refcount stays
// positive until the next sweep frees it as unreached-and-white.
func (c *Collector) Release(o Object) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := o.GCHeader()
	h.RefCount--
	if h.RefCount <= 0 {
		c.free(o)
	}
}

func (c *Collector) free(o Object) {
	if _, ok := c.liveObjects[o]; !ok {
		return
	}
	delete(c.liveObjects, o)
	delete(c.leaks, o)
	h := o.GCHeader()
	c.stats.BytesFreed += uint64(h.Size)
	if c.allocated >= uint64(h.Size) {
		c.allocated -= uint64(h.Size)
	}
	for _, ref := range o.GCRefs() {
		c.Release(ref)
	}
}

// WriteBarrier records a pointer store into a heap object's field
// while marking is active (spec §4.10 "Write barriers"). Outside
// marking, nothing goes into the barrier buffer; an old-to-young store
// is still recorded in the remembered set for minor collections.
func (c *Collector) WriteBarrier(from, to Object) {
	if to == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Marking {
		if from != nil && from.GCHeader().Gen == Old && to.GCHeader().Gen == Young {
			c.rememberedSet[from] = append(c.rememberedSet[from], to)
		}
		return
	}
	c.barrierBuf = append(c.barrierBuf, edge{from: from, to: to})
	c.stats.WriteBarrierTriggers++
}

// Step advances the incremental collector by one work unit of up to
// budget objects, seeding the gray set from roots on first entry to
// Marking (spec §4.10 "A step takes a work budget"). Returns true when
// a full major cycle (marking through sweeping) has completed.
func (c *Collector) Step(budget int, roots []Object) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Idle:
		c.cycleID = uuid.New()
		c.markSweepStart = time.Now()
		for _, r := range roots {
			c.markGray(r)
		}
		c.state = Marking
		return false

	case Marking:
		n := 0
		for n < budget && len(c.gray) > 0 {
			obj := c.gray[len(c.gray)-1]
			c.gray = c.gray[:len(c.gray)-1]
			c.blacken(obj)
			n++
		}
		// drain barrier edges recorded mid-pass before deciding we're done
		for _, e := range c.barrierBuf {
			c.markGray(e.to)
		}
		c.barrierBuf = c.barrierBuf[:0]
		if len(c.gray) == 0 {
			c.state = Sweeping
		}
		return false

	case Sweeping:
		n := 0
		for o := range c.liveObjects {
			if n >= budget {
				return false
			}
			h := o.GCHeader()
			if h.Color == White && h.RefCount <= 0 {
				c.free(o)
			} else {
				h.Color = White // reset for next cycle
			}
			n++
		}
		c.state = Idle
		c.stats.TotalCollections++
		c.stats.TotalMarkSweepTime += time.Since(c.markSweepStart)
		live := c.liveBytes()
		newThreshold := 2 * live
		if newThreshold < defaultMinThreshold {
			newThreshold = defaultMinThreshold
		}
		c.threshold = newThreshold
		return true

	default:
		return true
	}
}

func (c *Collector) markGray(o Object) {
	if o == nil {
		return
	}
	h := o.GCHeader()
	if h.Color != White {
		return
	}
	h.Color = Gray
	c.gray = append(c.gray, o)
}

func (c *Collector) blacken(o Object) {
	o.GCHeader().Color = Black
	for _, ref := range o.GCRefs() {
		c.markGray(ref)
	}
}

func (c *Collector) liveBytes() uint64 {
	var total uint64
	for o := range c.liveObjects {
		total += uint64(o.GCHeader().Size)
	}
	return total
}

// Eligible reports whether a major cycle should start (spec §4.10
// "Triggering": allocated_memory >= threshold).
func (c *Collector) Eligible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocated >= c.threshold
}

// minorCollect runs a minor (nursery-only) collection: survivors with
// Age >= PromotionAge move to the old generation; the remembered set
// seeds reachability for objects only referenced from old-gen fields
// (spec §4.10 "A cross-generational remembered set records old-to-young
// edges and is scanned during minor collections").
func (c *Collector) minorCollect() {
	var survivors []Object
	reachable := make(map[Object]bool)
	for _, olds := range c.rememberedSet {
		for _, y := range olds {
			reachable[y] = true
		}
	}
	for _, o := range c.nursery {
		h := o.GCHeader()
		if h.RefCount > 0 || reachable[o] {
			h.Age++
			if h.Age >= PromotionAge {
				h.Gen = Old
				c.oldGen = append(c.oldGen, o)
				c.stats.PromotedObjects++
			} else {
				survivors = append(survivors, o)
			}
		} else {
			c.free(o)
		}
	}
	c.nursery = survivors
}

// Stats returns a snapshot of the collector's reporting counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LeakReport lists every object whose refcount never reached zero by
// process end (spec §4.10 "leak summaries"; SPEC_FULL "GC leak
// summary"), tagged with its allocating instruction's file:line.
func (c *Collector) LeakReport() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, l := range c.leaks {
		out = append(out, l.allocSite)
	}
	return out
}

func (c *Collector) State() State { return c.state }
