// Package iropt implements the fixed-point IR optimizer: dead code
// elimination, constant folding/propagation, common subexpression
// elimination, function inlining, type specialization and strength
// reduction, run at one of four optimization levels (spec §4.5).
//
// Grounded on the specialization intent already visible in the teacher's
// internal/bytecode opcode set (OpLoadFast/OpStoreFast/OpAddK and
// friends exist precisely so a fast interpreter path can skip generic
// dispatch); this package performs the same specialization ahead of
// time, over the IR, rather than at dispatch.
package iropt

import "sentra/internal/ir"

// Level selects how aggressively passes run.
type Level int

const (
	LevelNone Level = iota
	LevelBasic
	LevelAggressive
	LevelSize
)

// Pass mutates a Function in place and reports whether it changed
// anything, so the driver can keep iterating to a fixed point.
type Pass interface {
	Name() string
	Run(fn *ir.Function) bool
}

// Pipeline returns the ordered pass list for a Level (spec §4.5 "pass
// driver"). LevelNone returns no passes at all.
func Pipeline(level Level, mod *ir.Module, stats *Stats) []Pass {
	switch level {
	case LevelNone:
		return nil
	case LevelBasic:
		return []Pass{constFoldPass{stats}, deadCodePass{stats}}
	case LevelAggressive:
		return []Pass{
			constFoldPass{stats}, copyPropPass{stats}, csePass{stats}, deadCodePass{stats},
			inlinePass{maxCalleeInstrs: 40, module: mod, stats: stats},
			typeSpecializePass{stats}, strengthReducePass{stats}, deadCodePass{stats},
		}
	case LevelSize:
		return []Pass{constFoldPass{stats}, deadCodePass{stats}, csePass{stats}, deadCodePass{stats}}
	default:
		return nil
	}
}

// Optimize runs level's pass pipeline to a fixed point (no pass reports
// a change) or maxIterations, whichever comes first, per function, and
// returns the accumulated Stats (spec §4.5 "Statistics").
func Optimize(mod *ir.Module, level Level) Stats {
	stats := Stats{}
	passes := Pipeline(level, mod, &stats)
	if len(passes) == 0 {
		return stats
	}
	const maxIterations = 16
	for _, fn := range mod.Functions {
		for i := 0; i < maxIterations; i++ {
			changed := false
			for _, p := range passes {
				stats.PassesRun++
				if p.Run(fn) {
					changed = true
				}
			}
			if !changed {
				break
			}
		}
	}
	return stats
}
