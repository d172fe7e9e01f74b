package feedback

import (
	"log/slog"
)

// Logger writes a progress line every Every non-null iterations and a
// summary when the run completes.
type Logger struct {
	Every  int
	Logger *slog.Logger
}

func (l Logger) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Logger) OnIteration(ev Event) {
	if ev.Null || l.Every <= 0 || ev.Iteration%l.Every != 0 {
		return
	}
	l.logger().Info("Optimization progress",
		"iteration", ev.Iteration,
		"step", ev.Step,
		"energy", ev.Energy,
		"best_energy", ev.BestEnergy,
		"temperature", ev.Temperature,
		"marks", ev.Size,
		"cache_hit_rate", ev.Cache.HitRate(),
	)
}

func (l Logger) OnComplete(s Summary) {
	attrs := []any{
		"reason", s.Reason,
		"iterations", s.Iterations,
		"null_iterations", s.NullIterations,
		"accepted", s.Accepted,
		"rejected", s.Rejected,
		"failed", s.Failed,
		"initial_energy", s.InitialEnergy,
		"final_energy", s.FinalEnergy,
		"best_energy", s.BestEnergy,
		"marks", len(s.Marks),
		"elapsed", s.Elapsed,
	}
	if s.Err != nil {
		l.logger().Error("Optimization aborted", append(attrs, "error", s.Err)...)
		return
	}
	l.logger().Info("Optimization completed", attrs...)
}
