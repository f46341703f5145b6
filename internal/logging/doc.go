// Package logging provides structured logging for pollrunner runs.
//
// It wraps log/slog with a JSON handler. A run writes one log file,
// {dir}/pollrunner.log, optionally size-rotated. Child loggers carry the run ID
// and worker index so that one worker's history can be filtered out of the
// shared file:
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	w := logger.WithRun(runID).WithWorker(2)
//	w.Warn("attempt failed", "kind", "element_not_found")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"attempt failed","run_id":"...","worker":2,"kind":"element_not_found"}
//
// All types are safe for concurrent use. Workers log through child loggers that
// share one writer.
//
// Use [NopLogger] in tests.
package logging
