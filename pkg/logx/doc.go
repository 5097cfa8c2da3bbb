// Package logx provides a small structured logging facade over zerolog.
//
// Components receive a logx.Logger value; the zero value is a safe no-op.
// The Service owns the sinks (console, file) and can hot-swap level and
// outputs at runtime via Apply() without invalidating handed-out loggers.
package logx
