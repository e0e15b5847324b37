// Package logger provides the shared logging setup for all engine components.
//
// Every component obtains a scoped entry once at package level:
//
//	var log = logger.GetLogger("wal")
//
// All entries share one root logger, so SetLevel and SetOutput affect the
// whole process. Entries carry a "component" field for filtering.
package logger
