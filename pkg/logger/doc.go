// Package logger provides slog attribute helpers with nil-safe zero values.
//
// Helpers return an empty slog.Attr for nil or zero inputs, so call sites
// never need explicit guards:
//
//	log.Info("request settled",
//	    logger.MessageType("task"),
//	    logger.CorrelationID(msg.ID),
//	    logger.Error(err), // no-op attr when err is nil
//	)
package logger
