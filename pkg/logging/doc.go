// Package logging builds the structured loggers used across switchboard.
//
// It wraps log/slog so every component gets the same level and format
// handling. Components accept a *slog.Logger in their constructor or via
// a setter and fall back to Nop() when none is supplied.
//
//	log := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	log.Info("listening", "addr", ":8080")
//
// When Config.File is set, records are written both to Output and to the
// file through a fan-out handler.
package logging
