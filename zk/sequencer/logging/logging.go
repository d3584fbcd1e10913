// Package logging adapts the teacher's turbo/logging dual-handler setup
// (console + rotating file, both independently leveled) to the sequencer's
// own urfave/cli flag set, dropping the cobra-based entry points the
// teacher carries for its other binaries since this module has exactly
// one CLI framework in use.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ledgerwatch/log/v3"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	VerbosityFlag = &cli.StringFlag{
		Name:  "log.console.verbosity",
		Usage: "Console log verbosity (trace|debug|info|warn|error|crit, or a numeric level)",
		Value: "info",
	}
	DirPathFlag = &cli.StringFlag{
		Name:  "log.dir.path",
		Usage: "Directory to write rotating log files to; empty disables file logging",
	}
	DirVerbosityFlag = &cli.StringFlag{
		Name:  "log.dir.verbosity",
		Usage: "File log verbosity",
		Value: "debug",
	}
	JSONFlag = &cli.BoolFlag{
		Name:  "log.json",
		Usage: "Emit structured JSON logs instead of the terminal format",
	}
)

// Setup builds a Logger with the teacher's console+file split: console
// output always goes to stderr at VerbosityFlag's level; when DirPathFlag
// is set, a second lumberjack-rotated handler fans out to disk at its own
// level so an operator can run the console quiet while still capturing
// debug-level history.
func Setup(filePrefix string, cliCtx *cli.Context) (log.Logger, error) {
	consoleLevel, err := parseLevel(cliCtx.String(VerbosityFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("logging: invalid %s: %w", VerbosityFlag.Name, err)
	}
	dirLevel, err := parseLevel(cliCtx.String(DirVerbosityFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("logging: invalid %s: %w", DirVerbosityFlag.Name, err)
	}

	var format log.Format
	if cliCtx.Bool(JSONFlag.Name) {
		format = log.JsonFormat()
	} else {
		format = log.TerminalFormatNoColor()
	}

	logger := log.New()
	consoleHandler := log.LvlFilterHandler(consoleLevel, log.StreamHandler(os.Stderr, format))

	dirPath := cliCtx.String(DirPathFlag.Name)
	if dirPath == "" {
		logger.SetHandler(consoleHandler)
		return logger, nil
	}

	if err := os.MkdirAll(dirPath, 0o764); err != nil {
		logger.SetHandler(consoleHandler)
		logger.Warn("failed to create log dir, console logging only", "dir", dirPath, "err", err)
		return logger, nil
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dirPath, filePrefix+".log"),
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	}
	fileHandler := log.LvlFilterHandler(dirLevel, log.StreamHandler(rotated, format))
	logger.SetHandler(log.MultiHandler(consoleHandler, fileHandler))
	logger.Info("logging to file system", "log_dir", dirPath, "file_prefix", filePrefix)
	return logger, nil
}

func parseLevel(s string) (log.Lvl, error) {
	if lvl, err := log.LvlFromString(s); err == nil {
		return lvl, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return log.Lvl(n), nil
}
