package main

import (
	"flag"
	"fmt"
	"path/filepath"
)

// unsetDevice marks an audio device flag the user didn't pass, so
// applyFlagOverrides can tell "use default" apart from "use device 0".
const unsetDevice = -2

type cliFlags struct {
	identityPath string
	newIdentity  bool
	showIdentity bool

	displayName    string
	inputDevice    int
	outputDevice   int
	noAudio        bool
	noAnnounce     bool
	announcePeriod int

	logLevel  string
	logFile   string
	noLogFile bool

	historyBackend string
}

// parseFlags parses the CLI surface (spec §6): a flat set of flags, no
// subcommands, grounded on server/main.go's bare flag.String/.Duration
// style rather than a third-party flag library.
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("lxst-phone", flag.ContinueOnError)

	defaultIdentityPath, err := defaultIdentityPath()
	if err != nil {
		return cliFlags{}, err
	}

	var f cliFlags
	fs.StringVar(&f.identityPath, "identity", defaultIdentityPath, "path to the local identity file")
	fs.BoolVar(&f.newIdentity, "new-identity", false, "generate a new identity at --identity and exit")
	fs.BoolVar(&f.showIdentity, "show-identity", false, "print the identity at --identity and exit")

	fs.StringVar(&f.displayName, "display-name", "", "override the configured display name")
	fs.IntVar(&f.inputDevice, "audio-input-device", unsetDevice, "capture device index (default: configured)")
	fs.IntVar(&f.outputDevice, "audio-output-device", unsetDevice, "playback device index (default: configured)")
	fs.BoolVar(&f.noAudio, "no-audio", false, "skip local microphone capture and speaker playback")
	fs.BoolVar(&f.noAnnounce, "no-announce", false, "suppress periodic destination announces")
	fs.IntVar(&f.announcePeriod, "announce-period", 0, "override the announce period in minutes")

	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFile, "log-file", "", "path to also write logs to (default: configDir/lxst-phone.log)")
	fs.BoolVar(&f.noLogFile, "no-log-file", false, "log to stderr only")

	fs.StringVar(&f.historyBackend, "call-history-backend", "json", "call history backend: json or sqlite")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	switch f.historyBackend {
	case "json", "sqlite":
	default:
		return cliFlags{}, fmt.Errorf("--call-history-backend: unknown backend %q (want json or sqlite)", f.historyBackend)
	}

	if f.logFile == "" && !f.noLogFile {
		configDir, err := userConfigDir()
		if err != nil {
			return cliFlags{}, err
		}
		f.logFile = filepath.Join(configDir, "lxst-phone.log")
	}

	return f, nil
}

func defaultIdentityPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "identity.json"), nil
}
