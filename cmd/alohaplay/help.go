package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const helpString = `Revocable-ticket media player core

Usage: alohaplay [OPTION]... FILE...

Plays MP4 files one after another through the decoder loops. Decoded
output is rendered to in-memory ports, optionally written to files.

Configuration:
  -c, --config=FILE        YAML configuration file
      --loglevel=LEVELS    Log directives, e.g. "info,decoder=debug"

Output:
      --audio-sink=FILE    Write decoded audio to FILE
      --video-sink=FILE    Write decoded video to FILE
      --no-audio           Do not attach an audio port
      --no-video           Do not attach a video port
  -r, --realtime           Feed packets at their presentation time
  -s, --start=DURATION     Start each file at this offset
      --gapless            Switch between files without a discontinuity

Control:
  -l, --listen=ADDR        Websocket control address (default: 127.0.0.1:8570)
  -m, --mqtt-broker=URI    Publish stream events to this MQTT broker

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits

Please report bugs to: aloha@lanikailabs.com`

// help prints the banner and usage.
func help(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()
	banner(w)
	fmt.Fprintln(w, helpString)
}

func banner(w io.Writer) {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//         _         _                   _
	//   __ _ | |  ___  | |__    __ _  _ __ | |  __ _  _   _
	//  / _` || | / _ \ | '_ \  / _` || '_ \| | / _` || | | |
	// | (_| || || (_) || | | || (_| || |_) | || (_| || |_| |
	//  \__,_||_| \___/ |_| |_| \__,_|| .__/|_| \__,_| \__, |
	//                                |_|              |___/

	lines := [][4]string{
		{"        ", " _ ", "       ", " _                   _                 "},
		{"   __ _ ", "| |", "  ___  ", "| |__    __ _  _ __ | |  __ _  _   _ "},
		{"  / _` |", "| |", " / _ \\ ", "| '_ \\  / _` || '_ \\| | / _` || | | |"},
		{" | (_| |", "| |", "| (_) |", "| | | || (_| || |_) | || (_| || |_| |"},
		{"  \\__,_|", "|_|", " \\___/ ", "|_| |_| \\__,_|| .__/|_| \\__,_| \\__, |"},
		{"        ", "   ", "       ", "               |_|              |___/ "},
	}
	for _, l := range lines {
		r.Fprint(w, l[0])
		y.Fprint(w, l[1])
		b.Fprint(w, l[2])
		y.Fprintln(w, l[3])
	}
}

// version displays information and exits successfully (GNU convention)
func version(w io.Writer) {
	fmt.Fprintln(w, "alohaplay", GitRevisionId)
	fmt.Fprintln(w, "Copyright 2019 Lanikai Labs LLC. All rights reserved.")
	fmt.Fprintln(w, "Visit https://lanikailabs.com for more information")
}
