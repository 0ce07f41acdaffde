// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

// wireflow-tool pokes at wireflowd nodes: timed pings, quota-limited data
// floods, event watching and capture files.
package main

import (
	"fmt"
	"os"
)

// printUsage of wireflow-tool and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s ping|flood|watch|record|show:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s ping address [count]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Dials the given TCP address and sends timed pings, count times or until\n")
	_, _ = fmt.Fprintf(os.Stderr, "  interrupted.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s flood address quota seconds\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Sends data to the given TCP address for the given number of seconds,\n")
	_, _ = fmt.Fprintf(os.Stderr, "  self-limited to the given quota, e.g., \"64 KiB\", and reports the achieved\n")
	_, _ = fmt.Fprintf(os.Stderr, "  throughput afterwards.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s watch api-host\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Connects to a wireflowd API, e.g., localhost:8080, and prints its event\n")
	_, _ = fmt.Fprintf(os.Stderr, "  stream until interrupted.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s record listen-address file.xz\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Accepts one connection on the given TCP address and appends every received\n")
	_, _ = fmt.Fprintf(os.Stderr, "  frame to an xz-compressed capture file, until interrupted.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s show file.xz\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints a human-readable version of the given capture file.\n\n")

	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
	}

	switch os.Args[1] {
	case "ping":
		ping(os.Args[2:])

	case "flood":
		flood(os.Args[2:])

	case "watch":
		watch(os.Args[2:])

	case "record":
		record(os.Args[2:])

	case "show":
		show(os.Args[2:])

	default:
		printUsage()
	}
}
