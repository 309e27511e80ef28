// Command tw-reminders keeps Taskwarrior and a reminder service in sync.
//
// It runs in two ways: as Taskwarrior's on-add and on-modify hooks, which
// push local edits to the remote side as they happen, and as a periodic
// `tw-reminders sync` that pulls remote edits back into Taskwarrior.
package main

import (
	"os"

	"github.com/harrisonrobin/twreminders/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
