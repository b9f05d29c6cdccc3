// Command retreat-events collects retreat announcements from feeds and a
// listing site and upserts them into the configured store.
package main

import (
	_ "time/tzdata"

	"github.com/pfrederiksen/retreat-events/internal/cli"
)

func main() {
	cli.Execute()
}
