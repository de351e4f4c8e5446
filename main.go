// collection-stats refreshes GitHub statistics in a curated JSON collection.
//
// Usage:
//
//	collection-stats update
//	collection-stats update --collection _data/collection.json --rest -v
package main

import (
	"github.com/naka-gawa/collection-stats/cmd"
)

func main() {
	cmd.Execute()
}
