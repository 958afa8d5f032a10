// Command prepflowvet reports workflow code that breaks deterministic replay.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/notifyhub/prepflow/analyzer"
)

func main() {
	singlechecker.Main(analyzer.Analyzer)
}
