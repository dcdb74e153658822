// =============================================================================
// CTe/NFe Key Linker - Main Entry Point
// =============================================================================
//
// USAGE:
//   ctenfe audit     - Link the NFe keys of every CTe document into a report
//   ctenfe watch     - Re-run the audit whenever a document changes
//   ctenfe version   - Display the application version
//
// ARCHITECTURE:
//   - cmd/                 : CLI command definitions (Cobra)
//   - internal/grammar     : key patterns over raw document text
//   - internal/validation  : 44-digit key and document-type code checks
//   - internal/extractor   : per-document key extraction
//   - internal/aggregator  : parallel fold-then-reduce into one map
//   - internal/report      : text and XLSX reports
//   - internal/config      : YAML configuration and overrides
//   - pkg/utils            : discovery, pre-filter, run logs
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/cte-nfe-linker/cmd"
)

func main() {
	cmd.Execute()
}
