package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/hivehook/internal/app"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/output"
	"github.com/dotcommander/hivehook/internal/scratch"
)

// defaultSampleCount is the per-track variant count when none is given.
const defaultSampleCount = 2

// NewVsampleCmd creates the vsample command: rewrite a request into a
// dual-track A/B sampling instruction and log it for later analysis.
func NewVsampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vsample [N] <request>",
		Short: "Rewrite a request into a dual-track A/B sampling instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples := defaultSampleCount
			rest := args
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				samples = n
				rest = args[1:]
			}
			request := strings.TrimSpace(strings.Join(rest, " "))
			if request == "" {
				return cmdErr(fmt.Errorf("usage: hivehook vsample [N] <request>"))
			}

			instruction := buildSamplingInstruction(request, samples)
			appendSampleLog(request, samples)

			return output.Print(output.Context(instruction))
		},
	}
}

// buildSamplingInstruction renders the dual-track instruction the model
// executes: N diverse variants per track, each track self-selects a winner,
// then the tracks are compared.
func buildSamplingInstruction(request string, samples int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DUAL-TRACK SAMPLING\n\nRequest: %q\nVariants per track: %d\n\n", request, samples)
	b.WriteString("Track A (your own generation):\n")
	fmt.Fprintf(&b, "1. Generate %d diverse, distinct responses to the request, sampling from the full distribution.\n", samples)
	b.WriteString("2. Annotate each with an estimated probability in [0,1].\n")
	b.WriteString("3. Select the best response and state why.\n\n")
	b.WriteString("Track B (alternate approach):\n")
	fmt.Fprintf(&b, "1. Generate %d more responses under a deliberately different strategy or style.\n", samples)
	b.WriteString("2. Annotate and select the best the same way.\n\n")
	b.WriteString("Then present both tracks side by side with a short comparative analysis: ")
	b.WriteString("diversity, quality of the selected responses, and which track served this request better.")
	return b.String()
}

// appendSampleLog records the request in the daily JSONL log so sampling
// sessions can be analyzed later. Best-effort: failures are ignored.
func appendSampleLog(request string, samples int) {
	sc := scratch.At(app.ScratchDir())

	entry := map[string]any{
		"timestamp": models.Timestamp(time.Now()),
		"request":   request,
		"samples":   samples,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	sc.AppendLog("vsample-"+time.Now().UTC().Format("2006-01-02")+".jsonl", string(line))
}
