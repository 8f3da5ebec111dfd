package agent

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/mcpchecker/pairbench/pkg/util"
)

// MaxCapturedOutput bounds raw stdout and stderr kept in metadata.
const MaxCapturedOutput = 2000

// ErrTimeout is the metadata error value for an invocation that hit its
// deadline.
const ErrTimeout = "timeout"

// Metadata describes one agent invocation. A completed invocation sets
// Returncode, ElapsedS and either AgentOutput or RawStdout. A failed one sets
// Error, plus ElapsedS on timeout. A dry run leaves everything empty.
type Metadata struct {
	Returncode  *int            `json:"returncode,omitempty"`
	ElapsedS    *float64        `json:"elapsed_s,omitempty"`
	AgentOutput json.RawMessage `json:"claude_output,omitempty"`
	RawStdout   *string         `json:"raw_stdout,omitempty"`
	Stderr      string          `json:"stderr,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (m Metadata) TimedOut() bool {
	return m.Error == ErrTimeout
}

// Failed reports an invocation that never completed.
func (m Metadata) Failed() bool {
	return m.Error != ""
}

// OutputKind tags the result of parsing agent stdout.
type OutputKind int

const (
	// OutputStructured means stdout was a JSON document.
	OutputStructured OutputKind = iota
	// OutputUnstructured means stdout was not JSON. This is not an error: the
	// process still completed and Raw carries the truncated text.
	OutputUnstructured
)

// ParsedOutput is the tagged result of ParseOutput.
type ParsedOutput struct {
	Kind OutputKind
	JSON json.RawMessage
	Raw  string
}

// ParseOutput classifies agent stdout as structured JSON or truncated text.
func ParseOutput(stdout []byte) ParsedOutput {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return ParsedOutput{Kind: OutputStructured, JSON: json.RawMessage(trimmed)}
	}
	return ParsedOutput{Kind: OutputUnstructured, Raw: util.Truncate(string(stdout), MaxCapturedOutput)}
}

func completedMetadata(returncode int, elapsed time.Duration, stdout, stderr []byte) Metadata {
	md := Metadata{
		Returncode: &returncode,
		ElapsedS:   elapsedSeconds(elapsed),
	}

	switch out := ParseOutput(stdout); out.Kind {
	case OutputStructured:
		md.AgentOutput = out.JSON
	case OutputUnstructured:
		md.RawStdout = &out.Raw
	}

	if len(stderr) > 0 {
		md.Stderr = util.Truncate(string(stderr), MaxCapturedOutput)
	}
	return md
}

func timeoutMetadata(elapsed time.Duration) Metadata {
	return Metadata{Error: ErrTimeout, ElapsedS: elapsedSeconds(elapsed)}
}

// elapsedSeconds rounds to one decimal place.
func elapsedSeconds(d time.Duration) *float64 {
	s := math.Round(d.Seconds()*10) / 10
	return &s
}
