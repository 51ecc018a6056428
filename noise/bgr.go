package noise

import (
	"bufio"
	"io"

	"github.com/3cs/benchcal/mathx"
	"github.com/3cs/benchcal/record"
)

// Provenance lines of a background-subtracted (BGR) file
const (
	BGRRawLine   = "Path to raw measurement"
	BGRNoiseLine = "Path to noise measurement"

	// BGRDataStart is the first data line of a BGR file: the metadata block
	// without its last blank line, two provenance lines and a blank
	BGRDataStart = record.DataStart - 1 + 3
)

// WriteBGR writes the noise-subtracted spectrum of raw in the BGR layout,
// recording where the raw measurement and the noise dictionary came from
func WriteBGR(w io.Writer, raw *record.Record, samples []record.Sample, noisePath string) error {
	bw := bufio.NewWriter(w)
	hdr := raw.Header()
	for _, l := range hdr[:len(hdr)-1] {
		bw.WriteString(l)
		bw.WriteString("\n")
	}
	bw.WriteString(BGRRawLine + ": " + raw.Source + "\n")
	bw.WriteString(BGRNoiseLine + ": " + noisePath + "\n")
	bw.WriteString("\n")
	for _, s := range samples {
		bw.WriteString(mathx.Repr(s.X) + " " + mathx.Repr(s.Y) + "\n")
	}
	return bw.Flush()
}
