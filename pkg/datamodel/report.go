package datamodel

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
)

var LogLevel = &slog.LevelVar{}

var logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
	Level: LogLevel,
}))

// ReportsWriter appends verdicts to a JSON array on dst, keeping the file
// valid JSON after every write.
type ReportsWriter struct {
	dst io.WriteSeeker
}

func NewReportsWriter(dst io.WriteSeeker) *ReportsWriter {
	return &ReportsWriter{dst: dst}
}

func (rw *ReportsWriter) Write(v Verdict) (err error) {
	// try to seek above last "\n]"
	n, _ := rw.dst.Seek(-2, io.SeekEnd)
	out := bufio.NewWriter(rw.dst)
	if n == 0 {
		// start of file
		if _, err = out.WriteString("[\n"); err != nil {
			return
		}
	} else {
		if _, err = out.WriteString(",\n"); err != nil {
			return
		}
	}

	encoder := json.NewEncoder(out)
	err = encoder.Encode(v)
	if err != nil {
		return
	}
	if _, err = out.WriteString("]"); err != nil {
		return
	}
	if flushErr := out.Flush(); flushErr != nil {
		logger.Error("failed to flush buffer", slog.String("error", flushErr.Error()))
	}
	return
}

// GenerateReport renders a finished session as a JSON document.
func GenerateReport(result *Result) (r io.Reader, err error) {
	buffer := &bytes.Buffer{}
	out := json.NewEncoder(buffer)
	out.SetIndent("", "  ")
	err = out.Encode(result)
	return buffer, err
}
