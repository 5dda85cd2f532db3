package scanner

import (
	"math"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jlangch/aviron/watch"
)

// DefaultHighEntropyThreshold is the same 6.5 bits/byte cutoff the
// backup-pipeline entropy tooling uses to flag likely-encrypted or
// likely-compressed content.
const DefaultHighEntropyThreshold = 6.5

// MimeApprover builds a ScanApprover that rejects events whose path's
// sniffed MIME type has one of the given prefixes (e.g. "text/"),
// letting a real-time scanner skip well-known non-executable content.
// Files the sniffer cannot classify are approved by default.
func MimeApprover(rejectPrefixes ...string) ScanApprover {
	return func(ev watch.FileWatchEvent) bool {
		mt, err := mimetype.DetectFile(ev.Path)
		if err != nil {
			return true
		}
		mimeType := mt.String()
		for _, prefix := range rejectPrefixes {
			if strings.HasPrefix(mimeType, prefix) {
				return false
			}
		}
		return true
	}
}

// EntropyApprover builds a ScanApprover that approves a path only when
// its Shannon entropy (sampled over the first 1KB, matching the
// block-read approach used for binary analysis) meets or exceeds
// threshold. A read failure approves the path, since a file that
// vanished before being sampled will also fail the later os.Stat guard
// in the worker loop.
func EntropyApprover(threshold float64) ScanApprover {
	return func(ev watch.FileWatchEvent) bool {
		f, err := os.Open(ev.Path)
		if err != nil {
			return true
		}
		defer f.Close()

		buf := make([]byte, 1024)
		n, err := f.Read(buf)
		if err != nil && n == 0 {
			return true
		}
		return entropy(buf[:n]) >= threshold
	}
}

// entropy calculates Shannon entropy for a byte slice, in bits/byte.
func entropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	var freq [256]float64
	for _, v := range b {
		freq[v]++
	}
	var ent float64
	ln := float64(len(b))
	for i := 0; i < 256; i++ {
		if freq[i] == 0 {
			continue
		}
		p := freq[i] / ln
		ent -= p * math.Log2(p)
	}
	return ent
}
