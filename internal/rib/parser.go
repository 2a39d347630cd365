package rib

import (
	"errors"
	"strings"
)

// Field layout of a `bgpdump -M` line:
// TABLE_DUMP2|timestamp|B|peer_ip|peer_as|prefix|as_path|origin|...
const (
	fieldDelimiter = "|"
	prefixField    = 5
	asPathField    = 6
)

// ErrShortLine is returned for lines with fewer than prefixField+1 fields.
var ErrShortLine = errors.New("rib: line has too few fields")

// Record is the part of a dump line needed for origin resolution.
type Record struct {
	Prefix   string
	ASPath   string
	OriginAS string // last AS of the path; empty when the path is missing
}

// ParseLine extracts the prefix and AS path from a pipe-delimited dump line.
// Empty fields are kept, so positions never shift.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, fieldDelimiter)
	if len(fields) <= prefixField {
		return Record{}, ErrShortLine
	}

	r := Record{Prefix: strings.TrimSpace(fields[prefixField])}
	if r.Prefix == "" {
		return Record{}, ErrShortLine
	}

	if len(fields) > asPathField {
		r.ASPath = strings.TrimSpace(fields[asPathField])
		if hops := strings.Fields(r.ASPath); len(hops) > 0 {
			r.OriginAS = hops[len(hops)-1]
		}
	}
	return r, nil
}
