package registry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/route-beacon/as-resolver/internal/metrics"
	"go.uber.org/zap"
)

// autnumLine matches one autnums.html row, e.g.
//
//	<a href="/cgi-bin/as-report?as=AS786&view=2.0">AS786  </a> JANET Jisc Services Limited, GB
var autnumLine = regexp.MustCompile(`^<a href="/cgi-bin/as-report\?as=AS(\d+)&view=2\.0">AS(\d+)\s*</a>\s*(.*?)\s*$`)

const maxDocumentLine = 64 * 1024

// ParseLine extracts an entry from an autnums.html line. Lines that are not
// AS rows, or whose link and label numbers disagree, report false.
func ParseLine(line string) (Entry, bool) {
	m := autnumLine.FindStringSubmatch(line)
	if m == nil || m[1] != m[2] || m[3] == "" {
		return Entry{}, false
	}
	asn, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Entry{}, false
	}
	return Entry{ASN: uint32(asn), Name: m[3]}, true
}

// HTMLDocument reads an autnums.html document from a local path or an
// http(s) URL. The document is re-read on every Each call.
type HTMLDocument struct {
	location string
	client   *http.Client
	logger   *zap.Logger
}

func NewHTMLDocument(location string, logger *zap.Logger) *HTMLDocument {
	return &HTMLDocument{
		location: location,
		client:   &http.Client{Timeout: 2 * time.Minute},
		logger:   logger,
	}
}

func (h *HTMLDocument) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(h.location, "http://") && !strings.HasPrefix(h.location, "https://") {
		f, err := os.Open(h.location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s: %s", ErrUnavailable, h.location, resp.Status)
	}
	return resp.Body, nil
}

func (h *HTMLDocument) Each(ctx context.Context, fn func(Entry) error) error {
	rc, err := h.open(ctx)
	if err != nil {
		metrics.StreamUnavailableTotal.WithLabelValues("registry").Inc()
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 4096), maxDocumentLine)

	var n int
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, ok := ParseLine(sc.Text())
		if !ok {
			continue
		}
		n++
		metrics.RegistryEntriesTotal.Inc()
		if err := fn(e); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrUnavailable, h.location, err)
	}

	h.logger.Debug("registry document read", zap.String("location", h.location), zap.Int("entries", n))
	return nil
}
