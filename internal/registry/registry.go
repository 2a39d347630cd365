// Package registry reads AS number to name mappings, either from a
// cidr-report autnums.html document or from the as_names Postgres table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/route-beacon/as-resolver/internal/config"
	"go.uber.org/zap"
)

// ErrUnavailable is wrapped when a registry cannot be opened or queried.
var ErrUnavailable = errors.New("registry unavailable")

// ErrStop may be returned by an Each callback to end iteration without error.
var ErrStop = errors.New("stop iteration")

// Entry is one AS number and its registered name.
type Entry struct {
	ASN  uint32
	Name string
}

// ASString is the AS number as it appears in a dump's AS path.
func (e Entry) ASString() string {
	return strconv.FormatUint(uint64(e.ASN), 10)
}

// Registry yields entries in source order. A non-nil error from fn stops
// iteration and is returned, except ErrStop which ends it cleanly.
type Registry interface {
	Each(ctx context.Context, fn func(Entry) error) error
}

// New builds the registry selected by cfg. q is only used for kind postgres.
func New(cfg config.RegistryConfig, q Querier, logger *zap.Logger) (Registry, error) {
	switch cfg.Kind {
	case "html":
		return NewHTMLDocument(cfg.Location, logger), nil
	case "postgres":
		if q == nil {
			return nil, fmt.Errorf("%w: postgres registry without a pool", ErrUnavailable)
		}
		return NewPostgres(q, logger), nil
	default:
		return nil, fmt.Errorf("unknown registry kind %q", cfg.Kind)
	}
}
