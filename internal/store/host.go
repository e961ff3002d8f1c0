package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/netsweep/network-survey-agent/internal/models"
	srvErrors "github.com/netsweep/network-survey-agent/pkg/errors"
)

// HostStore handles host inventory storage.
type HostStore struct {
	db *sql.DB
}

func NewHostStore(db *sql.DB) *HostStore {
	return &HostStore{db: db}
}

// Save inserts or updates one host record, keyed by address.
func (s *HostStore) Save(ctx context.Context, host models.Host) error {
	_, err := s.db.ExecContext(ctx, queryUpsertHost,
		host.Address,
		host.Hostname,
		host.Subnet,
		host.Reachable,
		joinPorts(host.OpenPorts),
		host.OSClass.Value(),
		float64(host.Latency)/float64(time.Millisecond),
		host.SurveyID,
	)
	return err
}

// Get retrieves one host by address.
func (s *HostStore) Get(ctx context.Context, address string) (*models.Host, error) {
	row := s.db.QueryRowContext(ctx, queryGetHost, address)
	host, err := scanHost(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, srvErrors.NewHostNotFoundError(address)
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

// List returns hosts matching the given options, ordered by address.
func (s *HostStore) List(ctx context.Context, opts ...ListOption) ([]models.Host, error) {
	builder := sq.Select(
		"address", "hostname", "subnet", "reachable", "open_ports", "os_class", "latency_ms", "survey_id",
	).From("hosts").OrderBy("address")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []models.Host
	for rows.Next() {
		host, err := scanHost(rows.Scan)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, host)
	}
	return hosts, rows.Err()
}

// Count returns the number of hosts matching the given options.
func (s *HostStore) Count(ctx context.Context, opts ...ListOption) (int, error) {
	builder := sq.Select("COUNT(*)").From("hosts")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Clear empties the host inventory.
func (s *HostStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queryClearHosts)
	return err
}

func scanHost(scan func(...any) error) (models.Host, error) {
	var host models.Host
	var ports, osClass string
	var latencyMS float64
	if err := scan(
		&host.Address,
		&host.Hostname,
		&host.Subnet,
		&host.Reachable,
		&ports,
		&osClass,
		&latencyMS,
		&host.SurveyID,
	); err != nil {
		return host, err
	}
	host.OpenPorts = splitPorts(ports)
	host.OSClass = models.OSClass(osClass)
	host.Latency = time.Duration(latencyMS * float64(time.Millisecond))
	return host, nil
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func splitPorts(s string) []int {
	if s == "" {
		return nil
	}
	var ports []int
	for _, part := range strings.Split(s, ",") {
		if p, err := strconv.Atoi(part); err == nil {
			ports = append(ports, p)
		}
	}
	return ports
}

// ListOption narrows a host list or count query.
type ListOption func(sq.SelectBuilder) sq.SelectBuilder

func ByOSClasses(classes ...string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if len(classes) == 0 {
			return b
		}
		return b.Where(sq.Eq{"os_class": classes})
	}
}

func BySubnets(subnets ...string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if len(subnets) == 0 {
			return b
		}
		return b.Where(sq.Eq{"subnet": subnets})
	}
}

func ByReachable(reachable bool) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"reachable": reachable})
	}
}

func BySurvey(id string) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"survey_id": id})
	}
}

func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(limit)
	}
}

func WithOffset(offset uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Offset(offset)
	}
}
