package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hospital-voice-booking/internal/availability"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/directory"
	"github.com/wolfman30/hospital-voice-booking/internal/fuzzy"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/hospital-voice-booking/internal/slotgrid"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// Clients carries the infrastructure connections a binary managed to open.
// Any of them may be nil.
type Clients struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	SQS      *sqs.Client
}

// Services is the assembled booking runtime.
type Services struct {
	Directory    *directory.Directory
	Ledger       *ledger.Ledger
	Availability *availability.Resolver
	Sessions     dialogue.SessionStore
	Engine       *dialogue.Engine

	closers []func() error
}

// Close releases collaborator resources. Infrastructure clients stay owned by
// the caller.
func (s *Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildServices loads the roster and wires the ledger, availability resolver
// and dialogue engine from cfg.
func BuildServices(ctx context.Context, cfg *appconfig.Config, clients Clients, m *metrics.BookingMetrics, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	dir, err := directory.Load(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load roster: %w", err)
	}
	logger.Info("roster loaded",
		"path", cfg.RosterPath,
		"departments", len(dir.Departments()),
		"lab_tests", len(dir.LabTests()),
	)

	sessions, err := BuildSessionStore(cfg, clients.Redis, clients.DynamoDB, logger)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	policy := slotgrid.HourPolicy{PMCutoff: cfg.PMCutoffHour}
	auditLog := BuildAuditLog(cfg, clients.S3, logger.Component("audit"))

	l := ledger.New(BuildLedgerStore(clients.Postgres, logger),
		ledger.WithAudit(auditLog),
		ledger.WithPublisher(BuildEventPublisher(cfg, clients.SQS)),
		ledger.WithMetrics(m),
		ledger.WithLogger(logger.Component("ledger")),
	)
	slots := availability.New(dir, l,
		availability.WithAudit(auditLog),
		availability.WithHourPolicy(policy),
		availability.WithSlotWidth(cfg.SlotWidth),
		availability.WithWindowDays(cfg.BookingWindowDays),
		availability.WithLocation(loc),
		availability.WithLogger(logger.Component("availability")),
		availability.WithMetrics(m),
	)

	answerer, closeAnswerer := BuildAnswerer(ctx, cfg, logger.Component("qa"))
	engine := dialogue.New(sessions, slots, l,
		dialogue.WithConfig(dialogue.Config{
			WindowDays:      cfg.BookingWindowDays,
			MaxRetries:      cfg.MaxEmptyRetries,
			PostBookingMenu: cfg.PostBookingMenu,
			SessionTTL:      cfg.SessionTTL,
			HourPolicy:      policy,
		}),
		dialogue.WithMatcher(fuzzy.NewResolver(cfg.FuzzyLowThreshold, cfg.FuzzyHighThreshold)),
		dialogue.WithAnswerer(answerer),
		dialogue.WithConfirmer(BuildConfirmer(cfg, m, logger.Component("notify"))),
		dialogue.WithLocation(loc),
		dialogue.WithLogger(logger.Component("dialogue")),
		dialogue.WithMetrics(m),
	)

	return &Services{
		Directory:    dir,
		Ledger:       l,
		Availability: slots,
		Sessions:     sessions,
		Engine:       engine,
		closers:      []func() error{closeAnswerer},
	}, nil
}
