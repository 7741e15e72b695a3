package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hospital-voice-booking/internal/audit"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// BuildSessionStore picks the call session backend named by SESSION_BACKEND.
func BuildSessionStore(cfg *appconfig.Config, rdb *redis.Client, ddb *dynamodb.Client, logger *logging.Logger) (dialogue.SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionBackend {
	case appconfig.SessionBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("bootstrap: session backend redis needs a reachable REDIS_ADDR")
		}
		logger.Info("call sessions in redis")
		return dialogue.NewRedisStore(rdb), nil
	case appconfig.SessionBackendDynamoDB:
		if ddb == nil {
			return nil, fmt.Errorf("bootstrap: session backend dynamodb needs an AWS client")
		}
		logger.Info("call sessions in dynamodb", "table", cfg.SessionTable)
		return dialogue.NewDynamoStore(ddb, cfg.SessionTable), nil
	case appconfig.SessionBackendMemory, "":
		logger.Info("call sessions in memory")
		return dialogue.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

// BuildLedgerStore returns the Postgres store when a pool exists, otherwise the
// in-process store.
func BuildLedgerStore(pool *pgxpool.Pool, logger *logging.Logger) ledger.Store {
	if pool == nil {
		if logger != nil {
			logger.Warn("DATABASE_URL not set; bookings are kept in memory only")
		}
		return ledger.NewMemoryStore()
	}
	return ledger.NewPostgresStore(pool)
}

// BuildAuditLog mirrors bookings to S3 when AUDIT_S3_BUCKET is set, otherwise
// to the local JSONL file.
func BuildAuditLog(cfg *appconfig.Config, s3Client *s3.Client, logger *logging.Logger) audit.Log {
	if cfg == nil {
		return nil
	}
	if bucket := strings.TrimSpace(cfg.AuditS3Bucket); bucket != "" && s3Client != nil {
		return audit.NewS3Log(s3Client, bucket, logger)
	}
	if strings.TrimSpace(cfg.AuditLogPath) == "" {
		return nil
	}
	return audit.NewFileLog(cfg.AuditLogPath, logger)
}
