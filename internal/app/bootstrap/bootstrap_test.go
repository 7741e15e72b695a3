package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/hospital-voice-booking/internal/audit"
	appconfig "github.com/wolfman30/hospital-voice-booking/internal/config"
	"github.com/wolfman30/hospital-voice-booking/internal/dialogue"
	"github.com/wolfman30/hospital-voice-booking/internal/ledger"
	"github.com/wolfman30/hospital-voice-booking/internal/qa"
	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

const roster = `
doctors:
  - doctor_name: Dr. Mehta
    doctor_department: Cardiology
    doctor_available_time: "10 to 13"
lab_tests:
  - name: Complete Blood Count
    timings: "7:00 AM to 9:00 AM"
    home_sample_collection: true
`

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifiesConnection(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildPostgresPoolSkipsWithoutURL(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil || pool != nil {
		t.Fatalf("expected nil pool and no error, got %v %v", pool, err)
	}
}

func TestBuildSessionStoreBackends(t *testing.T) {
	logger := logging.New("error")

	store, err := BuildSessionStore(&appconfig.Config{SessionBackend: appconfig.SessionBackendMemory}, nil, nil, logger)
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := store.(*dialogue.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer rdb.Close()
	store, err = BuildSessionStore(&appconfig.Config{SessionBackend: appconfig.SessionBackendRedis}, rdb, nil, logger)
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	if _, ok := store.(*dialogue.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}

	if _, err := BuildSessionStore(&appconfig.Config{SessionBackend: appconfig.SessionBackendRedis}, nil, nil, logger); err == nil {
		t.Fatalf("expected error for redis backend without client")
	}
	if _, err := BuildSessionStore(&appconfig.Config{SessionBackend: appconfig.SessionBackendDynamoDB, SessionTable: "calls"}, nil, nil, logger); err == nil {
		t.Fatalf("expected error for dynamodb backend without client")
	}
	if _, err := BuildSessionStore(&appconfig.Config{SessionBackend: "etcd"}, nil, nil, logger); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if _, err := BuildSessionStore(nil, nil, nil, logger); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLedgerStoreFallsBackToMemory(t *testing.T) {
	if _, ok := BuildLedgerStore(nil, logging.New("error")).(*ledger.MemoryStore); !ok {
		t.Fatalf("expected memory ledger store without a pool")
	}
}

func TestBuildAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookings.jsonl")
	if _, ok := BuildAuditLog(&appconfig.Config{AuditLogPath: path}, nil, nil).(*audit.FileLog); !ok {
		t.Fatalf("expected file audit log")
	}
	// A bucket without an S3 client falls back to the file.
	if _, ok := BuildAuditLog(&appconfig.Config{AuditLogPath: path, AuditS3Bucket: "audit"}, nil, nil).(*audit.FileLog); !ok {
		t.Fatalf("expected file audit log without s3 client")
	}
	if BuildAuditLog(&appconfig.Config{}, nil, nil) != nil {
		t.Fatalf("expected no audit log without a path")
	}
}

func TestBuildCollaboratorsDisabledWithoutConfig(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{}

	answerer, closeFn := BuildAnswerer(context.Background(), cfg, logger)
	if answerer != nil {
		t.Fatalf("expected no answerer without QA_BASE_URL")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if BuildConfirmer(cfg, nil, logger) != nil {
		t.Fatalf("expected no confirmer without twilio credentials")
	}
	if BuildEventPublisher(cfg, nil) != nil {
		t.Fatalf("expected no publisher without queue url")
	}
}

func TestBuildAnswererWithoutSummarizer(t *testing.T) {
	cfg := &appconfig.Config{QABaseURL: "http://qa.internal", QATimeout: time.Second}
	answerer, _ := BuildAnswerer(context.Background(), cfg, logging.New("error"))
	if _, ok := answerer.(*qa.Service); !ok {
		t.Fatalf("expected qa service, got %T", answerer)
	}
}

func TestBuildConfirmerWithTwilio(t *testing.T) {
	cfg := &appconfig.Config{
		TwilioAccountSID: "AC123",
		TwilioAuthToken:  "secret",
		TwilioFromNumber: "+15550000000",
		SMSCountryCode:   "+91",
	}
	if BuildConfirmer(cfg, nil, logging.New("error")) == nil {
		t.Fatalf("expected sms confirmer")
	}
}

func TestBuildServicesWiresEngine(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.yaml")
	if err := os.WriteFile(rosterPath, []byte(roster), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	cfg := &appconfig.Config{
		Timezone:           "Asia/Kolkata",
		RosterPath:         rosterPath,
		BookingWindowDays:  61,
		SlotWidth:          30 * time.Minute,
		PMCutoffHour:       8,
		FuzzyLowThreshold:  60,
		FuzzyHighThreshold: 85,
		MaxEmptyRetries:    2,
		PostBookingMenu:    true,
		SessionBackend:     appconfig.SessionBackendMemory,
		SessionTTL:         30 * time.Minute,
		AuditLogPath:       filepath.Join(dir, "bookings.jsonl"),
	}

	svc, err := BuildServices(context.Background(), cfg, Clients{}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	defer func() { _ = svc.Close() }()

	if got := svc.Directory.Departments(); len(got) != 1 || got[0] != "Cardiology" {
		t.Fatalf("unexpected departments %v", got)
	}
	prompt, err := svc.Engine.Turn(context.Background(), dialogue.Input{CallID: "CA-boot"})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if prompt.State != dialogue.StateStart || prompt.Hangup {
		t.Fatalf("expected greeting, got %+v", prompt)
	}
	sess, err := svc.Sessions.Get(context.Background(), "CA-boot")
	if err != nil || sess == nil {
		t.Fatalf("expected stored session, got %+v err=%v", sess, err)
	}
}

func TestBuildServicesMissingRoster(t *testing.T) {
	cfg := &appconfig.Config{RosterPath: filepath.Join(t.TempDir(), "missing.yaml"), SessionBackend: appconfig.SessionBackendMemory}
	if _, err := BuildServices(context.Background(), cfg, Clients{}, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for missing roster")
	}
}
