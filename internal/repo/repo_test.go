package repo

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"shoptalk/pkg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "repo_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// One connection keeps sqlite from returning busy errors under the
	// concurrent tests; interleaving still happens at statement granularity.
	sqlDB.SetMaxOpenConns(1)
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(models.GetAllModels()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	// Same uniqueness guarantees the production migration creates
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_natural_key
		ON conversations(tenant_id, customer_phone, store_phone) WHERE deleted_at IS NULL`)
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_channel_message_id
		ON messages(tenant_id, channel_message_id) WHERE channel_message_id <> ''`)

	return db
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	db := setupTestDB(t)
	r := NewConversationRepository(db)
	tenantID := uuid.New()

	const n = 8
	results := make([]*models.Conversation, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := r.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
			if err != nil {
				t.Errorf("ResolveOrCreate failed: %v", err)
				return
			}
			results[i] = conv
		}(i)
	}
	wg.Wait()

	var count int64
	db.Model(&models.Conversation{}).Where("tenant_id = ?", tenantID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one conversation row, got %d", count)
	}
	for i := 1; i < n; i++ {
		if results[i] == nil || results[0] == nil {
			t.Fatal("missing result")
		}
		if results[i].ID != results[0].ID {
			t.Errorf("caller %d resolved a different conversation: %s vs %s", i, results[i].ID, results[0].ID)
		}
	}
}

func TestResolveOrCreateSeparateKeys(t *testing.T) {
	db := setupTestDB(t)
	r := NewConversationRepository(db)
	tenantID := uuid.New()

	a, err := r.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	b, err := r.ResolveOrCreate(tenantID, "+15551230000", "+15550002222")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if a.ID == b.ID {
		t.Error("conversations with different store phones must be distinct threads")
	}

	otherTenant := uuid.New()
	c, err := r.ResolveOrCreate(otherTenant, "+15551230000", "+15550001111")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if c.ID == a.ID {
		t.Error("same phones under a different tenant must be a distinct thread")
	}
}

func TestAppendIdempotent(t *testing.T) {
	db := setupTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)
	tenantID := uuid.New()

	conv, err := convRepo.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}

	first := &models.Message{
		BaseTenantModel:  models.BaseTenantModel{TenantID: tenantID},
		ConversationID:   conv.ID,
		Direction:        models.DirectionIn,
		Content:          "do you have candles",
		Status:           models.StatusDelivered,
		ChannelMessageID: "SM100",
	}
	stored, created, err := msgRepo.Append(first)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !created {
		t.Fatal("first append should create the row")
	}

	replay := &models.Message{
		BaseTenantModel:  models.BaseTenantModel{TenantID: tenantID},
		ConversationID:   conv.ID,
		Direction:        models.DirectionIn,
		Content:          "do you have candles",
		Status:           models.StatusDelivered,
		ChannelMessageID: "SM100",
	}
	dup, created, err := msgRepo.Append(replay)
	if err != nil {
		t.Fatalf("Append replay: %v", err)
	}
	if created {
		t.Error("replayed webhook must not create a second row")
	}
	if dup.ID != stored.ID {
		t.Errorf("replay resolved to a different row: %s vs %s", dup.ID, stored.ID)
	}

	var count int64
	db.Model(&models.Message{}).Where("tenant_id = ?", tenantID).Count(&count)
	if count != 1 {
		t.Errorf("expected one message row, got %d", count)
	}
}

func TestAppendWithoutChannelMessageID(t *testing.T) {
	db := setupTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)
	tenantID := uuid.New()

	conv, _ := convRepo.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")

	// Messages that never reached the provider have no channel ID and must
	// not dedupe against each other
	for i := 0; i < 2; i++ {
		_, created, err := msgRepo.Append(&models.Message{
			BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
			ConversationID:  conv.ID,
			Direction:       models.DirectionOut,
			Content:         "sorry, something went wrong",
			Status:          models.StatusFailed,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if !created {
			t.Error("messages without a channel ID must always insert")
		}
	}

	var count int64
	db.Model(&models.Message{}).Where("tenant_id = ?", tenantID).Count(&count)
	if count != 2 {
		t.Errorf("expected two message rows, got %d", count)
	}
}

func TestStatusMonotonicity(t *testing.T) {
	db := setupTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)
	tenantID := uuid.New()

	conv, _ := convRepo.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	seed := func(id string) {
		_, _, err := msgRepo.Append(&models.Message{
			BaseTenantModel:  models.BaseTenantModel{TenantID: tenantID},
			ConversationID:   conv.ID,
			Direction:        models.DirectionOut,
			Content:          "hello",
			Status:           models.StatusPending,
			ChannelMessageID: id,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	t.Run("forward transitions apply with timestamps", func(t *testing.T) {
		seed("OUT1")
		for _, status := range []models.MessageStatus{models.StatusSent, models.StatusDelivered, models.StatusRead} {
			if _, err := msgRepo.UpdateStatusByChannelMessageID("OUT1", status, ""); err != nil {
				t.Fatalf("update to %s: %v", status, err)
			}
		}
		msg, _ := msgRepo.GetByChannelMessageID(tenantID, "OUT1")
		if msg.Status != models.StatusRead {
			t.Errorf("final status = %s", msg.Status)
		}
		if msg.SentAt == nil || msg.DeliveredAt == nil || msg.ReadAt == nil {
			t.Error("per-status timestamps were not recorded")
		}
	})

	t.Run("downgrade ignored", func(t *testing.T) {
		seed("OUT2")
		msgRepo.UpdateStatusByChannelMessageID("OUT2", models.StatusDelivered, "")
		msgRepo.UpdateStatusByChannelMessageID("OUT2", models.StatusSent, "")
		msg, _ := msgRepo.GetByChannelMessageID(tenantID, "OUT2")
		if msg.Status != models.StatusDelivered {
			t.Errorf("late callback downgraded status to %s", msg.Status)
		}
	})

	t.Run("failed is terminal", func(t *testing.T) {
		seed("OUT3")
		msgRepo.UpdateStatusByChannelMessageID("OUT3", models.StatusFailed, "carrier rejected")
		msgRepo.UpdateStatusByChannelMessageID("OUT3", models.StatusDelivered, "")
		msg, _ := msgRepo.GetByChannelMessageID(tenantID, "OUT3")
		if msg.Status != models.StatusFailed {
			t.Errorf("status moved off terminal failed to %s", msg.Status)
		}
		if msg.FailureReason != "carrier rejected" {
			t.Errorf("failure reason = %q", msg.FailureReason)
		}
		if msg.FailedAt == nil {
			t.Error("failed_at was not recorded")
		}
	})

	t.Run("read is terminal", func(t *testing.T) {
		seed("OUT4")
		msgRepo.UpdateStatusByChannelMessageID("OUT4", models.StatusRead, "")
		msgRepo.UpdateStatusByChannelMessageID("OUT4", models.StatusFailed, "late failure")
		msg, _ := msgRepo.GetByChannelMessageID(tenantID, "OUT4")
		if msg.Status != models.StatusRead {
			t.Errorf("status moved off terminal read to %s", msg.Status)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := msgRepo.UpdateStatusByChannelMessageID("NOPE", models.StatusDelivered, "")
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected record-not-found, got %v", err)
		}
	})
}

func TestConversationLifecycle(t *testing.T) {
	db := setupTestDB(t)
	r := NewConversationRepository(db)
	tenantID := uuid.New()

	conv, _ := r.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	if conv.Status != models.ConversationActive {
		t.Fatalf("new conversation status = %s", conv.Status)
	}

	if err := r.UpdateStatus(tenantID, conv.ID, models.ConversationArchived); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := r.Reactivate(tenantID, conv.ID); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	got, _ := r.GetByID(tenantID, conv.ID)
	if got.Status != models.ConversationActive {
		t.Errorf("reactivated status = %s", got.Status)
	}

	now := time.Now()
	if err := r.TouchLastMessage(tenantID, conv.ID, now); err != nil {
		t.Fatalf("TouchLastMessage: %v", err)
	}
	got, _ = r.GetByID(tenantID, conv.ID)
	if got.LastMessageAt == nil {
		t.Error("last_message_at was not set")
	}

	if err := r.UpdateStatus(tenantID, uuid.New(), models.ConversationResolved); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("updating a missing conversation: expected record-not-found, got %v", err)
	}
}

func TestListByConversationOrder(t *testing.T) {
	db := setupTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)
	tenantID := uuid.New()

	conv, _ := convRepo.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	contents := []string{"hi", "hello! how can I help", "any candles?"}
	for i, c := range contents {
		msg := &models.Message{
			BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
			ConversationID:  conv.ID,
			Direction:       models.DirectionIn,
			Content:         c,
		}
		// Force distinct created_at values so ordering is deterministic
		msg.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if _, _, err := msgRepo.Append(msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := msgRepo.ListByConversation(tenantID, conv.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("total = %d", page.Total)
	}
	for i, c := range contents {
		if page.Data[i].Content != c {
			t.Errorf("message %d = %q, expected %q", i, page.Data[i].Content, c)
		}
	}
}

func TestChannelGetByPhone(t *testing.T) {
	db := setupTestDB(t)
	r := NewChannelRepository(db)
	tenantID := uuid.New()

	active := &models.Channel{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            "store whatsapp",
		Type:            "whatsapp",
		StorePhone:      "+15550001111",
		IsActive:        true,
	}
	if err := r.Create(active); err != nil {
		t.Fatalf("Create: %v", err)
	}
	inactive := &models.Channel{
		BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
		Name:            "old sms",
		Type:            "sms",
		StorePhone:      "+15550009999",
		IsActive:        false,
	}
	if err := r.Create(inactive); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.GetByPhone("whatsapp", "+15550001111")
	if err != nil {
		t.Fatalf("GetByPhone: %v", err)
	}
	if got.ID != active.ID {
		t.Errorf("resolved wrong channel %s", got.ID)
	}

	if _, err := r.GetByPhone("sms", "+15550001111"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("wrong type lookup: expected record-not-found, got %v", err)
	}
	if _, err := r.GetByPhone("sms", "+15550009999"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("inactive channel lookup: expected record-not-found, got %v", err)
	}
}

func TestRecentByConversation(t *testing.T) {
	db := setupTestDB(t)
	convRepo := NewConversationRepository(db)
	msgRepo := NewMessageRepository(db)
	tenantID := uuid.New()

	conv, _ := convRepo.ResolveOrCreate(tenantID, "+15551230000", "+15550001111")
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			BaseTenantModel: models.BaseTenantModel{TenantID: tenantID},
			ConversationID:  conv.ID,
			Direction:       models.DirectionIn,
			Content:         string(rune('a' + i)),
		}
		msg.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if _, _, err := msgRepo.Append(msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := msgRepo.RecentByConversation(tenantID, conv.ID, 3)
	if err != nil {
		t.Fatalf("RecentByConversation: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d messages", len(recent))
	}
	if recent[0].Content != "c" || recent[2].Content != "e" {
		t.Errorf("expected newest three in chronological order, got %q..%q", recent[0].Content, recent[2].Content)
	}
}
