package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/halogen-labs/halogen/internal/app/domain/chat"
	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/domain/creator"
	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/storage"
	"github.com/halogen-labs/halogen/internal/platform/migrations"
)

func TestVectorRoundTrip(t *testing.T) {
	v := vector{0.25, -1, 3.5}
	val, err := v.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if val != "[0.25,-1,3.5]" {
		t.Fatalf("unexpected literal %q", val)
	}

	var parsed vector
	if err := parsed.Scan(val); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(parsed) != 3 || parsed[0] != 0.25 || parsed[1] != -1 || parsed[2] != 3.5 {
		t.Fatalf("unexpected roundtrip %v", parsed)
	}
}

func TestVectorScanRejectsGarbage(t *testing.T) {
	var v vector
	if err := v.Scan("0.25,-1"); err == nil {
		t.Fatal("expected error for missing brackets")
	}
	if err := v.Scan("[a,b]"); err == nil {
		t.Fatal("expected error for non-numeric elements")
	}
}

func TestInsertMessageWrapsOfferInTransaction(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()

	db := sqlx.NewDb(raw, "postgres")
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WithArgs("room-1", "user-1", "here is an offer").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	mock.ExpectQuery("INSERT INTO chat_contract_offers").
		WithArgs(int64(7), int64(150000)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	msg := &chat.Message{
		RoomID:     "room-1",
		FromUserID: "user-1",
		Content:    "here is an offer",
		Extra:      &chat.Extra{Kind: chat.ExtraContractCreated, PayoutCents: 150000},
	}
	if err := store.InsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if msg.ID != 7 {
		t.Fatalf("message id = %d, want 7", msg.ID)
	}
	if msg.Extra.OfferID != 3 {
		t.Fatalf("offer id = %d, want 3", msg.Extra.OfferID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInsertMessageMapsMissingOfferToNotFound(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()

	db := sqlx.NewDb(raw, "postgres")
	store := New(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO chat_messages").
		WithArgs("room-1", "user-1", "accepting").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), time.Now()))
	mock.ExpectExec("INSERT INTO chat_contract_offer_updates").
		WithArgs(int64(8), int64(999), "AcceptedByCreator").
		WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	msg := &chat.Message{
		RoomID:     "room-1",
		FromUserID: "user-1",
		Content:    "accepting",
		Extra: &chat.Extra{
			Kind:      chat.ExtraContractStatusChange,
			OfferID:   999,
			NewStatus: chat.OfferAcceptedByCreator,
		},
	}
	err = store.InsertMessage(context.Background(), msg)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("insert message error = %v, want storage.ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateInvitationMapsUniqueViolationToDuplicate(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()

	db := sqlx.NewDb(raw, "postgres")
	store := New(db)

	mock.ExpectExec("INSERT INTO company_invitations").
		WithArgs("comp-1", "a@example.com", false, "user-1").
		WillReturnError(&pq.Error{Code: "23505"})

	err = store.CreateInvitation(context.Background(), company.Invitation{
		CompanyID:    "comp-1",
		InvitedEmail: "a@example.com",
		FromUserID:   "user-1",
	})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("create invitation error = %v, want storage.ErrDuplicate", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReindexEmbeddingsRunsConcurrently(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()

	db := sqlx.NewDb(raw, "postgres")
	store := New(db)

	mock.ExpectExec("REINDEX INDEX CONCURRENTLY creator_profile_embedding").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("REINDEX INDEX CONCURRENTLY company_embedding").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("VACUUM ANALYZE creator_profiles").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("VACUUM ANALYZE companies").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.ReindexEmbeddings(context.Background()); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)

	creatorUser, err := store.CreateUser(ctx)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sponsorUser, err := store.CreateUser(ctx)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess := user.Session{Token: "integration-test-token", ExpiresAt: time.Now().Add(time.Hour), UserID: creatorUser.ID}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer store.DeleteSession(ctx, sess.Token)

	got, err := store.GetSessionUser(ctx, sess.Token, time.Now())
	if err != nil {
		t.Fatalf("get session user: %v", err)
	}
	if got.ID != creatorUser.ID {
		t.Fatalf("session user = %s, want %s", got.ID, creatorUser.ID)
	}

	emb := make([]float32, 1024)
	emb[0] = 1
	profile := creator.Profile{
		UserID:      creatorUser.ID,
		GivenName:   "Alex",
		FamilyName:  "Rivera",
		Pronouns:    "they/them",
		ProfileDesc: "indie game streams",
		ContentDesc: "speedruns",
		Embedding:   emb,
	}
	if err := store.UpsertCreatorProfile(ctx, profile); err != nil {
		t.Fatalf("upsert creator profile: %v", err)
	}

	matches, err := store.SearchCreators(ctx, emb, 5)
	if err != nil {
		t.Fatalf("search creators: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}

	comp, err := store.CreateCompany(ctx, company.Company{
		FullName:   "Acme Snacks",
		BannerDesc: "snack sponsorships",
		Industry:   []string{"food"},
		Embedding:  emb,
	})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	defer store.DeleteCompany(ctx, comp.ID)

	if err := store.AddMember(ctx, company.Member{CompanyID: comp.ID, UserID: sponsorUser.ID, IsAdmin: true}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	isAdmin, isMember, err := store.IsAdmin(ctx, comp.ID, sponsorUser.ID)
	if err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if !isAdmin || !isMember {
		t.Fatalf("is admin = (%v, %v), want (true, true)", isAdmin, isMember)
	}

	room, err := store.CreateRoom(ctx, chat.Room{CompanyID: comp.ID, UserID: creatorUser.ID})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	again, err := store.CreateRoom(ctx, chat.Room{CompanyID: comp.ID, UserID: creatorUser.ID})
	if err != nil {
		t.Fatalf("create room again: %v", err)
	}
	if again.ID != room.ID {
		t.Fatalf("duplicate room created: %s vs %s", again.ID, room.ID)
	}

	msg := &chat.Message{
		RoomID:     room.ID,
		FromUserID: sponsorUser.ID,
		Content:    "offer attached",
		Extra:      &chat.Extra{Kind: chat.ExtraContractCreated, PayoutCents: 250000},
	}
	if err := store.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert offer message: %v", err)
	}

	reply := &chat.Message{
		RoomID:     room.ID,
		FromUserID: creatorUser.ID,
		Content:    "accepting",
		Extra: &chat.Extra{
			Kind:      chat.ExtraContractStatusChange,
			OfferID:   msg.Extra.OfferID,
			NewStatus: chat.OfferAcceptedByCreator,
		},
	}
	if err := store.InsertMessage(ctx, reply); err != nil {
		t.Fatalf("insert status message: %v", err)
	}

	msgs, err := store.ListRoomMessages(ctx, room.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Extra == nil || msgs[0].Extra.Kind != chat.ExtraContractCreated {
		t.Fatalf("first message extra = %+v", msgs[0].Extra)
	}
	if msgs[1].Extra == nil || msgs[1].Extra.NewStatus != chat.OfferAcceptedByCreator {
		t.Fatalf("second message extra = %+v", msgs[1].Extra)
	}
}
