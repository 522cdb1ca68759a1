package types

import (
	"testing"
	"time"
)

func validSession(id, classID string, active bool, startedAt time.Time) *Session {
	return &Session{
		ID:            id,
		ClassID:       classID,
		ClassName:     "6.A",
		LeaderID:      "teacher-1",
		LeaderName:    "Ms. Novak",
		IsActive:      active,
		StartedAt:     startedAt,
		DocumentPath:  "/doc/1",
		DocumentTitle: "Lesson 1",
		LastHeartbeat: startedAt,
	}
}

func TestSession_UpsertFollower_NeverDuplicates(t *testing.T) {
	session := validSession("s1", "c1", true, time.Now())
	first := time.Now().Add(-time.Minute)
	second := time.Now()

	session.UpsertFollower("f1", "Ann", first)
	session.UpsertFollower("f1", "Ann", second)

	if len(session.ConnectedFollowers) != 1 {
		t.Fatalf("expected 1 presence entry, got %d", len(session.ConnectedFollowers))
	}

	entry := session.ConnectedFollowers[0]
	if !entry.JoinedAt.Equal(first) {
		t.Errorf("JoinedAt changed on re-registration: got %v want %v", entry.JoinedAt, first)
	}
	if !entry.LastSeen.Equal(second) {
		t.Errorf("LastSeen not refreshed: got %v want %v", entry.LastSeen, second)
	}
	if !entry.IsActive {
		t.Error("re-registration must force the entry active")
	}
}

func TestSession_UpsertFollower_PreservesJoinOrder(t *testing.T) {
	session := validSession("s1", "c1", true, time.Now())
	now := time.Now()

	session.UpsertFollower("f1", "Ann", now)
	session.UpsertFollower("f2", "Petr", now.Add(time.Second))
	session.UpsertFollower("f1", "Ann", now.Add(2*time.Second))

	if session.ConnectedFollowers[0].ID != "f1" || session.ConnectedFollowers[1].ID != "f2" {
		t.Errorf("join order not preserved: %v", session.ConnectedFollowers)
	}
}

func TestSession_IsExpired(t *testing.T) {
	now := time.Now()
	retention := time.Hour

	inactiveOld := validSession("s1", "c1", false, now.Add(-90*time.Minute))
	if !inactiveOld.IsExpired(now, retention) {
		t.Error("inactive session older than retention should be expired")
	}

	inactiveRecent := validSession("s2", "c1", false, now.Add(-30*time.Minute))
	if inactiveRecent.IsExpired(now, retention) {
		t.Error("inactive session inside retention window must be kept")
	}

	activeOld := validSession("s3", "c1", true, now.Add(-24*time.Hour))
	if activeOld.IsExpired(now, retention) {
		t.Error("active sessions are retained indefinitely")
	}
}

func TestSession_Clone_IsDeep(t *testing.T) {
	section := "intro"
	session := validSession("s1", "c1", true, time.Now())
	session.CurrentSection = &section
	session.UpsertFollower("f1", "Ann", time.Now())

	clone := session.Clone()
	clone.ConnectedFollowers[0].IsActive = false
	*clone.CurrentSection = "changed"

	if !session.ConnectedFollowers[0].IsActive {
		t.Error("mutating clone followers must not affect the original")
	}
	if *session.CurrentSection != "intro" {
		t.Error("mutating clone section must not affect the original")
	}
}

func TestActiveSessionForClass_PicksMostRecentActive(t *testing.T) {
	now := time.Now()
	sessions := []*Session{
		validSession("old", "c1", true, now.Add(-time.Hour)),
		validSession("new", "c1", true, now.Add(-time.Minute)),
		validSession("ended", "c1", false, now),
		validSession("other", "c2", true, now),
	}

	got := ActiveSessionForClass(sessions, "c1")
	if got == nil || got.ID != "new" {
		t.Fatalf("expected most recently started active session 'new', got %+v", got)
	}

	if ActiveSessionForClass(sessions, "c3") != nil {
		t.Error("class without an active session should resolve to nil")
	}
}

func TestSession_Validate(t *testing.T) {
	session := validSession("s1", "c1", true, time.Now())
	if err := session.Validate(); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}

	bad := validSession("s1", "c1", true, time.Now())
	bad.DocumentPath = "doc/no-root"
	if err := bad.Validate(); err != ErrInvalidDocumentPath {
		t.Errorf("expected ErrInvalidDocumentPath, got %v", err)
	}

	bad = validSession("s1", "c 1", true, time.Now())
	if err := bad.Validate(); err != ErrInvalidClassID {
		t.Errorf("expected ErrInvalidClassID, got %v", err)
	}
}

func TestIsValidID(t *testing.T) {
	if !IsValidID("student_01-a") {
		t.Error("alphanumeric with underscore/hyphen should be valid")
	}
	if IsValidID("") {
		t.Error("empty ID should be invalid")
	}
	if IsValidID("has space") {
		t.Error("spaces should be invalid")
	}
}
