package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nugget/axis/internal/planner"
)

func testStore(t *testing.T, driver string) *Store {
	t.Helper()
	db, err := OpenDB(driver, filepath.Join(t.TempDir(), "axis_test.db"))
	if err != nil {
		t.Fatalf("OpenDB(%s): %v", driver, err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := New(db, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func forEachDriver(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			fn(t, testStore(t, driver))
		})
	}
}

func TestOpenDB_UnknownDriver(t *testing.T) {
	if _, err := OpenDB("postgres", "x.db"); err == nil {
		t.Fatal("OpenDB with unknown driver should error")
	}
}

func TestCreateUser(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		u, err := s.CreateUser(ctx, "  Ada@Example.com ", "Ada", "hash")
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		if u.Email != "ada@example.com" {
			t.Errorf("email = %q, want normalized", u.Email)
		}

		got, err := s.UserByEmail(ctx, "ADA@example.com")
		if err != nil {
			t.Fatalf("UserByEmail: %v", err)
		}
		if got.ID != u.ID || got.PasswordHash != "hash" || got.Name != "Ada" {
			t.Errorf("UserByEmail = %+v", got)
		}

		if _, err := s.CreateUser(ctx, "ada@example.com", "Other", "x"); !errors.Is(err, ErrEmailTaken) {
			t.Errorf("duplicate CreateUser err = %v, want ErrEmailTaken", err)
		}
	})
}

func TestCreateUser_NoPassword(t *testing.T) {
	s := testStore(t, "sqlite3")
	u, err := s.CreateUser(context.Background(), "sso@example.com", "SSO", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	got, err := s.UserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if got.PasswordHash != "" {
		t.Errorf("PasswordHash = %q, want empty", got.PasswordHash)
	}
}

func TestUserLookups_NotFound(t *testing.T) {
	s := testStore(t, "sqlite3")
	ctx := context.Background()

	if _, err := s.UserByID(ctx, "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UserByID err = %v", err)
	}
	if _, err := s.UserByCalendarToken(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UserByCalendarToken(\"\") err = %v", err)
	}
	if err := s.UpdateName(ctx, "nope", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateName err = %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	s := testStore(t, "sqlite3")
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "ada@example.com", "Ada", "old")

	if err := s.UpdateName(ctx, u.ID, " Ada L. "); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, u.ID, "new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, _ := s.UserByID(ctx, u.ID)
	if got.Name != "Ada L." || got.PasswordHash != "new" {
		t.Errorf("after update: %+v", got)
	}
}

func TestCalendarToken(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		u, _ := s.CreateUser(ctx, "ada@example.com", "Ada", "h")

		tok, err := s.CalendarToken(ctx, u.ID)
		if err != nil {
			t.Fatalf("CalendarToken: %v", err)
		}
		if len(tok) != 32 {
			t.Errorf("token length = %d, want 32", len(tok))
		}
		again, _ := s.CalendarToken(ctx, u.ID)
		if again != tok {
			t.Errorf("CalendarToken not stable: %q then %q", tok, again)
		}

		owner, err := s.UserByCalendarToken(ctx, tok)
		if err != nil || owner.ID != u.ID {
			t.Fatalf("UserByCalendarToken = %v, %v", owner, err)
		}

		rotated, err := s.RotateCalendarToken(ctx, u.ID)
		if err != nil {
			t.Fatalf("RotateCalendarToken: %v", err)
		}
		if rotated == tok {
			t.Error("rotated token equals old token")
		}
		if _, err := s.UserByCalendarToken(ctx, tok); !errors.Is(err, ErrUserNotFound) {
			t.Errorf("old token still resolves: %v", err)
		}
	})
}

func TestLoadDocument_MissingIsEmpty(t *testing.T) {
	s := testStore(t, "sqlite3")
	doc, err := s.LoadDocument(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if doc.Tasks == nil || doc.DailyHabits == nil || doc.Schedule == nil || doc.FixedBlocks == nil {
		t.Errorf("collections not normalized: %+v", doc)
	}
	if doc.HasProfile() {
		t.Error("new document should have no profile")
	}
}

func TestSaveAndLoadDocument(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		u, _ := s.CreateUser(ctx, "ada@example.com", "Ada", "h")

		start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
		doc := &planner.Document{
			Profile: planner.Profile{"timezone": "UTC"},
			Tasks:   []planner.Task{{ID: "t1", Name: "Essay", Priority: planner.PriorityUrgentImportant, Order: 1}},
			Schedule: []planner.ScheduleBlock{
				{TaskID: "t1", Start: start, End: start.Add(time.Hour)},
			},
		}
		if err := s.SaveDocument(ctx, u.ID, doc); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}

		got, err := s.LoadDocument(ctx, u.ID)
		if err != nil {
			t.Fatalf("LoadDocument: %v", err)
		}
		if len(got.Tasks) != 1 || got.Tasks[0].Name != "Essay" {
			t.Errorf("tasks = %+v", got.Tasks)
		}
		if !got.Schedule[0].End.Equal(start.Add(time.Hour)) {
			t.Errorf("schedule = %+v", got.Schedule)
		}
		if got.DailyHabits == nil || got.Goals == nil {
			t.Error("collections should be normalized on read")
		}

		// Whole-document overwrite.
		doc.Tasks = nil
		if err := s.SaveDocument(ctx, u.ID, doc); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
		got, _ = s.LoadDocument(ctx, u.ID)
		if len(got.Tasks) != 0 {
			t.Errorf("tasks after overwrite = %+v", got.Tasks)
		}
	})
}

func TestSaveDocument_NotifiesObservers(t *testing.T) {
	s := testStore(t, "sqlite3")
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "ada@example.com", "Ada", "h")

	var gotUser string
	var gotTasks int
	s.OnSave(func(_ context.Context, userID string, doc *planner.Document) {
		gotUser = userID
		gotTasks = len(doc.Tasks)
	})

	doc := planner.New()
	doc.Tasks = append(doc.Tasks, planner.Task{ID: "t1", Name: "Essay"})
	if err := s.SaveDocument(ctx, u.ID, doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if gotUser != u.ID || gotTasks != 1 {
		t.Errorf("observer saw user=%q tasks=%d", gotUser, gotTasks)
	}
}

func TestDeleteUser_CascadesDocument(t *testing.T) {
	s := testStore(t, "sqlite3")
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "ada@example.com", "Ada", "h")

	doc := planner.New()
	doc.Tasks = append(doc.Tasks, planner.Task{ID: "t1", Name: "Essay"})
	s.SaveDocument(ctx, u.ID, doc)

	var deleted []string
	s.OnDelete(func(_ context.Context, userID string) {
		deleted = append(deleted, userID)
	})

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != u.ID {
		t.Errorf("delete observers saw %v", deleted)
	}
	if _, err := s.UserByID(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("user still present: %v", err)
	}
	got, _ := s.LoadDocument(ctx, u.ID)
	if len(got.Tasks) != 0 {
		t.Errorf("document survived account deletion: %+v", got.Tasks)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second DeleteUser err = %v", err)
	}
}
