package repositories

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anonto42/circle/backend/internal/models"
)

// openTestPostgres connects to POSTGRES_TEST_DSN or skips the test.
func openTestPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Follow{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, repo *PostgresUserRepository) *models.User {
	t.Helper()
	suffix := uuid.NewString()[:8]
	u := &models.User{Username: "it_" + suffix, Email: "it_" + suffix + "@example.com"}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	t.Cleanup(func() {
		repo.db.Where("follower_id = ? OR following_id = ?", u.ID, u.ID).Delete(&models.Follow{})
		repo.db.Where("id = ?", u.ID).Delete(&models.User{})
	})
	return u
}

func TestPostgresFollow_ConcurrentDoubleFollow(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(db)
	follows := NewPostgresFollowRepository(db)
	a := createTestUser(t, users)
	b := createTestUser(t, users)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- follows.Follow(ctx, a.ID, b.ID)
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrDuplicate) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d follows succeeded, want 1", ok)
	}

	gotA, _ := users.GetUserByID(ctx, a.ID)
	gotB, _ := users.GetUserByID(ctx, b.ID)
	if len(gotA.Following) != 1 || len(gotB.Followers) != 1 {
		t.Errorf("following=%v followers=%v", gotA.Following, gotB.Followers)
	}
}

func TestPostgresFollow_UnfollowRestoresState(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(db)
	follows := NewPostgresFollowRepository(db)
	a := createTestUser(t, users)
	b := createTestUser(t, users)

	if err := follows.Follow(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := follows.Unfollow(ctx, a.ID, b.ID); err != nil {
			t.Fatalf("Unfollow #%d: %v", i+1, err)
		}
	}

	gotA, _ := users.GetUserByID(ctx, a.ID)
	gotB, _ := users.GetUserByID(ctx, b.ID)
	if len(gotA.Following) != 0 || len(gotB.Followers) != 0 {
		t.Errorf("following=%v followers=%v", gotA.Following, gotB.Followers)
	}
	if ok, _ := follows.IsFollowing(ctx, a.ID, b.ID); ok {
		t.Error("edge still present")
	}
}

func TestPostgresUpdateProfile_KeepsGraph(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(db)
	follows := NewPostgresFollowRepository(db)
	a := createTestUser(t, users)
	b := createTestUser(t, users)
	if err := follows.Follow(ctx, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}

	bio := "hello"
	got, err := users.UpdateProfile(ctx, a.ID, models.UpdateProfileRequest{Bio: &bio})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bio != bio || len(got.Following) != 1 {
		t.Errorf("bio=%q following=%v", got.Bio, got.Following)
	}
}

func TestPostgresGetUserByID_InvalidID(t *testing.T) {
	db := openTestPostgres(t)
	users := NewPostgresUserRepository(db)
	if _, err := users.GetUserByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPostgresRebuildGraph_ConcurrentFollows(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(db)
	follows := NewPostgresFollowRepository(db)
	target := createTestUser(t, users)
	first := createTestUser(t, users)
	if err := follows.Follow(ctx, first.ID, target.ID); err != nil {
		t.Fatal(err)
	}

	// drop the cached followers so the rebuild has work to do
	if err := db.Model(&models.User{}).Where("id = ?", target.ID).
		Update("followers", gorm.Expr("'{}'::text[]")).Error; err != nil {
		t.Fatal(err)
	}

	const followers = 6
	others := make([]*models.User, followers)
	for i := range others {
		others[i] = createTestUser(t, users)
	}

	var wg sync.WaitGroup
	errs := make(chan error, followers+1)
	for _, u := range others {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- follows.Follow(ctx, id, target.ID)
		}(u.ID)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := follows.RebuildGraph(ctx, target.ID)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got, _ := users.GetUserByID(ctx, target.ID)
	edges, _ := follows.GetFollowerIDs(ctx, target.ID)
	if len(edges) != followers+1 || !SameIDSet(got.Followers, edges) {
		t.Errorf("followers=%v edges=%v", got.Followers, edges)
	}
	if changed, err := follows.RebuildGraph(ctx, target.ID); err != nil || changed {
		t.Errorf("second rebuild: changed=%v err=%v", changed, err)
	}
}
