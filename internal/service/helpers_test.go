package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/dangerclosesec/coursehub/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(testutil.NewDB(t))
}

func newCache(t *testing.T) *service.CacheService {
	t.Helper()
	cs := service.NewCacheService(service.CacheConfig{TTL: time.Minute, CleanupFreq: time.Minute})
	t.Cleanup(cs.Close)
	return cs
}

// userActor returns an actor with a personal account already in place.
func userActor(t *testing.T, store *repository.Store, email string) service.Actor {
	t.Helper()
	id := uuid.New()
	require.NoError(t, store.Accounts.Create(context.Background(), &model.Account{
		ID: id, Name: email, Email: email, IsPersonalAccount: true, PrimaryOwnerUserID: id,
	}))
	require.NoError(t, store.Accounts.AddMember(context.Background(), &model.AccountMembership{
		AccountID: id, UserID: id, Role: model.RoleOwner,
	}))
	return service.Actor{UserID: id, Email: email}
}

// seedCourse creates a published course with one module of n text lessons,
// authored by a fresh user.
func seedCourse(t *testing.T, store *repository.Store, n int) (*model.Course, []*model.Lesson, service.Actor) {
	t.Helper()
	ctx := context.Background()
	author := userActor(t, store, "author-"+uuid.NewString()[:8]+"@example.com")

	course := &model.Course{
		AccountID: author.UserID,
		Title:     "Go Basics",
		Slug:      "go-basics-" + uuid.NewString()[:8],
		Status:    model.CoursePublished,
	}
	require.NoError(t, store.Courses.Create(ctx, course))

	module := &model.CourseModule{CourseID: course.ID, Title: "Intro"}
	require.NoError(t, store.Courses.CreateModule(ctx, module))

	lessons := make([]*model.Lesson, 0, n)
	for i := 0; i < n; i++ {
		l := &model.Lesson{
			ModuleID: module.ID,
			CourseID: course.ID,
			Title:    fmt.Sprintf("Lesson %d", i+1),
			Kind:     model.LessonText,
			Content:  "body",
		}
		require.NoError(t, store.Courses.CreateLesson(ctx, l))
		lessons = append(lessons, l)
	}
	return course, lessons, author
}

// teamWithSeats creates a team account owned by owner holding seats for
// the course.
func teamWithSeats(t *testing.T, store *repository.Store, owner service.Actor, courseID uuid.UUID, seats int) *model.Account {
	t.Helper()
	ctx := context.Background()
	team := &model.Account{Name: "Acme", Email: owner.Email, PrimaryOwnerUserID: owner.UserID}
	require.NoError(t, store.Accounts.Create(ctx, team))
	require.NoError(t, store.Accounts.AddMember(ctx, &model.AccountMembership{
		AccountID: team.ID, UserID: owner.UserID, Role: model.RoleOwner,
	}))
	_, err := store.Seats.AddSeats(ctx, team.ID, courseID, seats)
	require.NoError(t, err)
	return team
}

func pool(t *testing.T, store *repository.Store, accountID, courseID uuid.UUID) *model.CourseSeat {
	t.Helper()
	p, err := store.Seats.FindPool(context.Background(), accountID, courseID)
	require.NoError(t, err)
	return p
}
