package service_test

import (
	"context"
	"testing"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll_ConsumesSeats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	owner := userActor(t, store, "owner@example.com")
	team := teamWithSeats(t, store, owner, course.ID, 2)
	svc := service.NewEnrollmentService(store, nil, discardLogger())

	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	e, err := svc.Enroll(ctx, owner, service.EnrollInput{UserID: alice, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentActive, e.Status)

	again, err := svc.Enroll(ctx, owner, service.EnrollInput{UserID: alice, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, 1, pool(t, store, team.ID, course.ID).UsedSeats, "re-enrolling is free")

	_, err = svc.Enroll(ctx, owner, service.EnrollInput{UserID: bob, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, owner, service.EnrollInput{UserID: carol, CourseID: course.ID, AccountID: team.ID})
	assert.ErrorIs(t, err, domain.ErrNoSeatsAvailable)
	_, err = store.Accounts.FindMembership(ctx, team.ID, carol)
	assert.ErrorIs(t, err, domain.ErrNotFound, "the failed enrollment rolls back the membership")

	require.NoError(t, svc.RevokeEnrollment(ctx, owner, e.ID))
	assert.Equal(t, 1, pool(t, store, team.ID, course.ID).UsedSeats)

	_, err = svc.Enroll(ctx, owner, service.EnrollInput{UserID: carol, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err, "a revoked seat can be reused")

	reactivated, err := svc.Enroll(ctx, owner, service.EnrollInput{UserID: alice, CourseID: course.ID, AccountID: team.ID})
	assert.ErrorIs(t, err, domain.ErrNoSeatsAvailable)
	assert.Nil(t, reactivated)
}

func TestEnroll_RequiresOwner(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	owner := userActor(t, store, "owner@example.com")
	team := teamWithSeats(t, store, owner, course.ID, 2)
	svc := service.NewEnrollmentService(store, nil, discardLogger())

	member := uuid.New()
	e, err := svc.Enroll(ctx, owner, service.EnrollInput{UserID: member, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err)

	memberActor := service.Actor{UserID: member}
	_, err = svc.Enroll(ctx, memberActor, service.EnrollInput{UserID: uuid.New(), CourseID: course.ID, AccountID: team.ID})
	assert.ErrorIs(t, err, domain.ErrNotAccountOwner, "members cannot hand out seats")

	err = svc.RevokeEnrollment(ctx, memberActor, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotAccountOwner)

	_, err = svc.Enroll(ctx, service.Actor{Service: true}, service.EnrollInput{UserID: uuid.New(), CourseID: course.ID, AccountID: team.ID})
	assert.NoError(t, err, "service callers bypass ownership")
}

func TestListEnrollments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	owner := userActor(t, store, "owner@example.com")
	team := teamWithSeats(t, store, owner, course.ID, 1)
	svc := service.NewEnrollmentService(store, nil, discardLogger())

	learner := service.Actor{UserID: uuid.New()}
	_, err := svc.Enroll(ctx, owner, service.EnrollInput{UserID: learner.UserID, CourseID: course.ID, AccountID: team.ID})
	require.NoError(t, err)

	list, err := svc.ListEnrollments(ctx, learner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, course.Title, list[0].CourseTitle)
	assert.Equal(t, team.ID, list[0].AccountID)

	_, err = svc.ListEnrollments(ctx, service.Actor{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSeatService(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	course, _, _ := seedCourse(t, store, 1)
	owner := userActor(t, store, "owner@example.com")
	team := teamWithSeats(t, store, owner, course.ID, 1)
	svc := service.NewSeatService(store, discardLogger())

	p, err := svc.AllocateSeats(ctx, team.ID, course.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, p.TotalSeats)

	_, err = svc.AllocateSeats(ctx, team.ID, course.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.AllocateSeats(ctx, uuid.New(), course.ID, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	// Seats are taken by invitations; reserve one directly to see it in usage.
	require.NoError(t, store.Seats.Reserve(ctx, team.ID, course.ID))

	usage, err := svc.SeatUsage(ctx, owner, team.ID)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, course.Title, usage[0].CourseTitle)
	assert.Equal(t, 5, usage[0].Total)
	assert.Equal(t, 1, usage[0].Used)
	assert.Equal(t, 4, usage[0].Available)

	require.NoError(t, store.Seats.Release(ctx, team.ID, course.ID))
	require.NoError(t, store.Seats.Release(ctx, team.ID, course.ID), "releasing an empty pool is a no-op")
	assert.Equal(t, 0, pool(t, store, team.ID, course.ID).UsedSeats)

	_, err = svc.SeatUsage(ctx, service.Actor{UserID: uuid.New()}, team.ID)
	assert.ErrorIs(t, err, domain.ErrNotAccountOwner)
}
