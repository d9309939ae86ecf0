//go:build integration

package staff_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"quorum/internal/staff"
	"quorum/pkg/platform/sentinel"
	"quorum/pkg/testutil/containers"
)

const staffSchema = `
CREATE TABLE IF NOT EXISTS staff_directory (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	full_name     TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL,
	assigned_area TEXT NOT NULL DEFAULT '',
	pending       TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
)`

type PostgresDirectorySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	directory *staff.PostgresDirectory
}

func TestPostgresDirectorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDirectorySuite))
}

func (s *PostgresDirectorySuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), staffSchema)
	s.directory = staff.NewPostgresDirectory(s.postgres.Pool)
}

func (s *PostgresDirectorySuite) SetupTest() {
	_, err := s.postgres.Pool.Exec(context.Background(), `TRUNCATE staff_directory`)
	s.Require().NoError(err)
}

func newRecord(email, role, pending string) staff.Record {
	return staff.Record{
		ID:           uuid.New(),
		Email:        email,
		FullName:     "Test Person",
		Role:         role,
		AssignedArea: "north",
		Pending:      pending,
		PasswordHash: "$2a$10$fake",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func (s *PostgresDirectorySuite) TestSaveAndFindIsCaseInsensitive() {
	ctx := context.Background()
	rec := newRecord("Clerk@Quorum.Local", "Secretary", staff.PendingApproved)
	s.Require().NoError(s.directory.Save(ctx, rec))

	got, err := s.directory.FindByEmail(ctx, "clerk@quorum.local")
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(rec.Role, got.Role)
	s.Equal(rec.AssignedArea, got.AssignedArea)
}

func (s *PostgresDirectorySuite) TestFindApprovedFiltersPending() {
	ctx := context.Background()
	s.Require().NoError(s.directory.Save(ctx, newRecord("new@quorum.local", "Auditor", staff.PendingReview)))

	_, err := s.directory.FindApprovedByEmail(ctx, "new@quorum.local")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.directory.Save(ctx, newRecord("ok@quorum.local", "Auditor", staff.PendingApproved)))
	got, err := s.directory.FindApprovedByEmail(ctx, "ok@quorum.local")
	s.Require().NoError(err)
	s.Equal("ok@quorum.local", got.Email)
}

func (s *PostgresDirectorySuite) TestSaveUpsertsOnEmailConflict() {
	ctx := context.Background()
	rec := newRecord("clerk@quorum.local", "Secretary", staff.PendingReview)
	s.Require().NoError(s.directory.Save(ctx, rec))

	rec.Pending = staff.PendingApproved
	rec.Role = "Coordinator"
	s.Require().NoError(s.directory.Save(ctx, rec))

	got, err := s.directory.FindByEmail(ctx, "clerk@quorum.local")
	s.Require().NoError(err)
	s.Equal("Coordinator", got.Role)
	s.Equal(staff.PendingApproved, got.Pending)
}

func (s *PostgresDirectorySuite) TestDeleteMissingIsNotFound() {
	err := s.directory.Delete(context.Background(), "ghost@quorum.local")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
