package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx code", err: &pgconn.PgError{Code: "23505", ConstraintName: "votes_proposal_member_key"}, want: true},
		{name: "pgx constraint match", err: &pgconn.PgError{Code: "23505", ConstraintName: "votes_proposal_member_key"}, constraint: "votes_proposal_member_key", want: true},
		{name: "pgx constraint mismatch", err: &pgconn.PgError{Code: "23505", ConstraintName: "other"}, constraint: "votes_proposal_member_key", want: false},
		{name: "pgx other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "pq code", err: &pq.Error{Code: "23505"}, want: true},
		{name: "sqlite text", err: errors.New("UNIQUE constraint failed: votes.proposal_id, votes.member_id"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
