package repository

import (
	"testing"
)

// 各Postgresリポジトリがインターフェースを満たすことを検証

func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestPostgresCaseRepo_ImplementsInterface(t *testing.T) {
	var _ CaseRepository = (*PostgresCaseRepo)(nil)
}

func TestPostgresEvaluationRepo_ImplementsInterface(t *testing.T) {
	var _ EvaluationRepository = (*PostgresEvaluationRepo)(nil)
}

func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

func TestNewPostgresEvaluationRepo_Initializes(t *testing.T) {
	repo := NewPostgresEvaluationRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
