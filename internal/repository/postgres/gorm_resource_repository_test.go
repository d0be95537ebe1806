package postgres_test

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/ResaleServiceTochka/internal/models"
	postgres "github.com/honeynil/ResaleServiceTochka/internal/repository/postgres"
	pkgerrors "github.com/honeynil/ResaleServiceTochka/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// updateMatcher matches by regexp and rejects any UPDATE that writes status.
var updateMatcher = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if strings.HasPrefix(actual, "UPDATE") && strings.Contains(actual, `"status"=`) {
		return fmt.Errorf("update writes status: %s", actual)
	}
	return sqlmock.QueryMatcherRegexp.Match(expected, actual)
})

func TestGormResourceRepository_Update(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(updateMatcher))
	require.NoError(t, err)
	defer db.Close()
	gdb, err := postgres.OpenGorm(db)
	require.NoError(t, err)
	repo := postgres.NewGormResourceRepository[models.Store](gdb, "store", "slug")
	ctx := context.Background()

	store := &models.Store{ID: 7, UserID: 1, Name: "Gift Hub", Slug: "gift-hub", Status: models.StatusActive}

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stores" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Update(ctx, store))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "stores" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		assert.ErrorIs(t, repo.Update(ctx, store), pkgerrors.ErrResourceNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
