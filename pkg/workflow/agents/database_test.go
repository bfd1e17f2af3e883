package agents

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/akios/akios/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseAgentExecuteReturnsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "alice").
		AddRow(2, "bob")
	mock.ExpectQuery("select id, name from users").WillReturnRows(rows)

	a := NewDatabaseAgent(db, nil)
	cfg := map[string]any{"query": "select id, name from users"}
	require.NoError(t, a.Validate(cfg))

	ec := workflow.NewExecutionContext("wf", "run-1")
	out, err := a.Execute(context.Background(), cfg, ec)
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, 2, result["count"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseAgentExecutePropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("select 1").WillReturnError(assert.AnError)

	a := NewDatabaseAgent(db, nil)
	cfg := map[string]any{"query": "select 1"}
	require.NoError(t, a.Validate(cfg))

	ec := workflow.NewExecutionContext("wf", "run-1")
	_, err = a.Execute(context.Background(), cfg, ec)
	require.Error(t, err)
}
