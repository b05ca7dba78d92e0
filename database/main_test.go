package database

import (
	"context"
	"log"
	"testing"

	"github.com/siherrmann/facter/helper"
	facterSql "github.com/siherrmann/facter/sql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	database := helper.NewTestDatabase(dbConfig)

	err = facterSql.Init(database.Instance)
	require.NoError(t, err)

	return database
}

// initAllHandlers creates every handler in foreign key order. Tests that only
// exercise one handler still need the tables it references.
func initAllHandlers(t *testing.T, database *helper.Database) (*JobsDBHandler, *ArticlesDBHandler, *EntidadesDBHandler, *HechosDBHandler, *RelationsDBHandler, *ContradiccionesDBHandler) {
	jobsDbHandler, err := NewJobsDBHandler(database, true)
	require.NoError(t, err)
	articlesDbHandler, err := NewArticlesDBHandler(database, true)
	require.NoError(t, err)
	entidadesDbHandler, err := NewEntidadesDBHandler(database, 4, true)
	require.NoError(t, err)
	hechosDbHandler, err := NewHechosDBHandler(database, true)
	require.NoError(t, err)
	relationsDbHandler, err := NewRelationsDBHandler(database, true)
	require.NoError(t, err)
	contradiccionesDbHandler, err := NewContradiccionesDBHandler(database, true)
	require.NoError(t, err)

	return jobsDbHandler, articlesDbHandler, entidadesDbHandler, hechosDbHandler, relationsDbHandler, contradiccionesDbHandler
}
