package database

import (
	"testing"
	"time"

	"github.com/siherrmann/facter/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationsInsertHechoEntidad(t *testing.T) {
	database := initDB(t)

	_, articlesDbHandler, entidadesDbHandler, hechosDbHandler, relationsDbHandler, _ := initAllHandlers(t, database)

	article, _, err := articlesDbHandler.InsertArticle(testPayload("Hecho entidad relations article"))
	require.NoError(t, err)

	hecho := testHecho(article.ID, "Hecho para relaciones hecho-entidad.")
	require.NoError(t, hechosDbHandler.InsertHecho(hecho))

	entidad := &model.Entidad{Name: "Relations Person", Type: model.EntidadTypePerson}
	require.NoError(t, entidadesDbHandler.InsertEntidad(entidad))

	t.Run("Insert hecho-entidad relation", func(t *testing.T) {
		relation := &model.HechoEntidad{
			HechoID:   hecho.ID,
			EntidadID: entidad.ID,
			Role:      model.RoleProtagonist,
			Relevance: 8,
		}

		err := relationsDbHandler.InsertHechoEntidad(relation)
		assert.NoError(t, err, "Expected InsertHechoEntidad to not return an error")
		assert.NotEmpty(t, relation.ID)
		assert.WithinDuration(t, relation.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Reinserting same triple updates relevance", func(t *testing.T) {
		relation := &model.HechoEntidad{
			HechoID:   hecho.ID,
			EntidadID: entidad.ID,
			Role:      model.RoleProtagonist,
			Relevance: 5,
		}

		err := relationsDbHandler.InsertHechoEntidad(relation)
		assert.NoError(t, err)
		assert.Equal(t, 5, relation.Relevance, "Expected relevance to be updated")

		relations, err := relationsDbHandler.SelectHechoEntidadByHechos([]int64{hecho.ID})
		assert.NoError(t, err)
		require.Len(t, relations, 1, "Expected upsert instead of a second row")
		assert.Equal(t, 5, relations[0].Relevance)
	})

	t.Run("Relevance out of range fails", func(t *testing.T) {
		relation := &model.HechoEntidad{
			HechoID:   hecho.ID,
			EntidadID: entidad.ID,
			Role:      model.RoleMentioned,
			Relevance: 11,
		}

		err := relationsDbHandler.InsertHechoEntidad(relation)
		assert.Error(t, err, "Expected relevance outside 1-10 to fail the check constraint")
	})

	t.Run("Unknown hecho fails the foreign key", func(t *testing.T) {
		relation := &model.HechoEntidad{
			HechoID:   999999999,
			EntidadID: entidad.ID,
			Role:      model.RoleMentioned,
			Relevance: 5,
		}

		err := relationsDbHandler.InsertHechoEntidad(relation)
		assert.Error(t, err, "Expected unknown hecho reference to fail")
	})

	t.Run("Select hecho-entidad by entidad", func(t *testing.T) {
		relations, err := relationsDbHandler.SelectHechoEntidadByEntidad(entidad.ID)
		assert.NoError(t, err)
		require.NotEmpty(t, relations)
		assert.Equal(t, hecho.ID, relations[0].HechoID)
	})
}

func TestRelationsInsertHechoHecho(t *testing.T) {
	database := initDB(t)

	_, articlesDbHandler, _, hechosDbHandler, relationsDbHandler, _ := initAllHandlers(t, database)

	article, _, err := articlesDbHandler.InsertArticle(testPayload("Hecho hecho relations article"))
	require.NoError(t, err)

	cause := testHecho(article.ID, "El hecho causa.")
	require.NoError(t, hechosDbHandler.InsertHecho(cause))
	consequence := testHecho(article.ID, "El hecho consecuencia.")
	require.NoError(t, hechosDbHandler.InsertHecho(consequence))

	t.Run("Insert hecho-hecho relation", func(t *testing.T) {
		relation := &model.HechoHecho{
			SourceHechoID: cause.ID,
			TargetHechoID: consequence.ID,
			Type:          model.HechoRelCause,
			Strength:      7,
		}

		err := relationsDbHandler.InsertHechoHecho(relation)
		assert.NoError(t, err)
		assert.NotEmpty(t, relation.ID)
		assert.Equal(t, model.HechoRelCause, relation.Type)
	})
}

func TestRelationsInsertEntidadEntidad(t *testing.T) {
	database := initDB(t)

	_, _, entidadesDbHandler, _, relationsDbHandler, _ := initAllHandlers(t, database)

	member := &model.Entidad{Name: "Entidad Relation Member", Type: model.EntidadTypePerson}
	require.NoError(t, entidadesDbHandler.InsertEntidad(member))
	organization := &model.Entidad{Name: "Entidad Relation Organization", Type: model.EntidadTypeOrganization}
	require.NoError(t, entidadesDbHandler.InsertEntidad(organization))

	t.Run("Insert entidad-entidad relation with dates", func(t *testing.T) {
		startDate := time.Date(2013, 4, 19, 0, 0, 0, 0, time.UTC)
		relation := &model.EntidadEntidad{
			SourceEntidadID: member.ID,
			TargetEntidadID: organization.ID,
			Type:            model.EntidadRelMemberOf,
			StartDate:       &startDate,
			Strength:        9,
		}

		err := relationsDbHandler.InsertEntidadEntidad(relation)
		assert.NoError(t, err)
		assert.NotEmpty(t, relation.ID)
		require.NotNil(t, relation.StartDate)
		assert.True(t, startDate.Equal(*relation.StartDate), "Expected start date to round trip")
		assert.Nil(t, relation.EndDate)
	})
}
