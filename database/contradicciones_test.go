package database

import (
	"testing"
	"time"

	"github.com/siherrmann/facter/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContradiccionesInsertAndSelect(t *testing.T) {
	database := initDB(t)

	_, articlesDbHandler, _, hechosDbHandler, _, contradiccionesDbHandler := initAllHandlers(t, database)

	article, _, err := articlesDbHandler.InsertArticle(testPayload("Contradicciones article"))
	require.NoError(t, err)

	hecho := testHecho(article.ID, "El ministro renunció el martes.")
	require.NoError(t, hechosDbHandler.InsertHecho(hecho))
	contradicted := testHecho(article.ID, "El ministro renunció el jueves.")
	require.NoError(t, hechosDbHandler.InsertHecho(contradicted))

	t.Run("Insert contradiccion", func(t *testing.T) {
		contradiccion := &model.Contradiccion{
			HechoID:            hecho.ID,
			ContradictsHechoID: contradicted.ID,
			Type:               model.ContradiccionDate,
			Severity:           3,
			Explanation:        "Ambos hechos fechan la misma renuncia en días distintos.",
		}

		err := contradiccionesDbHandler.InsertContradiccion(contradiccion)
		assert.NoError(t, err, "Expected InsertContradiccion to not return an error")
		assert.NotEmpty(t, contradiccion.ID)
		assert.WithinDuration(t, contradiccion.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Severity out of range fails", func(t *testing.T) {
		contradiccion := &model.Contradiccion{
			HechoID:            hecho.ID,
			ContradictsHechoID: contradicted.ID,
			Type:               model.ContradiccionValue,
			Severity:           6,
		}

		err := contradiccionesDbHandler.InsertContradiccion(contradiccion)
		assert.Error(t, err, "Expected severity outside 1-5 to fail the check constraint")
	})

	t.Run("Select contradicciones from either side", func(t *testing.T) {
		fromHecho, err := contradiccionesDbHandler.SelectContradiccionesByHecho(hecho.ID)
		assert.NoError(t, err)
		require.Len(t, fromHecho, 1)
		assert.Equal(t, model.ContradiccionDate, fromHecho[0].Type)

		fromContradicted, err := contradiccionesDbHandler.SelectContradiccionesByHecho(contradicted.ID)
		assert.NoError(t, err)
		require.Len(t, fromContradicted, 1)
		assert.Equal(t, fromHecho[0].ID, fromContradicted[0].ID, "Expected the same contradiction from either side")
	})
}
