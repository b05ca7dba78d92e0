package facter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	"github.com/stretchr/testify/assert"
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

// phaseResponses returns one valid generation response per phase, with entity
// names and contents parameterized so tests do not collide on the canonical
// name index or the article hash.
func phaseResponses(suffix string) []string {
	return []string{
		fmt.Sprintf(`{
			"hechos": [
				{"id": 1, "contenido": "El ministro %s anunció un aumento del salario mínimo.", "fecha": "2024-05-14", "tipo_hecho": "announcement", "paises": ["Venezuela"]},
				{"id": 2, "contenido": "Sindicatos de %s convocaron protestas.", "fecha": "2024-05-15", "tipo_hecho": "occurrence", "paises": ["Venezuela"]}
			],
			"entidades": [
				{"id": 1, "nombre": "Ministro %s", "tipo": "person", "descripcion": "- Ministro de economía"},
				{"id": 2, "nombre": "Sindicato %s", "tipo": "organization"}
			]
		}`, suffix, suffix, suffix, suffix),
		`{
			"citas": [{"entidad_id": 1, "hecho_id": 1, "contenido": "El aumento regirá desde junio."}],
			"datos_cuantitativos": [{"hecho_id": 1, "indicador": "salario mínimo", "valor": 130, "unidad": "USD"}]
		}`,
		`{
			"hecho_entidad": [
				{"hecho_id": 1, "entidad_id": 1, "rol": "protagonist", "relevancia": 9},
				{"hecho_id": 2, "entidad_id": 2, "rol": "organizer", "relevancia": 7}
			],
			"hecho_hecho": [{"hecho_origen_id": 1, "hecho_destino_id": 2, "tipo_relacion": "cause", "fuerza": 6}],
			"entidad_entidad": [{"entidad_origen_id": 1, "entidad_destino_id": 2, "tipo_relacion": "opposed_to", "fuerza": 5}]
		}`,
	}
}

// fakeGenerationServer serves one canned response per call, in order.
func fakeGenerationServer(t *testing.T, responses []string) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := int(calls.Add(1)) - 1
		require.Less(t, call, len(responses), "unexpected generation call %d", call+1)
		response := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: responses[call]}},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func initFacter(t *testing.T, responses []string) (*Facter, *atomic.Int32) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")

	server, calls := fakeGenerationServer(t, responses)

	config := model.DefaultConfig()
	config.Workers = 2
	config.Generation.APIKey = "test-key"
	config.Generation.BaseURL = server.URL
	config.Generation.BackoffBase = time.Millisecond
	config.Resolution.EmbeddingDim = 4

	f, err := NewFacter(config, dbConfig)
	require.NoError(t, err, "failed to create facter")
	require.NotNil(t, f)

	t.Cleanup(func() {
		f.Close()
	})

	return f, calls
}

func testPayload(title string) *model.ArticlePayload {
	return &model.ArticlePayload{
		Title:           title,
		Medium:          "El Nacional",
		Country:         "Venezuela",
		PublicationDate: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		ReferenceDate:   time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		Content:         "El ministro anunció un aumento del salario mínimo. Sindicatos convocaron protestas. " + title,
	}
}

func TestNewFacter(t *testing.T) {
	t.Run("Valid call NewFacter", func(t *testing.T) {
		f, _ := initFacter(t, nil)
		assert.NotNil(t, f.DB)
		assert.NotNil(t, f.Jobs)
		assert.NotNil(t, f.Articles)
		assert.NotNil(t, f.Entidades)
		assert.NotNil(t, f.Hechos)
		assert.NotNil(t, f.Relations)
		assert.NotNil(t, f.Contradicciones)
		assert.NotNil(t, f.Orchestrator)
		assert.NotNil(t, f.Resolver)
		assert.NotNil(t, f.Detector)
		assert.NotNil(t, f.Gateway)
		assert.NotNil(t, f.Reporter)
		assert.NotNil(t, f.Pool)
	})

	t.Run("Missing API key fails", func(t *testing.T) {
		helper.SetTestDatabaseConfigEnvs(t, dbPort)
		dbConfig, err := helper.NewDatabaseConfiguration()
		require.NoError(t, err)

		config := model.DefaultConfig()
		config.Resolution.EmbeddingDim = 4

		_, err = NewFacter(config, dbConfig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("Facter with nil database handles Close gracefully", func(t *testing.T) {
		f := &Facter{}
		assert.NoError(t, f.Close())
	})
}

func TestSubmitArticle(t *testing.T) {
	t.Run("Valid submission creates pending job", func(t *testing.T) {
		f, _ := initFacter(t, nil)

		job, err := f.SubmitArticle(testPayload("Aumento salarial submit"))
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 0, job.Phase)
		assert.NotEqual(t, 0, job.ID)
	})

	t.Run("Missing content rejected", func(t *testing.T) {
		f, _ := initFacter(t, nil)

		_, err := f.SubmitArticle(&model.ArticlePayload{Title: "Sin contenido"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "title and content are required")
	})

	t.Run("Missing reference date falls back to publication date", func(t *testing.T) {
		f, _ := initFacter(t, nil)

		payload := testPayload("Aumento salarial fallback")
		payload.ReferenceDate = time.Time{}

		job, err := f.SubmitArticle(payload)
		require.NoError(t, err)
		assert.True(t, job.Payload.ReferenceDate.Equal(payload.PublicationDate))
	})
}

func TestProcessJob(t *testing.T) {
	t.Run("Full pipeline run completes the job", func(t *testing.T) {
		f, calls := initFacter(t, phaseResponses("Pérez pipeline"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial pipeline"))
		require.NoError(t, err)

		outcome, err := f.ProcessJob(context.Background(), job.RID)
		require.NoError(t, err)
		require.NotNil(t, outcome)
		assert.False(t, outcome.Duplicate)
		assert.Len(t, outcome.HechoIDs, 2)
		assert.Len(t, outcome.EntidadIDs, 2)
		assert.Equal(t, int32(3), calls.Load(), "Expected one generation call per phase")

		// Job reached completed with all phases checkpointed.
		processed, err := f.Job(job.RID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, processed.Status)
		assert.Equal(t, 3, processed.Phase)

		// The consolidated result is fully persisted.
		hecho, err := f.Hechos.SelectHecho(outcome.HechoIDs[1])
		require.NoError(t, err)
		assert.Equal(t, outcome.ArticleID, hecho.ArticleID)
		assert.Contains(t, hecho.Content, "salario mínimo")

		entidad, err := f.Entidades.SelectEntidad(outcome.EntidadIDs[1])
		require.NoError(t, err)
		assert.Equal(t, "Ministro Pérez pipeline", entidad.Name)
	})

	t.Run("Resubmitting processed content returns the completed job", func(t *testing.T) {
		f, calls := initFacter(t, phaseResponses("Pérez resubmit"))

		payload := testPayload("Aumento salarial resubmit")
		job, err := f.SubmitArticle(payload)
		require.NoError(t, err)

		_, err = f.ProcessJob(context.Background(), job.RID)
		require.NoError(t, err)

		resubmitted, err := f.SubmitArticle(payload)
		require.NoError(t, err)
		assert.Equal(t, job.RID, resubmitted.RID)
		assert.Equal(t, model.JobStatusCompleted, resubmitted.Status)
		assert.Equal(t, int32(3), calls.Load(), "Expected no further generation calls")
	})

	t.Run("Processing a terminal job fails", func(t *testing.T) {
		f, _ := initFacter(t, phaseResponses("Pérez terminal"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial terminal"))
		require.NoError(t, err)

		_, err = f.ProcessJob(context.Background(), job.RID)
		require.NoError(t, err)

		_, err = f.ProcessJob(context.Background(), job.RID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected pending or processing")
	})

	t.Run("Worker pool processes enqueued jobs", func(t *testing.T) {
		f, _ := initFacter(t, phaseResponses("Pérez pool"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial pool"))
		require.NoError(t, err)

		f.StartWorkers()
		f.EnqueueJob(job.RID)

		results := f.Pool.Wait()
		require.Len(t, results, 1)
		require.NoError(t, results[0].Err)
		assert.Equal(t, job.RID, results[0].RID)
		assert.Len(t, results[0].Outcome.HechoIDs, 2)
	})
}

func TestCancelJob(t *testing.T) {
	t.Run("Pending job can be cancelled", func(t *testing.T) {
		f, _ := initFacter(t, nil)

		job, err := f.SubmitArticle(testPayload("Aumento salarial cancel"))
		require.NoError(t, err)

		cancelled, err := f.CancelJob(job.RID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)
	})

	t.Run("Cancellation after the last phase checkpoint is observed before commit", func(t *testing.T) {
		f, calls := initFacter(t, nil)

		payload := testPayload("Aumento salarial late cancel")
		job, err := f.SubmitArticle(payload)
		require.NoError(t, err)

		// An earlier run already checkpointed every phase.
		processing, err := f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusProcessing, "")
		require.NoError(t, err)
		_, err = f.Jobs.UpdateJobCheckpoint(processing.RID, processing.Version, 3, &model.Extraction{})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = f.ProcessJob(ctx, job.RID)
		require.ErrorIs(t, err, model.ErrJobCancelled)
		assert.Zero(t, calls.Load(), "Expected no generation calls for the resumed phases")

		cancelled, err := f.Job(job.RID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, cancelled.Status)

		article, err := f.Articles.SelectArticleByHash(payload.ContentHash())
		require.NoError(t, err)
		assert.Nil(t, article, "Expected nothing committed for a cancelled job")
	})

	t.Run("Completed job cannot be cancelled", func(t *testing.T) {
		f, _ := initFacter(t, phaseResponses("Pérez cancelterm"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial cancelterm"))
		require.NoError(t, err)

		_, err = f.ProcessJob(context.Background(), job.RID)
		require.NoError(t, err)

		_, err = f.CancelJob(job.RID)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInvalidTransition)
	})
}

func TestStatus(t *testing.T) {
	t.Run("Snapshot reflects processed jobs", func(t *testing.T) {
		f, _ := initFacter(t, phaseResponses("Pérez status"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial status"))
		require.NoError(t, err)

		_, err = f.ProcessJob(context.Background(), job.RID)
		require.NoError(t, err)

		snapshot, err := f.Status()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snapshot.JobCounts[model.JobStatusCompleted], int64(1))
		assert.Zero(t, snapshot.ErrorRate)
		assert.Equal(t, int64(1), snapshot.Phases["basic_elements"].Invocations)
		assert.Equal(t, int64(1), snapshot.Phases["relations"].Invocations)
	})
}

func TestResumeProcessing(t *testing.T) {
	t.Run("Interrupted jobs are re-enqueued", func(t *testing.T) {
		f, _ := initFacter(t, phaseResponses("Pérez resume"))

		job, err := f.SubmitArticle(testPayload("Aumento salarial resume"))
		require.NoError(t, err)

		// Simulate an earlier run that crashed mid-processing.
		_, err = f.Jobs.TransitionJob(job.RID, job.Version, model.JobStatusProcessing, "")
		require.NoError(t, err)

		f.StartWorkers()
		resumed, err := f.ResumeProcessing(10)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, resumed, 1)

		results := f.Pool.Wait()
		require.NotEmpty(t, results)
		for _, result := range results {
			if result.RID == job.RID {
				require.NoError(t, result.Err)
			}
		}

		processed, err := f.Job(job.RID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, processed.Status)
	})
}
