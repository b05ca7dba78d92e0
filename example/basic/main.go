package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	facter "github.com/siherrmann/facter"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

const sampleArticle = `El ministro de economía anunció ayer un aumento del salario mínimo
a 130 dólares mensuales, vigente desde el primero de junio.

Los principales sindicatos del país convocaron protestas para la próxima semana,
argumentando que el aumento no compensa la inflación acumulada del último año.

Según cifras oficiales, la inflación interanual alcanzó el 59,2 por ciento en abril.`

func main() {
	if os.Getenv("OPENAI_API_KEY") == "" {
		log.Fatal("OPENAI_API_KEY is required for the extraction phases")
	}

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "facter",
		Username: "facter",
		Password: "facter",
		Schema:   "public",
	}

	config := model.DefaultConfig()
	config.Generation.APIKey = os.Getenv("OPENAI_API_KEY")

	f, err := facter.NewFacter(config, dbConfig)
	if err != nil {
		log.Fatalf("Failed to create facter: %v", err)
	}
	defer f.Close()

	// Submit one article
	payload := &model.ArticlePayload{
		Title:           "Gobierno anuncia aumento del salario mínimo",
		Medium:          "El Nacional",
		Country:         "Venezuela",
		PublicationDate: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		ReferenceDate:   time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		Content:         sampleArticle,
	}

	fmt.Println("Submitting article...")
	job, err := f.SubmitArticle(payload)
	if err != nil {
		log.Fatalf("Failed to submit article: %v", err)
	}
	fmt.Printf("Job %s created (%s)\n", job.RID, job.Status)

	// Run all extraction phases, resolution, contradiction detection and the
	// atomic commit in one call
	fmt.Println("\nProcessing...")
	outcome, err := f.ProcessJob(context.Background(), job.RID)
	if err != nil {
		log.Fatalf("Failed to process job: %v", err)
	}

	fmt.Printf("Committed article %d\n", outcome.ArticleID)
	fmt.Printf("Persisted %d hecho(s) and %d entidad(es)\n", len(outcome.HechoIDs), len(outcome.EntidadIDs))

	// Display the persisted facts
	for jobID, storeID := range outcome.HechoIDs {
		hecho, err := f.Hechos.SelectHecho(storeID)
		if err != nil {
			log.Fatalf("Failed to load hecho: %v", err)
		}
		fmt.Printf("\n--- Hecho %d (extracted as %d) ---\n", storeID, jobID)
		fmt.Printf("Type: %s\n", hecho.Type)
		fmt.Printf("Content: %s\n", hecho.Content)
		fmt.Printf("Occurred: %s to %s\n",
			hecho.OccurredFrom.Format("2006-01-02"), hecho.OccurredTo.Format("2006-01-02"))
	}

	// Display the service status
	snapshot, err := f.Status()
	if err != nil {
		log.Fatalf("Failed to build status snapshot: %v", err)
	}
	fmt.Printf("\nJobs completed: %d, error rate: %.2f\n",
		snapshot.JobCounts[model.JobStatusCompleted], snapshot.ErrorRate)

	fmt.Println("\nBasic example completed successfully!")
}
