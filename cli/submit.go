package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	facter "github.com/siherrmann/facter"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
	"github.com/spf13/cobra"
)

var (
	submitTitle   string
	submitMedium  string
	submitCountry string
	submitDate    string
	submitProcess bool
)

// submitCmd submits one article for extraction.
var submitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Submit an article for extraction",
	Long: `Submit an article for fact extraction.

The argument is either a JSON file with the full article payload or a
plain text file combined with --title and --date flags. With --process
the job is run to completion instead of being left for the service.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(args[0])
		if err != nil {
			return err
		}

		config, err := loadConfig()
		if err != nil {
			return err
		}

		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return fmt.Errorf("error reading database configuration: %w", err)
		}

		f, err := facter.NewFacter(config, dbConfig)
		if err != nil {
			return fmt.Errorf("error initializing facter: %w", err)
		}
		defer f.Close()

		job, err := f.SubmitArticle(payload)
		if err != nil {
			return fmt.Errorf("error submitting article: %w", err)
		}

		fmt.Printf("Job %s (%s)\n", job.RID, job.Status)

		if !submitProcess || job.Status != model.JobStatusPending {
			return nil
		}

		outcome, err := f.ProcessJob(context.Background(), job.RID)
		if err != nil {
			return fmt.Errorf("error processing job: %w", err)
		}

		if outcome.Duplicate {
			fmt.Printf("Article %d was already persisted, nothing written\n", outcome.ArticleID)
			return nil
		}

		fmt.Printf("Committed article %d: %d hecho(s), %d entidad(es)\n",
			outcome.ArticleID, len(outcome.HechoIDs), len(outcome.EntidadIDs))

		return nil
	},
}

// readPayload builds the article payload from a JSON or plain text file.
func readPayload(path string) (*model.ArticlePayload, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading article file: %w", err)
	}

	payload := &model.ArticlePayload{}
	if json.Valid(content) {
		if err := json.Unmarshal(content, payload); err != nil {
			return nil, fmt.Errorf("error parsing article JSON: %w", err)
		}
	} else {
		payload.Title = submitTitle
		payload.Content = string(content)
	}

	if submitTitle != "" {
		payload.Title = submitTitle
	}
	if submitMedium != "" {
		payload.Medium = submitMedium
	}
	if submitCountry != "" {
		payload.Country = submitCountry
	}
	if submitDate != "" {
		date, err := time.Parse("2006-01-02", submitDate)
		if err != nil {
			return nil, fmt.Errorf("error parsing publication date: %w", err)
		}
		payload.PublicationDate = date
	}
	if payload.ReferenceDate.IsZero() {
		payload.ReferenceDate = payload.PublicationDate
	}

	if payload.Title == "" || payload.Content == "" {
		return nil, fmt.Errorf("title and content are required, pass a JSON payload or use --title")
	}

	return payload, nil
}

func init() {
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "article title")
	submitCmd.Flags().StringVar(&submitMedium, "medium", "", "publishing medium")
	submitCmd.Flags().StringVar(&submitCountry, "country", "", "country of publication")
	submitCmd.Flags().StringVar(&submitDate, "date", "", "publication date (YYYY-MM-DD)")
	submitCmd.Flags().BoolVar(&submitProcess, "process", false, "run the job to completion")

	rootCmd.AddCommand(submitCmd)
}
