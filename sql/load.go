package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed jobs.sql
var jobsSQL string

//go:embed articles.sql
var articlesSQL string

//go:embed hechos.sql
var hechosSQL string

//go:embed entidades.sql
var entidadesSQL string

//go:embed relations.sql
var relationsSQL string

//go:embed contradicciones.sql
var contradiccionesSQL string

// Function lists for verification
var JobsFunctions = []string{
	"init_jobs",
	"insert_job",
	"select_job",
	"select_jobs_by_status",
	"select_completed_job_by_hash",
	"transition_job",
	"update_job_checkpoint",
	"increment_job_retry",
	"count_jobs_by_status",
}

var ArticlesFunctions = []string{
	"init_articles",
	"insert_article",
	"select_article",
	"select_article_by_hash",
}

var HechosFunctions = []string{
	"init_hechos",
	"insert_hecho",
	"select_hecho",
	"select_hechos_by_entidades",
	"insert_cita",
	"insert_dato",
}

var EntidadesFunctions = []string{
	"init_entidades",
	"insert_entidad",
	"select_entidad",
	"select_entidad_by_name",
	"select_similar_entidades",
	"count_entidad_relations",
	"resolve_fusion",
	"fuse_entidad",
	"update_entidad_enrichment",
}

var RelationsFunctions = []string{
	"init_relations",
	"insert_hecho_entidad",
	"insert_hecho_hecho",
	"insert_entidad_entidad",
	"select_hecho_entidad_by_hechos",
	"select_hecho_entidad_by_entidad",
}

var ContradiccionesFunctions = []string{
	"init_contradicciones",
	"insert_contradiccion",
	"select_contradicciones_by_hecho",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadJobsSql loads job-related SQL functions
func LoadJobsSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, jobsSQL, JobsFunctions, "jobs")
}

// LoadArticlesSql loads article-related SQL functions
func LoadArticlesSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, articlesSQL, ArticlesFunctions, "articles")
}

// LoadHechosSql loads hecho-related SQL functions
func LoadHechosSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, hechosSQL, HechosFunctions, "hechos")
}

// LoadEntidadesSql loads entidad-related SQL functions
func LoadEntidadesSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, entidadesSQL, EntidadesFunctions, "entidades")
}

// LoadRelationsSql loads relation-related SQL functions
func LoadRelationsSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, relationsSQL, RelationsFunctions, "relations")
}

// LoadContradiccionesSql loads contradiction-related SQL functions
func LoadContradiccionesSql(db *sql.DB, force bool) error {
	return loadSqlFile(db, force, contradiccionesSQL, ContradiccionesFunctions, "contradicciones")
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadJobsSql(db, force); err != nil {
		return err
	}

	if err := LoadArticlesSql(db, force); err != nil {
		return err
	}

	if err := LoadHechosSql(db, force); err != nil {
		return err
	}

	if err := LoadEntidadesSql(db, force); err != nil {
		return err
	}

	if err := LoadRelationsSql(db, force); err != nil {
		return err
	}

	if err := LoadContradiccionesSql(db, force); err != nil {
		return err
	}

	return nil
}

// loadSqlFile executes one embedded SQL file and verifies that all expected
// functions were created. Without force it is a no-op if the functions
// already exist.
func loadSqlFile(db *sql.DB, force bool, fileSQL string, sqlFunctions []string, name string) error {
	if !force {
		exist, err := checkFunctions(db, sqlFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(fileSQL)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, sqlFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
