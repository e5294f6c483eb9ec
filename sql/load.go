package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed index.sql
var indexSQL string

// IndexFunctions lists the stored functions the index handler depends on
var IndexFunctions = []string{
	"init_index",
	"index_dimension",
	"clear_index",
	"insert_entry",
	"query_entries",
	"count_entries",
	"drop_index",
}

// Init initializes db extensions and the index registry table
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadIndexSql loads the index-related SQL functions.
// If force is false and all functions already exist, nothing is executed.
func LoadIndexSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, IndexFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing index functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(indexSQL)
	if err != nil {
		return fmt.Errorf("error executing index SQL: %w", err)
	}

	exist, err := checkFunctions(db, IndexFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL index functions loaded successfully")
	return nil
}

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
