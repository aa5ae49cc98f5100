// Command load-state seeds a running store from a CSV of path,value rows, for
// preparing a table before guests arrive.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"traitors-table/internal/config"
	"traitors-table/internal/logging"
	"traitors-table/internal/store"
)

type stateRecord struct {
	Path  string
	Value json.RawMessage
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	cfg := config.Load()
	filePath := flag.String("file", "state.csv", "path to a path,value csv")
	storeURL := flag.String("store", cfg.StoreURL, "websocket URL of the state store")
	reset := flag.Bool("reset", false, "clear game/ before loading")
	flag.Parse()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	file, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open state file")
	}
	records, err := readState(file)
	file.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read state")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	remote, err := store.DialRemote(ctx, *storeURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to store")
	}
	defer remote.Close()

	if *reset {
		if err := remote.Write(ctx, "game", nil); err != nil {
			log.Fatal().Err(err).Msg("reset game state")
		}
	}
	for _, record := range records {
		if err := remote.Write(ctx, record.Path, record.Value); err != nil {
			log.Fatal().Err(err).Str("path", record.Path).Msg("failed to write state")
		}
	}
	log.Info().Int("records", len(records)).Msg("state loaded")
}

// readState parses rows after the header. A value that is not JSON is stored
// as a string.
func readState(r io.Reader) ([]stateRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var records []stateRecord
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		path := store.Clean(row[0])
		raw := strings.TrimSpace(row[1])
		if path == "" || raw == "" {
			continue
		}
		if !store.ValidPath(path) {
			return nil, fmt.Errorf("row %d: %w: %s", i+1, store.ErrInvalidPath, path)
		}
		value := json.RawMessage(raw)
		if !json.Valid(value) {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return nil, err
			}
			value = encoded
		}
		records = append(records, stateRecord{Path: path, Value: value})
	}
	return records, nil
}
