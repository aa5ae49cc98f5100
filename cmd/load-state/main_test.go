package main

import (
	"errors"
	"strings"
	"testing"

	"traitors-table/internal/store"
)

func TestReadState(t *testing.T) {
	input := `path,value
game/phase,lobby
game/announcement,"{""text"":""Welcome""}"
 players/host/seat , 1
,skipped
game/timer,
`
	records, err := readState(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readState: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if string(records[0].Value) != `"lobby"` {
		t.Fatalf("expected bare word to become a string, got %s", records[0].Value)
	}
	if string(records[1].Value) != `{"text":"Welcome"}` {
		t.Fatalf("unexpected announcement %s", records[1].Value)
	}
	if records[2].Path != "players/host/seat" || string(records[2].Value) != "1" {
		t.Fatalf("unexpected record %+v", records[2])
	}
}

func TestReadStateRejectsBadPath(t *testing.T) {
	_, err := readState(strings.NewReader("path,value\nplayers/a#b,1\n"))
	if !errors.Is(err, store.ErrInvalidPath) {
		t.Fatalf("expected invalid path, got %v", err)
	}
}
