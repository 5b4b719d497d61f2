package commands

import (
	"bytes"
	"context"
	"testing"

	"emergency-dispatch-service/internal/models"
)

func TestPrintSink(t *testing.T) {
	var buf bytes.Buffer
	sink := printSink(&buf)

	u := models.TranscriptUpdate{Role: models.RoleCaller, Message: "My house is on fire", Timestamp: "12:01:02"}
	if err := sink.Notify(context.Background(), u); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	want := "[12:01:02] caller     My house is on fire\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "replay": false, "watch": false, "devices": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestReplayCommand_RequiresFile(t *testing.T) {
	f := replayCmd.Flags().Lookup("file")
	if f == nil {
		t.Fatal("expected --file flag")
	}
	if ann := f.Annotations["cobra_annotation_bash_completion_one_required_flag"]; len(ann) == 0 || ann[0] != "true" {
		t.Error("expected --file to be required")
	}
}
