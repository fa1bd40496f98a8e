package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"meritlend/core/types"
)

type wrappedEvent struct {
	inner *types.Event
}

func (w wrappedEvent) EventType() string {
	return w.inner.Type
}

func (w wrappedEvent) Event() *types.Event {
	return w.inner
}

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	recorder, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return recorder
}

func TestEmitPersistsTypedEvents(t *testing.T) {
	recorder := openTestRecorder(t)

	recorder.Emit(&types.Event{
		Type:       "loan.issued",
		Attributes: map[string]string{"loanId": "0", "principal": "1000"},
	})

	records, err := recorder.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "loan.issued", records[0].Type)

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(records[0].Attributes), &attrs))
	require.Equal(t, "1000", attrs["principal"])
}

func TestEmitUnwrapsEngineEvents(t *testing.T) {
	recorder := openTestRecorder(t)

	recorder.Emit(wrappedEvent{inner: &types.Event{
		Type:       "credit.score_updated",
		Attributes: map[string]string{"score": "600"},
	}})

	records, err := recorder.ByType("credit.score_updated", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(records[0].Attributes), &attrs))
	require.Equal(t, "600", attrs["score"])
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	recorder := openTestRecorder(t)

	for _, name := range []string{"first", "second", "third"} {
		recorder.Emit(&types.Event{Type: name, Attributes: map[string]string{}})
	}

	records, err := recorder.Recent(2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "third", records[0].Type)
	require.Equal(t, "second", records[1].Type)
}

func TestByTypeFilters(t *testing.T) {
	recorder := openTestRecorder(t)

	recorder.Emit(&types.Event{Type: "loan.issued", Attributes: map[string]string{}})
	recorder.Emit(&types.Event{Type: "loan.repaid", Attributes: map[string]string{}})
	recorder.Emit(&types.Event{Type: "loan.issued", Attributes: map[string]string{}})

	records, err := recorder.ByType("loan.issued", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		require.Equal(t, "loan.issued", record.Type)
	}
}

func TestNilEventIgnored(t *testing.T) {
	recorder := openTestRecorder(t)
	recorder.Emit(nil)
	records, err := recorder.Recent(10)
	require.NoError(t, err)
	require.Empty(t, records)
}
