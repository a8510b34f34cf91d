package sync

import (
	"fmt"
	"testing"
	"time"

	"zapdesk/pkg/models"

	"github.com/google/uuid"
)

func normText(id, content string, ts int64) Normalized {
	return Normalized{ExternalID: id, Content: content, Timestamp: time.Unix(ts, 0).UTC()}
}

func persistedMsg(convID string, externalID, content string, ts int64) models.Message {
	m := models.Message{
		Content: content,
		Metadata: models.MessageMetadata{
			ExternalID: externalID,
		},
	}
	m.CreatedAt = time.Unix(ts, 0).UTC()
	return m
}

func TestGateExcludesKnownExternalIDs(t *testing.T) {
	gate := NewGate(map[string]bool{"A1": true, "A2": true}, nil)

	fresh := gate.Filter([]Normalized{
		normText("A1", "conteúdo alterado não importa", 1700000100),
		normText("A2", "também já existe", 1700000200),
		normText("A3", "este é novo", 1700000300),
	})

	if len(fresh) != 1 || fresh[0].ExternalID != "A3" {
		t.Fatalf("expected only A3, got %+v", fresh)
	}
}

func TestGateFuzzyMatchesLegacyRows(t *testing.T) {
	// Persisted rows carry no external id; the same content in the same
	// time bucket must still be treated as a duplicate
	existing := []models.Message{persistedMsg("c", "", "bom dia, o pedido chegou", 1700000005)}
	gate := NewGate(nil, existing)

	fresh := gate.Filter([]Normalized{
		normText("B1", "bom dia, o pedido chegou", 1700000007),
	})
	if len(fresh) != 0 {
		t.Fatalf("expected fuzzy duplicate to be excluded, got %+v", fresh)
	}
}

func TestGateFuzzySafety(t *testing.T) {
	// Distinct content in the same timestamp bucket is never collapsed
	gate := NewGate(nil, nil)

	fresh := gate.Filter([]Normalized{
		normText("C1", "primeira mensagem", 1700000001),
		normText("C2", "segunda mensagem completamente diferente", 1700000002),
	})
	if len(fresh) != 2 {
		t.Fatalf("distinct messages were fuzzy-matched: %+v", fresh)
	}
}

func TestGateCollapsesDoubleFetch(t *testing.T) {
	// The same 50 messages arriving via findMessages and fetchMessages in
	// one batch yield exactly 50 unique survivors
	var batch []Normalized
	for i := 0; i < 50; i++ {
		batch = append(batch, normText(fmt.Sprintf("M%02d", i), fmt.Sprintf("mensagem número %d", i), 1700000000+int64(i*60)))
	}
	batch = append(batch, batch[:50]...)

	gate := NewGate(nil, nil)
	fresh := gate.Filter(batch)
	if len(fresh) != 50 {
		t.Fatalf("expected 50 unique messages, got %d", len(fresh))
	}
}

func TestGateIsIdempotentAcrossRuns(t *testing.T) {
	batch := []Normalized{
		normText("D1", "olá", 1700000000),
		normText("D2", "tudo bem?", 1700000060),
	}

	first := NewGate(nil, nil).Filter(batch)
	if len(first) != 2 {
		t.Fatalf("first run imported %d, want 2", len(first))
	}

	// Second run sees the first run's rows as persisted state
	ids := map[string]bool{}
	var persisted []models.Message
	for _, n := range first {
		ids[n.ExternalID] = true
		persisted = append(persisted, persistedMsg("c", n.ExternalID, n.Content, n.Timestamp.Unix()))
	}

	second := NewGate(ids, persisted).Filter(batch)
	if len(second) != 0 {
		t.Fatalf("second run imported %d, want 0", len(second))
	}
}

func TestFuzzyKeyBuckets(t *testing.T) {
	base := time.Unix(1700000000, 0)

	if fuzzyKey("mesmo texto", base) != fuzzyKey("mesmo texto", base.Add(3*time.Second)) {
		t.Error("same content within one bucket must share a key")
	}
	if fuzzyKey("mesmo texto", base) == fuzzyKey("mesmo texto", base.Add(time.Hour)) {
		t.Error("same content an hour apart must not share a key")
	}
	if fuzzyKey("texto um", base) == fuzzyKey("texto dois", base) {
		t.Error("different content must never share a key")
	}

	// Only the first characters participate, so long texts with a common
	// prefix do collapse — that is the accepted trade-off
	long1 := "esta é uma mensagem bem longa que continua por muito tempo A"
	long2 := "esta é uma mensagem bem longa que continua por muito tempo B"
	if fuzzyKey(long1, base) != fuzzyKey(long2, base) {
		t.Error("prefix-equal long texts should share a key")
	}
}

func TestAdmitLiveRejectsIDLessRedelivery(t *testing.T) {
	store := &fakeMessages{}
	convID := uuid.New()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	// A webhook event whose key carried no id
	first := Normalized{Content: "segue o comprovante", Timestamp: at}
	if ok, err := AdmitLive(store, convID, first); err != nil || !ok {
		t.Fatalf("first delivery rejected: ok=%v err=%v", ok, err)
	}
	stored := models.Message{ConversationID: convID, Content: first.Content}
	stored.CreatedAt = at
	store.msgs = append(store.msgs, &stored)

	// Broker redelivery of the same event must not insert a second row
	if ok, err := AdmitLive(store, convID, first); err != nil || ok {
		t.Fatalf("redelivery admitted: ok=%v err=%v", ok, err)
	}

	// A different message in the same conversation still passes
	other := Normalized{Content: "obrigado!", Timestamp: at.Add(2 * time.Minute)}
	if ok, err := AdmitLive(store, convID, other); err != nil || !ok {
		t.Fatalf("fresh message rejected: ok=%v err=%v", ok, err)
	}
}

func TestAdmitLiveRejectsKnownExternalID(t *testing.T) {
	store := &fakeMessages{}
	convID := uuid.New()
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	stored := models.Message{ConversationID: convID, Content: "oi", Metadata: models.MessageMetadata{ExternalID: "W1"}}
	stored.CreatedAt = at
	store.msgs = append(store.msgs, &stored)

	dup := Normalized{ExternalID: "W1", Content: "oi", Timestamp: at}
	if ok, err := AdmitLive(store, convID, dup); err != nil || ok {
		t.Fatalf("known external id admitted: ok=%v err=%v", ok, err)
	}
}
