package runlog

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

func sampleRecord() domain.RunRecord {
	started := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	return domain.RunRecord{
		RunID:       "01HRUN",
		From:        2,
		To:          5,
		Mode:        domain.RunModeMigrate,
		Versions:    []domain.Version{3, 5},
		Fingerprint: "abc",
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	record := sampleRecord()
	data, err := Encode(record)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if diff := cmp.Diff(record, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	b, err := Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical encodings")
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	data, err := Encode(domain.RunRecord{RunID: "01HINIT", To: 1, Mode: domain.RunModeInitialize})
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "future")

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded.RunID != "01HINIT" || decoded.Mode != domain.RunModeInitialize || decoded.To != 1 {
		t.Fatalf("unexpected record: %+v", decoded)
	}
}

func TestEncodeRejectsInvalidRecords(t *testing.T) {
	if _, err := Encode(domain.RunRecord{Mode: domain.RunModeMigrate}); !errors.Is(err, ErrRunIDRequired) {
		t.Fatalf("expected ErrRunIDRequired, got %v", err)
	}
	if _, err := Encode(domain.RunRecord{RunID: "x", Mode: "rollback"}); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestDecodeRejectsTruncatedData(t *testing.T) {
	data, err := Encode(sampleRecord())
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if _, err := Decode(data[:len(data)-3]); err == nil {
		t.Fatalf("expected decode error")
	}
}
