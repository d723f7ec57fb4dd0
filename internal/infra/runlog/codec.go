// Package runlog encodes run records in protobuf wire format. The message
// layout is:
//
//	message RunRecord {
//	  string run_id = 1;
//	  sint64 from = 2;
//	  sint64 to = 3;
//	  Mode mode = 4;
//	  repeated sint64 versions = 5 [packed = true];
//	  string fingerprint = 6;
//	  int64 started_at_unix_nano = 7;
//	  int64 finished_at_unix_nano = 8;
//	}
package runlog

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

const (
	fieldRunID       protowire.Number = 1
	fieldFrom        protowire.Number = 2
	fieldTo          protowire.Number = 3
	fieldMode        protowire.Number = 4
	fieldVersions    protowire.Number = 5
	fieldFingerprint protowire.Number = 6
	fieldStartedAt   protowire.Number = 7
	fieldFinishedAt  protowire.Number = 8
)

const (
	modeUnknown uint64 = iota
	modeInitialize
	modeMigrate
)

var ErrRunIDRequired = errors.New("run id is required")

func Encode(record domain.RunRecord) ([]byte, error) {
	if record.RunID == "" {
		return nil, ErrRunIDRequired
	}
	mode, err := toWireMode(record.Mode)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, fieldRunID, protowire.BytesType)
	b = protowire.AppendString(b, record.RunID)
	if record.From != 0 {
		b = protowire.AppendTag(b, fieldFrom, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(record.From)))
	}
	if record.To != 0 {
		b = protowire.AppendTag(b, fieldTo, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(record.To)))
	}
	b = protowire.AppendTag(b, fieldMode, protowire.VarintType)
	b = protowire.AppendVarint(b, mode)
	if len(record.Versions) > 0 {
		var packed []byte
		for _, v := range record.Versions {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
		}
		b = protowire.AppendTag(b, fieldVersions, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	if record.Fingerprint != "" {
		b = protowire.AppendTag(b, fieldFingerprint, protowire.BytesType)
		b = protowire.AppendString(b, record.Fingerprint)
	}
	if !record.StartedAt.IsZero() {
		b = protowire.AppendTag(b, fieldStartedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(record.StartedAt.UnixNano()))
	}
	if !record.FinishedAt.IsZero() {
		b = protowire.AppendTag(b, fieldFinishedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(record.FinishedAt.UnixNano()))
	}
	return b, nil
}

func Decode(data []byte) (domain.RunRecord, error) {
	var record domain.RunRecord
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return domain.RunRecord{}, fmt.Errorf("decode run record: %w", protowire.ParseError(n))
		}
		data = data[n:]

		var err error
		switch {
		case num == fieldRunID && typ == protowire.BytesType:
			record.RunID, n = consumeString(data)
		case num == fieldFrom && typ == protowire.VarintType:
			var v int64
			v, n = consumeSint(data)
			record.From = domain.Version(v)
		case num == fieldTo && typ == protowire.VarintType:
			var v int64
			v, n = consumeSint(data)
			record.To = domain.Version(v)
		case num == fieldMode && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			record.Mode, err = fromWireMode(v)
		case num == fieldVersions && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				record.Versions, err = decodePacked(record.Versions, packed)
			}
		case num == fieldVersions && typ == protowire.VarintType:
			var v int64
			v, n = consumeSint(data)
			record.Versions = append(record.Versions, domain.Version(v))
		case num == fieldFingerprint && typ == protowire.BytesType:
			record.Fingerprint, n = consumeString(data)
		case num == fieldStartedAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			record.StartedAt = time.Unix(0, int64(v)).UTC()
		case num == fieldFinishedAt && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			record.FinishedAt = time.Unix(0, int64(v)).UTC()
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return domain.RunRecord{}, fmt.Errorf("decode run record field %d: %w", num, protowire.ParseError(n))
		}
		if err != nil {
			return domain.RunRecord{}, err
		}
		data = data[n:]
	}
	if record.RunID == "" {
		return domain.RunRecord{}, ErrRunIDRequired
	}
	return record, nil
}

func decodePacked(out []domain.Version, packed []byte) ([]domain.Version, error) {
	for len(packed) > 0 {
		v, n := consumeSint(packed)
		if n < 0 {
			return nil, fmt.Errorf("decode versions: %w", protowire.ParseError(n))
		}
		out = append(out, domain.Version(v))
		packed = packed[n:]
	}
	return out, nil
}

func consumeString(data []byte) (string, int) {
	v, n := protowire.ConsumeBytes(data)
	return string(v), n
}

func consumeSint(data []byte) (int64, int) {
	v, n := protowire.ConsumeVarint(data)
	return protowire.DecodeZigZag(v), n
}

func toWireMode(mode domain.RunMode) (uint64, error) {
	switch mode {
	case domain.RunModeInitialize:
		return modeInitialize, nil
	case domain.RunModeMigrate:
		return modeMigrate, nil
	default:
		return modeUnknown, fmt.Errorf("invalid run mode: %q", mode)
	}
}

func fromWireMode(mode uint64) (domain.RunMode, error) {
	switch mode {
	case modeInitialize:
		return domain.RunModeInitialize, nil
	case modeMigrate:
		return domain.RunModeMigrate, nil
	default:
		return "", fmt.Errorf("invalid wire run mode: %d", mode)
	}
}
