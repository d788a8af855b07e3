package testbroker

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// Record batch v2 header layout.
const (
	baseOffsetSize = 8
	crcStart       = 17
	attrStart      = 21
	recordCountAt  = 57

	// minBatchSize covers every header field up to and including recordCount.
	minBatchSize = 61

	magicV2 = 2
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// errBatchTooSmall is returned when a buffer cannot hold a batch header.
var errBatchTooSmall = errors.New("testbroker: batch too small")

// Message is a record as appended to a partition. A nil Value is written as
// a null value.
type Message struct {
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// encodeBatch builds a v2 record batch with base offset 0. The broker patches
// the real base offset in when the batch is appended to a log.
func encodeBatch(msgs []Message, codec Compression) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, errors.New("testbroker: empty batch")
	}

	first := msgs[0].Timestamp
	if first.IsZero() {
		first = time.Now()
	}
	firstMs := first.UnixMilli()
	maxMs := firstMs

	var records []byte
	for i, m := range msgs {
		ts := firstMs
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.UnixMilli()
		}
		if ts > maxMs {
			maxMs = ts
		}
		records = appendRecord(records, int64(i), ts-firstMs, m)
	}

	body, err := compress(codec, records)
	if err != nil {
		return nil, err
	}

	batch := make([]byte, 0, minBatchSize+len(body))
	// baseOffset, batchLength, partitionLeaderEpoch
	batch = binary.BigEndian.AppendUint64(batch, 0)
	batch = binary.BigEndian.AppendUint32(batch, 0)
	batch = binary.BigEndian.AppendUint32(batch, 0)
	batch = append(batch, magicV2)
	// crc placeholder
	batch = binary.BigEndian.AppendUint32(batch, 0)
	batch = binary.BigEndian.AppendUint16(batch, uint16(codec)&0x07)
	batch = binary.BigEndian.AppendUint32(batch, uint32(len(msgs)-1))
	batch = binary.BigEndian.AppendUint64(batch, uint64(firstMs))
	batch = binary.BigEndian.AppendUint64(batch, uint64(maxMs))
	// producerId, producerEpoch, baseSequence: no idempotence
	batch = binary.BigEndian.AppendUint64(batch, 0xFFFFFFFFFFFFFFFF)
	batch = binary.BigEndian.AppendUint16(batch, 0xFFFF)
	batch = binary.BigEndian.AppendUint32(batch, 0xFFFFFFFF)
	batch = binary.BigEndian.AppendUint32(batch, uint32(len(msgs)))
	batch = append(batch, body...)

	binary.BigEndian.PutUint32(batch[8:12], uint32(len(batch)-12))
	binary.BigEndian.PutUint32(batch[crcStart:attrStart], crc32.Checksum(batch[attrStart:], castagnoli))
	return batch, nil
}

func appendRecord(dst []byte, offsetDelta, tsDelta int64, m Message) []byte {
	var rec []byte
	rec = append(rec, 0) // attributes
	rec = binary.AppendVarint(rec, tsDelta)
	rec = binary.AppendVarint(rec, offsetDelta)
	rec = appendNullableBytes(rec, m.Key)
	rec = appendNullableBytes(rec, m.Value)
	rec = binary.AppendVarint(rec, 0) // headers

	dst = binary.AppendVarint(dst, int64(len(rec)))
	return append(dst, rec...)
}

func appendNullableBytes(dst, b []byte) []byte {
	if b == nil {
		return binary.AppendVarint(dst, -1)
	}
	dst = binary.AppendVarint(dst, int64(len(b)))
	return append(dst, b...)
}

// patchBaseOffset rewrites the base offset of a batch in place. The CRC starts
// at the attributes field, so it stays valid.
func patchBaseOffset(batch []byte, base int64) error {
	if len(batch) < minBatchSize {
		return errBatchTooSmall
	}
	binary.BigEndian.PutUint64(batch[:baseOffsetSize], uint64(base))
	return nil
}

func baseOffset(batch []byte) int64 {
	if len(batch) < baseOffsetSize {
		return 0
	}
	return int64(binary.BigEndian.Uint64(batch[:baseOffsetSize]))
}

func recordCount(batch []byte) int32 {
	if len(batch) < minBatchSize {
		return 0
	}
	return int32(binary.BigEndian.Uint32(batch[recordCountAt:minBatchSize]))
}

func validCRC(batch []byte) bool {
	if len(batch) < minBatchSize {
		return false
	}
	want := binary.BigEndian.Uint32(batch[crcStart:attrStart])
	return crc32.Checksum(batch[attrStart:], castagnoli) == want
}
